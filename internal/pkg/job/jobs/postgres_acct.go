package jobs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/umisama/go-regexpcache"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/job"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	PostgresAccountAnalysisJobName  = "PostgresAcctAnalysisJob"
	PostgresAccountAnalysisTaskName = "PostgresAccountAnalysisTask"
	// pg_authid relation file, relative to the data directory.
	postgresAuthFile    = "global/1260"
	postgresAuthMaxSize = 16 << 20
)

// Rolname is a null padded field, rolpassword follows the flags of the same tuple.
const postgresCredentialPattern = `(?s)([A-Za-z_][A-Za-z0-9_]*)\x00.{0,96}?(md5[0-9a-f]{32}|SCRAM-SHA-256\$[0-9]+:[A-Za-z0-9+/=]+\$[A-Za-z0-9+/=]+:[A-Za-z0-9+/=]+)`

// PostgresAccountAnalysisJob looks for weak passwords of PostgreSQL roles.
type PostgresAccountAnalysisJob struct {
	job.Base
}

type PostgresAccountAnalysisTask struct{}

// PostgresCredentials maps hashcat input lines to role names, per hash type.
type PostgresCredentials struct {
	MD5   map[string]string
	Scram map[string]string
}

func NewPostgresAccountAnalysisJob() *PostgresAccountAnalysisJob {
	return &PostgresAccountAnalysisJob{Base: job.Base{
		JobName: PostgresAccountAnalysisJobName,
		Input: []string{
			evidence.TypeDirectory, evidence.TypeDiskPartition, evidence.TypeCompressedDirectory,
			evidence.TypeDockerContainer, evidence.TypeContainerdContainer,
		},
		Output:     []string{evidence.TypeReportText},
		Programs:   []string{hashcatProgram},
		MaxRunTime: 20 * time.Minute,
	}}
}

func (j *PostgresAccountAnalysisJob) CreateTasks(batch []evidence.Evidence) []*task.Task {
	return job.NewTasks(j, batch[0], PostgresAccountAnalysisTaskName)
}

func (t *PostgresAccountAnalysisTask) Name() string {
	return PostgresAccountAnalysisTaskName
}

func (t *PostgresAccountAnalysisTask) RequiredStates() []evidence.State {
	return []evidence.State{evidence.StateAttached, evidence.StateMounted, evidence.StateContainerMounted, evidence.StateDecompressed}
}

func (t *PostgresAccountAnalysisTask) Run(ctx context.Context, rc *task.RunContext, e evidence.Evidence, result *task.Result) error {
	root := e.Common().LocalPath
	creds := PostgresCredentials{MD5: make(map[string]string), Scram: make(map[string]string)}
	dataDirs := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(filepath.ToSlash(path), "/"+postgresAuthFile) {
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > postgresAuthMaxSize {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return errors.PrefixErrorf(err, `cannot read "%s"`, path)
		}
		dataDirs++
		found := ExtractPostgresCredentials(content)
		for line, user := range found.MD5 {
			creds.MD5[line] = user
		}
		for line, user := range found.Scram {
			creds.Scram[line] = user
		}
		return nil
	})
	if err != nil {
		return errors.PrefixErrorf(err, `cannot search PostgreSQL data in "%s"`, root)
	}
	if dataDirs == 0 {
		result.Close(true, "No PostgreSQL data directories found")
		return nil
	}

	var findings []string
	for _, c := range []struct {
		mode   int
		hashes map[string]string
	}{
		{mode: hashModePostgresMD5, hashes: creds.MD5},
		{mode: hashModeScramSHA256, hashes: creds.Scram},
	} {
		cracked, err := crackHashes(ctx, rc, c.mode, c.hashes)
		if err != nil {
			return err
		}
		findings = append(findings, crackedFindings(cracked)...)
	}

	summary := "No weak PostgreSQL passwords found"
	if len(findings) > 0 {
		summary = fmt.Sprintf("Found %d PostgreSQL role(s) with a weak password", len(findings))
	}
	return reportFindings(rc, result, "postgres_account_analysis.txt", summary, findings, task.PriorityCritical)
}

// ExtractPostgresCredentials finds role names and password hashes in the pg_authid relation file.
func ExtractPostgresCredentials(content []byte) PostgresCredentials {
	out := PostgresCredentials{MD5: make(map[string]string), Scram: make(map[string]string)}
	for _, m := range regexpcache.MustCompile(postgresCredentialPattern).FindAllSubmatch(content, -1) {
		user, hash := string(m[1]), string(m[2])
		if md5, found := strings.CutPrefix(hash, "md5"); found {
			// hashcat expects "hash:salt", the role name is the salt
			out.MD5[md5+":"+user] = user
		} else {
			out.Scram[hash] = user
		}
	}
	return out
}
