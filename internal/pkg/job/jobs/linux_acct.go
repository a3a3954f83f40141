package jobs

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jleaniz/turbinia/internal/pkg/evidence"
	"github.com/jleaniz/turbinia/internal/pkg/job"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	LinuxAccountAnalysisJobName  = "LinuxAccountAnalysisJob"
	LinuxAccountAnalysisTaskName = "LinuxAccountAnalysisTask"
	LinuxAccountsArtifact        = "LinuxShadowAndPasswordFiles"
)

// LinuxAccountAnalysisJob looks for accounts with an empty or a weak password in the shadow file.
type LinuxAccountAnalysisJob struct {
	job.Base
}

type LinuxAccountAnalysisTask struct{}

// ShadowAccounts are accounts parsed from a shadow file.
type ShadowAccounts struct {
	// Hashes maps a password hash to the user name.
	Hashes map[string]string
	// NoPassword are users which can log in without a password.
	NoPassword []string
}

func NewLinuxAccountAnalysisJob() *LinuxAccountAnalysisJob {
	return &LinuxAccountAnalysisJob{Base: job.Base{
		JobName: LinuxAccountAnalysisJobName,
		Input: []string{
			evidence.TypeCompressedDirectory, evidence.TypeContainerdContainer, evidence.TypeDirectory, evidence.TypeDockerContainer,
			evidence.TypeEwfDisk, evidence.TypeGoogleCloudDisk, evidence.TypeGoogleCloudDiskRawEmbedded, evidence.TypeRawDisk,
		},
		Output:     []string{evidence.TypeReportText},
		Programs:   []string{imageExportProgram, hashcatProgram},
		MaxRunTime: 20 * time.Minute,
	}}
}

func (j *LinuxAccountAnalysisJob) CreateTasks(batch []evidence.Evidence) []*task.Task {
	return job.NewTasks(j, batch[0], LinuxAccountAnalysisTaskName)
}

func (t *LinuxAccountAnalysisTask) Name() string {
	return LinuxAccountAnalysisTaskName
}

func (t *LinuxAccountAnalysisTask) RequiredStates() []evidence.State {
	return []evidence.State{evidence.StateAttached, evidence.StateContainerMounted, evidence.StateDecompressed}
}

func (t *LinuxAccountAnalysisTask) Run(ctx context.Context, rc *task.RunContext, e evidence.Evidence, result *task.Result) error {
	files, err := exportArtifact(ctx, rc, e, LinuxAccountsArtifact, filepath.Join(rc.TmpDir, "accounts"))
	if err != nil {
		return err
	}

	accounts := ShadowAccounts{Hashes: make(map[string]string)}
	shadowFiles := 0
	for _, path := range files {
		if filepath.Base(path) != "shadow" {
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return errors.PrefixErrorf(err, `cannot read shadow file "%s"`, path)
		}
		shadowFiles++
		parsed := ParseShadow(content)
		accounts.NoPassword = append(accounts.NoPassword, parsed.NoPassword...)
		for hash, user := range parsed.Hashes {
			accounts.Hashes[hash] = user
		}
	}
	if shadowFiles == 0 {
		result.Close(true, "No shadow files found")
		return nil
	}

	var findings []string
	for _, user := range accounts.NoPassword {
		findings = append(findings, fmt.Sprintf(`User "%s" has no password`, user))
	}

	byMode := make(map[int]map[string]string)
	for hash, user := range accounts.Hashes {
		if mode, ok := shadowHashMode(hash); ok {
			if byMode[mode] == nil {
				byMode[mode] = make(map[string]string)
			}
			byMode[mode][hash] = user
		}
	}
	modes := make([]int, 0, len(byMode))
	for mode := range byMode {
		modes = append(modes, mode)
	}
	slices.Sort(modes)
	for _, mode := range modes {
		cracked, err := crackHashes(ctx, rc, mode, byMode[mode])
		if err != nil {
			return err
		}
		findings = append(findings, crackedFindings(cracked)...)
	}

	summary := "No weak passwords found"
	if len(findings) > 0 {
		summary = fmt.Sprintf("Found %d account(s) with a weak password", len(findings))
	}
	return reportFindings(rc, result, "linux_account_analysis.txt", summary, findings, task.PriorityCritical)
}

// ParseShadow parses lines "user:hash:...", locked accounts are skipped.
func ParseShadow(content []byte) ShadowAccounts {
	out := ShadowAccounts{Hashes: make(map[string]string)}
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		fields := strings.Split(strings.TrimSpace(scanner.Text()), ":")
		if len(fields) < 2 || fields[0] == "" {
			continue
		}
		user, hash := fields[0], fields[1]
		switch {
		case hash == "":
			out.NoPassword = append(out.NoPassword, user)
		case strings.HasPrefix(hash, "!"), strings.HasPrefix(hash, "*"), hash == "x":
			// locked
		default:
			out.Hashes[hash] = user
		}
	}
	return out
}

// shadowHashMode returns the hashcat mode of a crypt(3) hash.
func shadowHashMode(hash string) (int, bool) {
	switch {
	case strings.HasPrefix(hash, "$6$"):
		return hashModeSHA512Crypt, true
	case strings.HasPrefix(hash, "$5$"):
		return hashModeSHA256Crypt, true
	case strings.HasPrefix(hash, "$1$"):
		return hashModeMD5Crypt, true
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return hashModeBcrypt, true
	default:
		return 0, false
	}
}
