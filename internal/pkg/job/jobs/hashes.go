package jobs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/jleaniz/turbinia/internal/pkg/processor"
	"github.com/jleaniz/turbinia/internal/pkg/task"
	"github.com/jleaniz/turbinia/internal/pkg/utils/errors"
)

const (
	hashcatProgram = "hashcat"
	// passwordListKey is the recipe key of the wordlist used to crack account hashes.
	passwordListKey     = "password_list"
	defaultPasswordList = "/etc/turbinia/password.lst"
)

// Hashcat modes.
const (
	hashModeMD5Crypt    = 500
	hashModeSHA256Crypt = 7400
	hashModeSHA512Crypt = 1800
	hashModeBcrypt      = 3200
	hashModePostgresMD5 = 12
	hashModeScramSHA256 = 28600
)

// crackedPassword is a hash cracked by a dictionary attack.
type crackedPassword struct {
	User     string
	Password string
}

// crackHashes runs a dictionary attack on the hashes of the same mode, the map key is the hashcat input line.
// Cracked passwords are sorted as the input lines.
func crackHashes(ctx context.Context, rc *task.RunContext, mode int, hashes map[string]string) ([]crackedPassword, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	wordlist := rc.Task.RecipeString(passwordListKey)
	if wordlist == "" {
		wordlist = defaultPasswordList
	}

	var lines []string
	for line := range hashes {
		lines = append(lines, line)
	}
	slices.Sort(lines)

	hashFile := filepath.Join(rc.TmpDir, "hashes_"+strconv.Itoa(mode)+".txt")
	if err := os.WriteFile(hashFile, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		return nil, errors.PrefixError(err, "cannot write hashes")
	}

	args := []string{"--force", "--quiet", "--potfile-disable", "-a", "0", "-m", strconv.Itoa(mode), hashFile, wordlist}
	out, err := rc.Executor.Execute(ctx, task.Command{Name: hashcatProgram, Args: args})
	if err != nil {
		// Exit code 1 means all candidates were tried.
		var cmdErr processor.CommandError
		var exitErr *exec.ExitError
		if !errors.As(err, &cmdErr) || !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			return nil, err
		}
		out = cmdErr.Output
	}

	// Each cracked hash is printed as "<input line>:<password>".
	var cracked []crackedPassword
	outLines := strings.Split(out, "\n")
	for _, line := range lines {
		for _, outLine := range outLines {
			if password, found := strings.CutPrefix(outLine, line+":"); found {
				cracked = append(cracked, crackedPassword{User: hashes[line], Password: password})
				break
			}
		}
	}
	return cracked, nil
}

// crackedFindings formats cracked passwords, the password itself is not reported.
func crackedFindings(cracked []crackedPassword) []string {
	var out []string
	for _, c := range cracked {
		out = append(out, `User "`+c.User+`" has a weak password`)
	}
	return out
}
