package train

import (
	"fmt"
	"sort"
	"strings"
)

// HyperparamsToArgs converts a hyperparameter map into CLI arguments:
// key snake_case becomes --kebab-case; a boolean "true" value becomes
// a bare flag; "false" is omitted entirely; anything else becomes
// `--key value`. Keys are sorted for deterministic argument order
// across runs.
func HyperparamsToArgs(hyperparams map[string]string) []string {
	keys := make([]string, 0, len(hyperparams))
	for k := range hyperparams {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var args []string
	for _, k := range keys {
		flag := "--" + strings.ReplaceAll(k, "_", "-")
		v := hyperparams[k]
		switch strings.ToLower(v) {
		case "true":
			args = append(args, flag)
		case "false":
			// omitted
		default:
			args = append(args, flag, v)
		}
	}
	return args
}

// BuildScriptArgs merges hyperparameter-derived arguments with the
// job's raw script_args, raw args following hyperparam-derived ones,
// per the controller's prepare step.
func BuildScriptArgs(hyperparams map[string]string, rawArgs []string, resumePath string) []string {
	args := HyperparamsToArgs(hyperparams)
	if resumePath != "" {
		args = append(args, "--resume", resumePath)
	}
	return append(args, rawArgs...)
}

// InstallScript returns the shell snippet that installs the first
// dependency manifest found in remoteDir (requirements.txt, then
// pyproject.toml, then Pipfile) and exits 0 when none is present.
// Whether a failed install is fatal is decided by the caller
// (TrainingJob.BestEffortDeps); this only builds the command.
func InstallScript(remoteDir string) string {
	return fmt.Sprintf(`cd %q
if [ -f requirements.txt ]; then
  pip install -r requirements.txt
elif [ -f pyproject.toml ]; then
  pip install .
elif [ -f Pipfile ]; then
  pipenv install
else
  exit 0
fi
`, remoteDir)
}
