package engine

import (
	"path/filepath"
	"strings"

	"github.com/fastgit/fgit/internal/repourl"
)

const defaultRemote = "origin"

func isFlag(arg string) bool {
	return strings.HasPrefix(arg, "-")
}

// cloneDestination returns the directory git clone will create. An explicit
// directory is recognised only when the last two arguments are both
// positional; otherwise the repository name is used.
func cloneDestination(args []string, canonical string) string {
	if n := len(args); n >= 2 && !isFlag(args[n-2]) && !isFlag(args[n-1]) {
		return args[n-1]
	}
	return repourl.Name(canonical)
}

// remoteName returns the remote name given with -o, --origin or
// --origin=<name>.
func remoteName(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "-o" || arg == "--origin":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "--origin="):
			if name := strings.TrimPrefix(arg, "--origin="); name != "" {
				return name
			}
		}
	}
	return defaultRemote
}

// archiveName is "<repo>-<branch>.zip" with path separators in the branch
// flattened.
func archiveName(canonical, branch string) string {
	branch = strings.NewReplacer("/", "-", `\`, "-").Replace(branch)
	return repourl.Name(canonical) + "-" + branch + ".zip"
}

func (o *Orchestrator) resolve(path string) string {
	if filepath.IsAbs(path) || o.opts.WorkDir == "" {
		return path
	}
	return filepath.Join(o.opts.WorkDir, path)
}
