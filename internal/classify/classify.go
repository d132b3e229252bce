// Package classify maps free-form console output to the outcomes the
// deployment cares about. The console never reports exit status, so these
// functions are the only place where output text is interpreted.
package classify

import "strings"

const (
	upToDateMarker      = "Already up to date"
	localChangesMarker  = "Your local changes to the following files would be overwritten by merge"
	untrackedMarker     = "untracked working tree files would be overwritten by merge"
	gitErrorPrefix      = "error:"
	upgradeFailedMarker = "FAILED"
)

type PullOutcome int

const (
	PullClean PullOutcome = iota
	PullLocalChanges
	PullUntrackedFiles
	PullGitError
)

func (o PullOutcome) String() string {
	switch o {
	case PullClean:
		return "up_to_date_or_clean"
	case PullLocalChanges:
		return "local_changes_conflict"
	case PullUntrackedFiles:
		return "untracked_files_conflict"
	case PullGitError:
		return "generic_git_error"
	default:
		return "unknown"
	}
}

// OK reports whether the pull left a usable working tree.
func (o PullOutcome) OK() bool {
	return o == PullClean
}

// Pull classifies the output of `git pull`. Rules are checked in order and
// output matching none of them counts as a successful pull.
func Pull(output string) PullOutcome {
	lines := Lines(output)
	if len(lines) == 0 {
		return PullClean
	}

	switch {
	case anyContains(lines, upToDateMarker):
		return PullClean
	case anyContains(lines, localChangesMarker):
		return PullLocalChanges
	case anyContains(lines, untrackedMarker):
		return PullUntrackedFiles
	case anyHasPrefix(lines, gitErrorPrefix):
		return PullGitError
	}
	return PullClean
}

type ToolPresence struct {
	Present bool
	Path    string
}

// Tool classifies the output of a `find ... -print` for target. The first
// line mentioning target is taken as the tool's path.
func Tool(output, target string) ToolPresence {
	for _, line := range Lines(output) {
		if strings.Contains(line, target) {
			return ToolPresence{Present: true, Path: line}
		}
	}
	return ToolPresence{}
}

// Contains reports whether marker appears anywhere in output.
func Contains(output, marker string) bool {
	return marker != "" && strings.Contains(output, marker)
}

// UpgradeFailed reports whether `alembic upgrade` printed a failure.
func UpgradeFailed(output string) bool {
	return Contains(output, upgradeFailedMarker)
}

// Lines splits output into trimmed, non-blank lines. A bare carriage return
// counts as a line break since terminal progress output uses it.
func Lines(output string) []string {
	var lines []string
	for _, line := range strings.FieldsFunc(output, isLineBreak) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func isLineBreak(r rune) bool {
	return r == '\n' || r == '\r'
}

func anyContains(lines []string, marker string) bool {
	for _, line := range lines {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

func anyHasPrefix(lines []string, prefix string) bool {
	for _, line := range lines {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
