// Package envfile turns a KEY=VALUE block into a .env file written through
// the console with a quoted heredoc.
package envfile

import (
	"fmt"
	"strings"
)

type Var struct {
	Key   string
	Value string
}

// Vars keeps the order keys first appeared in. A repeated key keeps its first
// position and takes the last value.
type Vars []Var

func (v Vars) Len() int {
	return len(v)
}

func (v Vars) Get(key string) (string, bool) {
	for _, kv := range v {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

func (v *Vars) Set(key, value string) {
	for i := range *v {
		if (*v)[i].Key == key {
			(*v)[i].Value = value
			return
		}
	}
	*v = append(*v, Var{Key: key, Value: value})
}

// Parse reads one KEY=VALUE pair per line. Blank lines, comments and lines
// without '=' are skipped; only the first '=' separates key from value.
func Parse(text string) Vars {
	var vars Vars
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return vars
}

// Quote wraps value in single quotes so a POSIX shell reads it back literally.
func Quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// Render produces the .env file content, one KEY='value' line per variable.
func Render(vars Vars) string {
	var b strings.Builder
	for _, kv := range vars {
		fmt.Fprintf(&b, "%s=%s\n", kv.Key, Quote(kv.Value))
	}
	return b.String()
}

// UploadCommand returns the console command that writes vars to
// <sourceDir>/.env. The heredoc delimiter is quoted so the shell does not
// expand anything in the body.
func UploadCommand(sourceDir string, vars Vars) string {
	return fmt.Sprintf("cat > %s/.env << 'EOF'\n%sEOF", sourceDir, Render(vars))
}
