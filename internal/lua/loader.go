package lua

import (
	"os"
	"path/filepath"

	"github.com/mpataki/padeploy/internal/framework"
	"github.com/pkg/errors"
)

// LoadAll loads every script in dirs. Missing directories are skipped and a
// later script replaces an earlier one of the same name.
func LoadAll(dirs []string) (map[string]*Script, error) {
	scripts := make(map[string]*Script)

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		for _, entry := range entries {
			if entry.IsDir() || !IsScript(entry.Name()) {
				continue
			}
			s, err := Load(filepath.Join(dir, entry.Name()))
			if err != nil {
				return nil, errors.Wrapf(err, "failed to load %s", entry.Name())
			}
			scripts[s.Name] = s
		}
	}

	return scripts, nil
}

func RegisterAll(reg *framework.Registry, scripts map[string]*Script) []string {
	names := make([]string, 0, len(scripts))
	for name, s := range scripts {
		reg.Register(name, s.Strategy())
		names = append(names, name)
	}
	return names
}
