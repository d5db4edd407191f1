package storeopen

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/im-sanjay-sai/gemini-falir-agent/pkg/dotdir"
)

// Default store file names inside a .callfacts/ directory.
const (
	SQLiteFile = "callfacts.db"
	JSONFile   = "callfacts.json"
)

// ResolvePath picks the file a file-backed store lives in. An explicit
// override wins, then the config directory when one was given, then the first
// existing candidate, and finally a fresh file in the resolved .callfacts/
// directory.
func ResolvePath(override, configDir, name string) (string, error) {
	if override != "" {
		return override, nil
	}

	ddm := dotdir.NewManager()
	if configDir != "" {
		return ddm.Path(configDir, name)
	}

	for _, candidate := range candidates(name) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return ddm.Path("", name)
}

func candidates(name string) []string {
	paths := []string{
		name,
		filepath.Join(".callfacts", name),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		paths = append(paths, filepath.Join(home, ".callfacts", name))
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		paths = append(paths, filepath.Join(xdgHome, "callfacts", name))
	}

	return paths
}
