package commands

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/kestreldev/kestrel/internal/core/config"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	Token      string
	Workspace  string

	// Config is loaded in the Before hook and available to all commands.
	Config config.Config
}

// APIToken resolves the token to use: flag, then environment, then
// config file.
func (f *Flags) APIToken() string {
	if f.Token != "" {
		return f.Token
	}
	if tok := os.Getenv("ASANA_TOKEN"); tok != "" {
		return tok
	}
	return f.Config.APIToken
}

// WorkspaceGID resolves the workspace to use: flag, then config file.
// Empty means "ask or auto-select".
func (f *Flags) WorkspaceGID() string {
	if f.Workspace != "" {
		return f.Workspace
	}
	return f.Config.DefaultWorkspace
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "kestrel", "config.yml")
}

// DefaultLogFile returns the default log file path using the system's
// state directory.
func DefaultLogFile() string {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome != "" {
		return filepath.Join(stateHome, "kestrel", "kestrel.log")
	}

	home, _ := os.UserHomeDir()
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Logs", "kestrel", "kestrel.log")
	}
	return filepath.Join(home, ".local", "state", "kestrel", "kestrel.log")
}
