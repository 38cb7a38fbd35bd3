// Package paths resolves where the docmodel CLI keeps its configuration,
// model schema and embedded-store data.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName names the per-user directories.
const AppName = "docmodel"

// CWD-relative directory names used when nothing else is configured.
const (
	DefaultConfigDirName = ".docmodel"
	DefaultDataDirName   = ".docmodel-data"
)

// File names inside the configuration directory.
const (
	ConfigFileName = "config.yaml"
	SchemaFileName = "schema.yaml"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "DOCMODEL_CONFIG_DIR"
	EnvDataDir   = "DOCMODEL_DATA_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	getwd         func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	getwd:         os.Getwd,
}

// DefaultConfigDir returns the per-user configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/docmodel (fallback ~/.config/docmodel)
// Others:  os.UserConfigDir()/docmodel
func DefaultConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the per-user data directory.
//
// Linux:   $XDG_DATA_HOME/docmodel (fallback ~/.local/share/docmodel)
// Others:  os.UserConfigDir()/docmodel
func DefaultDataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func xdgDir(env, homeRel string) (string, error) {
	if runtime.GOOS != "linux" {
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, AppName), nil
	}
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, homeRel, AppName), nil
}

// ResolveConfigDir returns the configuration directory: flag, then
// DOCMODEL_CONFIG_DIR, then ./.docmodel when it exists, then
// DefaultConfigDir.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	local := filepath.Join(cwd, DefaultConfigDirName)
	if info, err := os.Stat(local); err == nil && info.IsDir() {
		return local, nil
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the embedded store's directory: flag, then the
// config file's data_dir, then DOCMODEL_DATA_DIR, then ./.docmodel-data.
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, v := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		if v != "" {
			return filepath.Abs(v)
		}
	}
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// ConfigFile returns the config.yaml path inside configDir.
func ConfigFile(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}

// SchemaFile returns the schema path: value when set, resolved against
// configDir when relative, else schema.yaml inside configDir.
func SchemaFile(configDir, value string) string {
	if value == "" {
		return filepath.Join(configDir, SchemaFileName)
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(configDir, value)
}
