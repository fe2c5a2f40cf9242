// Package platform resolves where worktally keeps its config file, database and logs.
package platform

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultAppName names the config and data directories.
const DefaultAppName = "worktally"

// DataDirEnv relocates the database and log directory regardless of OS conventions.
const DataDirEnv = "WORKTALLY_DATA_DIR"

// Paths holds the resolved on-disk locations for one app name.
type Paths struct {
	AppName    string
	ConfigPath string
	DataDir    string
	DBPath     string
	LogDir     string
}

// Options selects the app name and dev-mode suffix.
type Options struct {
	AppName string
	DevMode bool
}

// baseEnv names the variables that override the config and data bases on one OS.
type baseEnv struct {
	config string
	data   string
}

var baseEnvByOS = map[string]baseEnv{
	"linux":   {config: "XDG_CONFIG_HOME", data: "XDG_DATA_HOME"},
	"windows": {config: "APPDATA", data: "LOCALAPPDATA"},
}

// DefaultPaths returns paths for DefaultAppName.
func DefaultPaths() (Paths, error) {
	return DefaultPathsWithOptions(Options{AppName: DefaultAppName})
}

// DefaultPathsWithOptions resolves paths for the current OS and environment.
// Dev mode appends "-dev" so a development build never touches the real ledger.
func DefaultPathsWithOptions(opts Options) (Paths, error) {
	name := strings.TrimSpace(opts.AppName)
	if name == "" {
		name = DefaultAppName
	}
	if opts.DevMode {
		name += "-dev"
	}

	configBase, err := os.UserConfigDir()
	if err != nil {
		return Paths{}, err
	}
	dataBase, err := userDataBase(runtime.GOOS, configBase)
	if err != nil {
		return Paths{}, err
	}

	env := make(map[string]string, 5)
	for _, key := range []string{"XDG_CONFIG_HOME", "XDG_DATA_HOME", "APPDATA", "LOCALAPPDATA", DataDirEnv} {
		env[key] = os.Getenv(key)
	}
	return PathsFor(runtime.GOOS, env, configBase, dataBase, name)
}

// userDataBase returns the OS default parent of the data directory.
func userDataBase(goos, configBase string) (string, error) {
	if goos != "linux" {
		return configBase, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share"), nil
}

// PathsFor resolves paths from explicit inputs so tests can cover every OS.
// DataDirEnv in env wins over the OS data base and is used as the data dir as is.
func PathsFor(goos string, env map[string]string, userConfigDir, userDataDir, appName string) (Paths, error) {
	appName = strings.TrimSpace(appName)
	switch {
	case userConfigDir == "" || userDataDir == "":
		return Paths{}, errors.New("config and data base dirs are required")
	case appName == "":
		return Paths{}, errors.New("app name is required")
	}

	configBase, dataBase := userConfigDir, userDataDir
	if names, ok := baseEnvByOS[goos]; ok {
		if v := strings.TrimSpace(env[names.config]); v != "" {
			configBase = v
		}
		if v := strings.TrimSpace(env[names.data]); v != "" {
			dataBase = v
		}
	}

	dataDir := filepath.Join(dataBase, appName)
	if v := strings.TrimSpace(env[DataDirEnv]); v != "" {
		dataDir = filepath.Clean(v)
	}
	return Paths{
		AppName:    appName,
		ConfigPath: filepath.Join(configBase, appName, "config.toml"),
		DataDir:    dataDir,
		DBPath:     filepath.Join(dataDir, appName+".db"),
		LogDir:     filepath.Join(dataDir, "log"),
	}, nil
}
