package utils

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/charmbracelet/log"
)

// AppName names the per-user config directory.
const AppName = "rxsuggest"

// UserConfigDir returns the platform config directory for the app, without creating it.
func UserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppName), nil
		}
		return filepath.Join(homeDir, "AppData", "Roaming", AppName), nil
	case "linux":
		if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
			return filepath.Join(configHome, AppName), nil
		}
	}
	return filepath.Join(homeDir, ".config", AppName), nil
}

// GetExecutableDir returns the directory of the running binary with symlinks resolved.
func GetExecutableDir() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
		execPath = resolved
	}
	return filepath.Dir(execPath), nil
}

// ResolveDataPath finds a dictionary file or directory. Absolute paths are returned
// as they are; relative ones are tried against the working directory, the executable
// directory and the config directory, in that order. The first existing candidate wins;
// if none exists the working-directory form is returned so errors name a sensible path.
func ResolveDataPath(userPath string) string {
	if userPath == "" || filepath.IsAbs(userPath) {
		return userPath
	}

	var candidates []string
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, userPath))
	}
	if execDir, err := GetExecutableDir(); err == nil {
		candidates = append(candidates, filepath.Join(execDir, userPath))
	}
	if configDir, err := UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(configDir, userPath))
	}

	for _, path := range candidates {
		if FileExists(path) {
			log.Debugf("Resolved data path %s -> %s", userPath, path)
			return path
		}
		log.Debugf("Data path candidate not found: %s", path)
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return userPath
}
