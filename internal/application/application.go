package application

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

const (
	// AppName is the application name used for directories and identification
	AppName = "chatdb"

	// EnvPrefix prefixes every environment variable read by the application
	EnvPrefix = "CHATDB_"

	// ConfigFileName is the name of the optional INI file in the application directory
	ConfigFileName = "config.ini"

	dataDirName = "data"
)

var (
	once   sync.Once
	appDir string
	errDir error
)

// GetApplicationDirectory returns the chatdb configuration directory path.
// Linux: ~/.config/chatdb (via os.UserConfigDir)
// Windows: C:\Users\{username}\AppData\Local\chatdb (via os.UserCacheDir)
func GetApplicationDirectory() (string, error) {
	once.Do(lazyLoad)

	if errDir != nil {
		return "", errDir
	}

	return appDir, nil
}

// GetDataDirectory returns the default directory holding database files.
func GetDataDirectory() (string, error) {
	dir, err := GetApplicationDirectory()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, dataDirName), nil
}

// GetConfigFile returns the default INI config path.
func GetConfigFile() (string, error) {
	dir, err := GetApplicationDirectory()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, ConfigFileName), nil
}

func lazyLoad() {
	var (
		baseDir string
		err     error
	)

	switch runtime.GOOS {
	case "windows":
		baseDir, err = os.UserCacheDir()
	default:
		baseDir, err = os.UserConfigDir()
	}

	if err != nil {
		errDir = fmt.Errorf("failed to get config directory: %w", err)
		return
	}

	appDir = filepath.Join(baseDir, AppName)
}
