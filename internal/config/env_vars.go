package config

import (
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	apiURLVar  = "TUNZADENT_API_URL"
	appNameVar = "APP_NAME"
	folderVar  = "TUNZADENT_DATA_FOLDER"
)

type EnvConfig interface {
	GetAPIBaseURL() string
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
}

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

var loadDotEnvOnce sync.Once

// loadDotEnv reads a .env file if one exists, so local development does not
// require exporting every variable by hand.
func loadDotEnv() {
	loadDotEnvOnce.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Debug().Err(err).Msg("no .env file found, using system environment")
		}
	})
}

func (EnvVars) GetAPIBaseURL() string {
	return GetEnv(apiURLVar, "http://127.0.0.1:8000/api")
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Tunzadent")
}

// GetDataFolder returns the directory holding the persisted session. Defaults
// to ~/.tunzadent so the CLI works without configuration.
func (EnvVars) GetDataFolder() string {
	if folder := os.Getenv(folderVar); folder != "" {
		return folder
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.tunzadent"
	}
	return home + "/.tunzadent"
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
