package config

type Config interface {
	EnvConfig
	ClientConfig
}

type mainConfig struct {
	EnvVars
	Client
}

func New() Config {
	loadDotEnv()
	return mainConfig{}
}
