package configs

type LogsConfig struct {
	LogLevel string `yaml:"log_level"`
	Pretty   bool   `yaml:"pretty"`
}
