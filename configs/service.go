package configs

type ServiceConfig struct {
	HttpPort       string   `yaml:"http_port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}
