package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/dig"

	"github.com/shaharz/lumen/internal/history"
	"github.com/shaharz/lumen/internal/provider/gemini"
	"github.com/shaharz/lumen/internal/provider/mistral"
	"github.com/shaharz/lumen/internal/provider/openai"
	"github.com/shaharz/lumen/internal/provider/openrouter"
	"github.com/shaharz/lumen/internal/provider/together"
)

// Config represents the assistant backend configuration.
type Config struct {
	Server     ServerConfig
	CORS       CORSConfig
	Context    ContextConfig
	Routing    RoutingConfig
	History    history.Config
	Gemini     gemini.Config
	Mistral    mistral.Config
	Together   together.Config
	OpenRouter openrouter.Config
	OpenAI     openai.Config
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int `env:"SERVER_PORT"         envDefault:"8080"`
	ReadTimeout int `env:"SERVER_READ_TIMEOUT" envDefault:"30"`
	// WriteTimeout of zero disables the deadline; streamed responses must be
	// able to outlive any fixed write window.
	WriteTimeout int `env:"SERVER_WRITE_TIMEOUT" envDefault:"0"`
}

// CORSConfig contains CORS policy settings.
type CORSConfig struct {
	AllowedOrigins   []string `env:"CORS_ALLOWED_ORIGINS"   envSeparator:"," envDefault:"*"`
	AllowedMethods   []string `env:"CORS_ALLOWED_METHODS"   envSeparator:"," envDefault:"GET,POST,OPTIONS"`
	AllowedHeaders   []string `env:"CORS_ALLOWED_HEADERS"   envSeparator:"," envDefault:"Content-Type,Authorization"`
	AllowCredentials bool     `env:"CORS_ALLOW_CREDENTIALS"                  envDefault:"true"`
	MaxAge           int      `env:"CORS_MAX_AGE"                            envDefault:"86400"`
}

// ContextConfig controls how much conversation history is layered onto prompts.
type ContextConfig struct {
	Turns int `env:"CONTEXT_TURNS" envDefault:"5"`
}

// RoutingConfig contains router settings beyond the built-in rule table.
type RoutingConfig struct {
	// RulesFile optionally points at a YAML file of route override rules.
	RulesFile string `env:"ROUTING_RULES_FILE"`
}

// DepConfig is used for dependency injection with dig. Fields are matched by
// type, so each sub-config becomes individually injectable.
type DepConfig struct {
	dig.Out

	Server     *ServerConfig
	CORS       *CORSConfig
	Context    *ContextConfig
	Routing    *RoutingConfig
	History    *history.Config
	Gemini     *gemini.Config
	Mistral    *mistral.Config
	Together   *together.Config
	OpenRouter *openrouter.Config
	OpenAI     *openai.Config
}

// Load loads environment files and parses configuration.
func Load() *Config {
	for _, file := range []string{".env"} {
		_ = godotenv.Load(file)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// ParseDependenciesConfig returns pointers to sub-configs for dependency injection.
func ParseDependenciesConfig(cfg *Config) DepConfig {
	return DepConfig{
		Server:     &cfg.Server,
		CORS:       &cfg.CORS,
		Context:    &cfg.Context,
		Routing:    &cfg.Routing,
		History:    &cfg.History,
		Gemini:     &cfg.Gemini,
		Mistral:    &cfg.Mistral,
		Together:   &cfg.Together,
		OpenRouter: &cfg.OpenRouter,
		OpenAI:     &cfg.OpenAI,
	}
}
