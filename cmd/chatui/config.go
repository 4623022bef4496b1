package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/MegaGrindStone/chat-web-ui/internal/backend"
	"github.com/MegaGrindStone/chat-web-ui/internal/chat"
	"github.com/MegaGrindStone/chat-web-ui/internal/services"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type streamConfig interface {
	streamer(cfg config, client *backend.Client, logger *slog.Logger) (chat.Streamer, error)
}

// BaseLLMConfig contains the common fields for all direct provider configurations.
type BaseLLMConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
}

type baseConfig struct {
	Port                 string        `yaml:"port"`
	BackendURL           string        `yaml:"backendURL"`
	LogLevel             string        `yaml:"logLevel"`
	Retries              *int          `yaml:"retries"`
	RetryDelay           time.Duration `yaml:"retryDelay"`
	Throttle             time.Duration `yaml:"throttle"`
	SystemPrompt         string        `yaml:"systemPrompt"`
	TitleGeneratorPrompt string        `yaml:"titleGeneratorPrompt"`
	HistorySize          int           `yaml:"historySize"`
}

type config struct {
	baseConfig `yaml:",inline"`

	Stream streamConfig `yaml:"-"`
}

// backendStreamConfig streams replies from the backend's own stream endpoint.
type backendStreamConfig struct {
	Provider string `yaml:"provider"`
}

type openAIConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string                    `yaml:"apiKey"`
	BaseURL       string                    `yaml:"baseURL"`
	Parameters    services.OpenAIParameters `yaml:"parameters"`
}

type openRouterConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string                    `yaml:"apiKey"`
	Parameters    services.OpenAIParameters `yaml:"parameters"`
}

type ollamaConfig struct {
	BaseLLMConfig `yaml:",inline"`
	Host          string                    `yaml:"host"`
	Parameters    services.OpenAIParameters `yaml:"parameters"`
}

type anthropicConfig struct {
	BaseLLMConfig `yaml:",inline"`
	APIKey        string `yaml:"apiKey"`
	MaxTokens     int    `yaml:"maxTokens"`
}

const (
	defaultPort       = "8080"
	defaultBackendURL = "http://localhost:8000"

	defaultTitleGeneratorPrompt = "Generate a short title, at most six words, for a conversation that starts " +
		"with the following message. Answer with the title only."
)

func defaultConfig() config {
	return config{
		baseConfig: baseConfig{
			Port:                 defaultPort,
			BackendURL:           defaultBackendURL,
			LogLevel:             "info",
			RetryDelay:           backend.DefaultRetryDelay,
			Throttle:             chat.DefaultThrottle,
			TitleGeneratorPrompt: defaultTitleGeneratorPrompt,
			HistorySize:          services.DefaultHistorySize,
		},
		Stream: backendStreamConfig{Provider: "backend"},
	}
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		baseConfig `yaml:",inline"`
		Stream     map[string]any `yaml:"stream"`
	}
	rawConfig.baseConfig = c.baseConfig

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.baseConfig = rawConfig.baseConfig

	if len(rawConfig.Stream) == 0 {
		c.Stream = backendStreamConfig{Provider: "backend"}
		return nil
	}

	provider, ok := rawConfig.Stream["provider"].(string)
	if !ok {
		return fmt.Errorf("stream provider is required")
	}

	streamRawYAML, err := yaml.Marshal(rawConfig.Stream)
	if err != nil {
		return err
	}

	var stream streamConfig
	switch provider {
	case "backend":
		stream = &backendStreamConfig{}
	case "openai":
		stream = &openAIConfig{}
	case "openrouter":
		stream = &openRouterConfig{}
	case "ollama":
		stream = &ollamaConfig{}
	case "anthropic":
		stream = &anthropicConfig{}
	default:
		return fmt.Errorf("unknown stream provider: %s", provider)
	}

	if err := yaml.Unmarshal(streamRawYAML, stream); err != nil {
		return err
	}

	c.Stream = stream
	return nil
}

// loadConfig reads the YAML file at path over the defaults, then applies the environment. A
// missing file is not an error. A .env file in the working directory is loaded first.
func loadConfig(path string) (config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	if v := os.Getenv("CHATUI_BACKEND_URL"); v != "" {
		cfg.BackendURL = v
	}
	if v := os.Getenv("CHATUI_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("CHATUI_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}

func (c config) slogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c config) backendOptions(logger *slog.Logger) []backend.Option {
	opts := []backend.Option{
		backend.WithRetryDelay(c.RetryDelay),
		backend.WithLogger(logger),
	}
	if c.Retries != nil {
		opts = append(opts, backend.WithRetries(*c.Retries))
	}
	return opts
}

func (backendStreamConfig) streamer(_ config, client *backend.Client, _ *slog.Logger) (chat.Streamer, error) {
	return client, nil
}

func (o openAIConfig) streamer(cfg config, client *backend.Client, logger *slog.Logger) (chat.Streamer, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	opts := cfg.openAIOptions(o.Parameters, client, logger)
	if o.BaseURL != "" {
		opts = append(opts, services.WithOpenAIBaseURL(o.BaseURL))
	}
	return services.NewOpenAI(apiKey, o.Model, cfg.SystemPrompt, opts...), nil
}

func (o openRouterConfig) streamer(cfg config, client *backend.Client, logger *slog.Logger) (chat.Streamer, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
	}
	return services.NewOpenRouter(apiKey, o.Model, cfg.SystemPrompt, cfg.openAIOptions(o.Parameters, client, logger)...), nil
}

func (o ollamaConfig) streamer(cfg config, client *backend.Client, logger *slog.Logger) (chat.Streamer, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	return services.NewOllama(host, o.Model, cfg.SystemPrompt, cfg.openAIOptions(o.Parameters, client, logger)...), nil
}

func (a anthropicConfig) streamer(cfg config, client *backend.Client, logger *slog.Logger) (chat.Streamer, error) {
	if a.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := a.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	return services.NewAnthropic(apiKey, a.Model, a.MaxTokens,
		services.WithAnthropicSystemPrompt(cfg.SystemPrompt),
		services.WithAnthropicHistory(client, cfg.HistorySize),
		services.WithAnthropicLogger(logger),
	), nil
}

func (c config) openAIOptions(
	params services.OpenAIParameters,
	client *backend.Client,
	logger *slog.Logger,
) []services.OpenAIOption {
	return []services.OpenAIOption{
		services.WithHistory(client, c.HistorySize),
		services.WithTitlePrompt(c.TitleGeneratorPrompt),
		services.WithParameters(params),
		services.WithOpenAILogger(logger),
	}
}
