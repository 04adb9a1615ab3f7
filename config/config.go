package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type OpenAI struct {
	APIKey              string        `yaml:"api_key" env:"OPENAI_API_KEY"`
	BaseURL             string        `yaml:"base_url" env:"OPENAI_BASE_URL" env-default:"https://models.inference.ai.azure.com"`
	PromptEnhancerModel string        `yaml:"prompt_enhancer_model" env:"PROMPT_ENHANCER_MODEL" env-default:"llama-3.3-70b-instruct"`
	ContextTokenLimit   int           `yaml:"context_token_limit" env:"CONTEXT_TOKEN_LIMIT" env-default:"0"`
	RequestTimeout      time.Duration `yaml:"request_timeout" env:"OPENAI_REQUEST_TIMEOUT" env-default:"3m"`
}

type Search struct {
	TavilyAPIKey   string        `yaml:"tavily_api_key" env:"TAVILY_API_KEY"`
	TavilyBaseURL  string        `yaml:"tavily_base_url" env:"TAVILY_BASE_URL" env-default:"https://api.tavily.com"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"TAVILY_REQUEST_TIMEOUT" env-default:"30s"`
}

type Storage struct {
	// Backend is one of redis, file or memory.
	Backend  string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"file"`
	Dir      string `yaml:"dir" env:"STORAGE_DIR" env-default:"./data"`
	BlobName string `yaml:"blob_name" env:"STORAGE_BLOB_NAME" env-default:"chat-storage"`
}

type Redis struct {
	Endpoint  string `yaml:"endpoint" env:"REDIS_ENDPOINT" env-default:"localhost:6379"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"websearch-chat:"`
}

type Telegram struct {
	Enabled             bool          `yaml:"enabled" env:"TELEGRAM_ENABLED" env-default:"false"`
	TelegramAPIToken    string        `env:"TELEGRAM_APITOKEN"`
	IsNotPublic         bool          `yaml:"is_not_public" env:"TELEGRAM_IS_NOT_PUBLIC" env-default:"true"`
	AllowedTelegramID   []int64       `yaml:"allowed_telegram_id" env:"ALLOWED_TELEGRAM_ID" env-separator:","`
	EditThrottle        time.Duration `yaml:"edit_throttle" env:"TELEGRAM_EDIT_THROTTLE" env-default:"2500ms"`
	UpdateTimeoutSecond int           `yaml:"update_timeout_seconds" env-default:"60"`
	Language            string        `yaml:"language" env:"TELEGRAM_LANGUAGE" env-default:"en"`
}

type Console struct {
	Enabled     bool   `yaml:"enabled" env:"CONSOLE_ENABLED" env-default:"true"`
	HistoryFile string `yaml:"history_file" env:"CONSOLE_HISTORY_FILE" env-default:".websearch-chat-history"`
}

type AIChat struct {
	SystemPrompt string   `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	SearchPrompt string   `yaml:"search_prompt" env:"SEARCH_PROMPT"`
	PinnedModel  string   `yaml:"pinned_model" env:"PINNED_MODEL" env-default:"gpt-4o"`
	Models       []string `yaml:"models" env:"AVAILABLE_MODELS" env-separator:"," env-default:"gpt-4o,gpt-4o-mini,Phi-4,Llama-3.3-70B-Instruct"`
}

type Log struct {
	Level     string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	NoColor   bool   `yaml:"no_color" env:"LOG_NO_COLOR" env-default:"false"`
	AddSource bool   `yaml:"add_source" env:"LOG_ADD_SOURCE" env-default:"false"`
}

type Config struct {
	OpenAI   OpenAI   `yaml:"openai"`
	Search   Search   `yaml:"search"`
	Storage  Storage  `yaml:"storage"`
	Redis    Redis    `yaml:"redis"`
	Telegram Telegram `yaml:"telegram"`
	Console  Console  `yaml:"console"`
	AIChat   AIChat   `yaml:"ai_chat"`
	Log      Log      `yaml:"log"`
}

// LoadConfig reads cfgPath when given and applies environment overrides on top.
func LoadConfig(cfgPath string) (*Config, error) {
	var cfg Config
	if cfgPath != "" {
		if err := cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
