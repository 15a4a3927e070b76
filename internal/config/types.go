package config

import (
	"time"

	"github.com/alexisbeaulieu97/reportcheck/internal/llm"
	"github.com/alexisbeaulieu97/reportcheck/internal/retry"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "reportcheck.yaml"

// Run store backends.
const (
	RunsMemory = "memory"
	RunsFile   = "file"
	RunsS3     = "s3"
)

// Config represents the full reportcheck configuration document.
type Config struct {
	DefaultModel string       `yaml:"default_model,omitempty" validate:"omitempty,model_name"`
	Models       []Model      `yaml:"models,omitempty" validate:"omitempty,dive"`
	Retry        Retry        `yaml:"retry,omitempty"`
	Runs         Runs         `yaml:"runs,omitempty"`
	ObjectStore  *ObjectStore `yaml:"object_store,omitempty" validate:"omitempty"`
	Export       Export       `yaml:"export,omitempty"`
	Notify       Notify       `yaml:"notify,omitempty"`
	Prompts      Prompts      `yaml:"prompts,omitempty"`
	Log          Log          `yaml:"log,omitempty"`
}

// Model declares one selectable model. Entries override built-in models of
// the same name.
type Model struct {
	Name        string        `yaml:"name" validate:"required,model_name"`
	Provider    string        `yaml:"provider" validate:"required,oneof=openai yandex gigachat gemini"`
	Model       string        `yaml:"model" validate:"required"`
	BaseURL     string        `yaml:"base_url,omitempty" validate:"omitempty,url"`
	AuthURL     string        `yaml:"auth_url,omitempty" validate:"omitempty,url"`
	APIKeyEnv   string        `yaml:"api_key_env" validate:"required,env_name"`
	KeyPoolSize int           `yaml:"key_pool_size,omitempty" validate:"min=0,max=64"`
	FolderIDEnv string        `yaml:"folder_id_env,omitempty" validate:"omitempty,env_name"`
	ScopeEnv    string        `yaml:"scope_env,omitempty" validate:"omitempty,env_name"`
	Temperature float64       `yaml:"temperature,omitempty" validate:"min=0,max=2"`
	MaxTokens   int           `yaml:"max_tokens,omitempty" validate:"min=0"`
	Timeout     time.Duration `yaml:"timeout,omitempty" validate:"min=0"`
	InsecureTLS bool          `yaml:"insecure_tls,omitempty"`
}

// Retry configures the per-stage retry policy.
type Retry struct {
	MaxAttempts int           `yaml:"max_attempts,omitempty" validate:"omitempty,min=1,max=10"`
	BaseDelay   time.Duration `yaml:"base_delay,omitempty" validate:"min=0"`
	MaxDelay    time.Duration `yaml:"max_delay,omitempty" validate:"min=0"`
}

// Runs selects where run records are persisted.
type Runs struct {
	Backend string `yaml:"backend,omitempty" validate:"omitempty,oneof=memory file s3"`
	Dir     string `yaml:"dir,omitempty"`
	Prefix  string `yaml:"prefix,omitempty"`
}

// ObjectStore describes an S3-compatible bucket.
type ObjectStore struct {
	Endpoint     string `yaml:"endpoint" validate:"required,hostname_port|hostname"`
	Bucket       string `yaml:"bucket" validate:"required,min=3,max=63"`
	Region       string `yaml:"region,omitempty"`
	AccessKeyEnv string `yaml:"access_key_env" validate:"required,env_name"`
	SecretKeyEnv string `yaml:"secret_key_env" validate:"required,env_name"`
	UseSSL       bool   `yaml:"use_ssl,omitempty"`
	InsecureTLS  bool   `yaml:"insecure_tls,omitempty"`
}

// Export configures where results documents are written after a review.
type Export struct {
	Driver  string `yaml:"driver,omitempty" validate:"omitempty,oneof=pgx mysql"`
	DSNEnv  string `yaml:"dsn_env,omitempty" validate:"omitempty,env_name"`
	Table   string `yaml:"table,omitempty" validate:"omitempty,sql_ident"`
	Objects bool   `yaml:"objects,omitempty"`
}

// Notify configures batch summary notifications.
type Notify struct {
	DiscordTokenEnv string `yaml:"discord_token_env,omitempty" validate:"omitempty,env_name"`
	DiscordChannel  string `yaml:"discord_channel,omitempty" validate:"omitempty,numeric"`
}

// Prompts maps stage identifiers to template files that replace the
// built-in defaults.
type Prompts struct {
	Dir   string            `yaml:"dir,omitempty"`
	Files map[string]string `yaml:"files,omitempty" validate:"omitempty,dive,keys,stage_id,endkeys,required"`
}

// Log configures the process logger.
type Log struct {
	Level string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Human bool   `yaml:"human,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DefaultModel == "" {
		c.DefaultModel = llm.DefaultModel
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = retry.DefaultMaxAttempts
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = retry.DefaultBaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = retry.DefaultMaxDelay
	}
	if c.Runs.Backend == "" {
		c.Runs.Backend = RunsMemory
	}
	if c.Runs.Dir == "" {
		c.Runs.Dir = ".reportcheck/runs"
	}
	if c.Runs.Prefix == "" {
		c.Runs.Prefix = "runs/"
	}
	if c.Export.Table == "" {
		c.Export.Table = "reviews"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Catalog returns the built-in models with configured entries layered on top.
func (c *Config) Catalog() []llm.ModelSpec {
	catalog := llm.DefaultCatalog()
	for _, m := range c.Models {
		catalog = append(catalog, m.spec())
	}
	return catalog
}

func (m Model) spec() llm.ModelSpec {
	return llm.ModelSpec{
		Name:        m.Name,
		Provider:    m.Provider,
		Model:       m.Model,
		BaseURL:     m.BaseURL,
		AuthURL:     m.AuthURL,
		APIKeyEnv:   m.APIKeyEnv,
		KeyPoolSize: m.KeyPoolSize,
		FolderIDEnv: m.FolderIDEnv,
		ScopeEnv:    m.ScopeEnv,
		Temperature: m.Temperature,
		MaxTokens:   m.MaxTokens,
		Timeout:     m.Timeout,
		InsecureTLS: m.InsecureTLS,
	}
}

// RetryPolicy converts the retry section into a policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		MaxDelay:    c.Retry.MaxDelay,
	}
}
