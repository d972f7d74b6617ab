package deckdoc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/brunobiangulo/deckdoc/llm"
)

// DefaultOutputFilename is the file name offered for download.
const DefaultOutputFilename = "extracted_content_with_explanations.docx"

// Config holds all configuration for the converter.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.deckdoc/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "deckdoc".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.deckdoc/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// DisableStore runs without conversion history or explanation cache.
	DisableStore bool `json:"disable_store" yaml:"disable_store"`

	// LLM provider used for explanations
	Chat LLMConfig `json:"chat" yaml:"chat"`

	// Generation
	Temperature           float64 `json:"temperature" yaml:"temperature"`
	MaxTokens             int     `json:"max_tokens" yaml:"max_tokens"`                           // 0 leaves the limit to the provider
	RequestTimeoutSeconds int     `json:"request_timeout_seconds" yaml:"request_timeout_seconds"` // Per HTTP request
	SlideTimeoutSeconds   int     `json:"slide_timeout_seconds" yaml:"slide_timeout_seconds"`     // Per slide, retries included; 0 = none

	// Explanations
	Concurrency       int  `json:"concurrency" yaml:"concurrency"` // Parallel LLM requests (default 1, strictly sequential)
	CacheExplanations bool `json:"cache_explanations" yaml:"cache_explanations"`

	// Extraction
	IncludePlaceholderText bool `json:"include_placeholder_text" yaml:"include_placeholder_text"` // Body placeholders count as slide text

	// Output
	ImageWidthInches float64 `json:"image_width_inches" yaml:"image_width_inches"`
	OutputFilename   string  `json:"output_filename" yaml:"output_filename"`
	ExportTables     bool    `json:"export_tables" yaml:"export_tables"` // Also build an .xlsx with every table
}

// LLMConfig configures the LLM endpoint.
type LLMConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // azure, openai, ollama, lmstudio, openrouter, groq, xai, gemini, custom
	Model      string `json:"model" yaml:"model"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
	APIKey     string `json:"api_key" yaml:"api_key"`
	Deployment string `json:"deployment,omitempty" yaml:"deployment,omitempty"`   // azure only
	APIVersion string `json:"api_version,omitempty" yaml:"api_version,omitempty"` // azure only
}

// DefaultConfig returns a Config targeting an Azure OpenAI GPT-4 deployment.
// Endpoint and key still have to come from the environment or a file.
func DefaultConfig() Config {
	return Config{
		DBName:     "deckdoc",
		StorageDir: "home",
		Chat: LLMConfig{
			Provider:   "azure",
			Model:      "gpt-4",
			APIVersion: "2024-05-01-preview",
		},
		Temperature:            0.5,
		RequestTimeoutSeconds:  120,
		Concurrency:            1,
		CacheExplanations:      true,
		IncludePlaceholderText: true,
		ImageWidthInches:       5.0,
		OutputFilename:         DefaultOutputFilename,
	}
}

// LoadConfig builds a Config from DefaultConfig, an optional JSON file at
// path, a .env file in the working directory and DECKDOC_* environment
// variables, in increasing order of precedence. The result is validated.
func LoadConfig(path string) (Config, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	strs := []struct {
		key  string
		dest *string
	}{
		{"DECKDOC_DB_PATH", &c.DBPath},
		{"DECKDOC_DB_NAME", &c.DBName},
		{"DECKDOC_STORAGE_DIR", &c.StorageDir},
		{"DECKDOC_CHAT_PROVIDER", &c.Chat.Provider},
		{"DECKDOC_CHAT_MODEL", &c.Chat.Model},
		{"DECKDOC_CHAT_BASE_URL", &c.Chat.BaseURL},
		{"DECKDOC_CHAT_API_KEY", &c.Chat.APIKey},
		{"DECKDOC_CHAT_DEPLOYMENT", &c.Chat.Deployment},
		{"DECKDOC_CHAT_API_VERSION", &c.Chat.APIVersion},
		{"DECKDOC_OUTPUT_FILENAME", &c.OutputFilename},
	}
	for _, s := range strs {
		if v := os.Getenv(s.key); v != "" {
			*s.dest = v
		}
	}

	ints := []struct {
		key  string
		dest *int
	}{
		{"DECKDOC_MAX_TOKENS", &c.MaxTokens},
		{"DECKDOC_REQUEST_TIMEOUT", &c.RequestTimeoutSeconds},
		{"DECKDOC_SLIDE_TIMEOUT", &c.SlideTimeoutSeconds},
		{"DECKDOC_CONCURRENCY", &c.Concurrency},
	}
	for _, s := range ints {
		if v := os.Getenv(s.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, s.key, v)
			}
			*s.dest = n
		}
	}

	floats := []struct {
		key  string
		dest *float64
	}{
		{"DECKDOC_TEMPERATURE", &c.Temperature},
		{"DECKDOC_IMAGE_WIDTH", &c.ImageWidthInches},
	}
	for _, s := range floats {
		if v := os.Getenv(s.key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, s.key, v)
			}
			*s.dest = f
		}
	}

	bools := []struct {
		key  string
		dest *bool
	}{
		{"DECKDOC_DISABLE_STORE", &c.DisableStore},
		{"DECKDOC_CACHE_EXPLANATIONS", &c.CacheExplanations},
		{"DECKDOC_INCLUDE_PLACEHOLDER_TEXT", &c.IncludePlaceholderText},
		{"DECKDOC_EXPORT_TABLES", &c.ExportTables},
	}
	for _, s := range bools {
		if v := os.Getenv(s.key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidConfig, s.key, v)
			}
			*s.dest = b
		}
	}

	// Fallback: well-known provider env vars.
	switch c.Chat.Provider {
	case "azure":
		fillFromEnv(&c.Chat.APIKey, "AZURE_OPENAI_API_KEY")
		fillFromEnv(&c.Chat.BaseURL, "AZURE_OPENAI_ENDPOINT")
		fillFromEnv(&c.Chat.Deployment, "AZURE_OPENAI_DEPLOYMENT")
		if v := os.Getenv("OPENAI_API_VERSION"); v != "" && os.Getenv("DECKDOC_CHAT_API_VERSION") == "" {
			c.Chat.APIVersion = v
		}
	case "openai":
		fillFromEnv(&c.Chat.APIKey, "OPENAI_API_KEY")
	case "groq":
		fillFromEnv(&c.Chat.APIKey, "GROQ_API_KEY")
	case "openrouter":
		fillFromEnv(&c.Chat.APIKey, "OPENROUTER_API_KEY")
	case "xai":
		fillFromEnv(&c.Chat.APIKey, "XAI_API_KEY")
	case "gemini":
		fillFromEnv(&c.Chat.APIKey, "GEMINI_API_KEY")
	}
	return nil
}

func fillFromEnv(dest *string, key string) {
	if *dest == "" {
		*dest = os.Getenv(key)
	}
}

// Validate reports impossible values. It does not check credentials; those
// are verified when the provider is built.
func (c *Config) Validate() error {
	var problems []string
	if c.Temperature < 0 || c.Temperature > 2 {
		problems = append(problems, fmt.Sprintf("temperature %v outside [0, 2]", c.Temperature))
	}
	if c.MaxTokens < 0 {
		problems = append(problems, "max_tokens must not be negative")
	}
	if c.RequestTimeoutSeconds < 0 || c.SlideTimeoutSeconds < 0 {
		problems = append(problems, "timeouts must not be negative")
	}
	if c.Concurrency < 0 {
		problems = append(problems, "concurrency must not be negative")
	}
	if c.ImageWidthInches < 0 || c.ImageWidthInches > 20 {
		problems = append(problems, fmt.Sprintf("image_width_inches %v outside [0, 20]", c.ImageWidthInches))
	}
	if c.OutputFilename != "" && !strings.EqualFold(filepath.Ext(c.OutputFilename), ".docx") {
		problems = append(problems, fmt.Sprintf("output_filename %q must end in .docx", c.OutputFilename))
	}
	if strings.ContainsAny(c.OutputFilename, `/\`) {
		problems = append(problems, "output_filename must not contain a path")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// llmConfig converts the chat settings for the llm package.
func (c *Config) llmConfig() llm.Config {
	return llm.Config{
		Provider:   c.Chat.Provider,
		Model:      c.Chat.Model,
		BaseURL:    c.Chat.BaseURL,
		APIKey:     c.Chat.APIKey,
		Deployment: c.Chat.Deployment,
		APIVersion: c.Chat.APIVersion,
		Timeout:    time.Duration(c.RequestTimeoutSeconds) * time.Second,
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "deckdoc"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".deckdoc", name+".db")
	}
}
