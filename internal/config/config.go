package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAnkiURL     = "http://localhost:8765"
	DefaultDeck        = "2-Recent"
	DefaultBasicModel  = "Basic (synced)"
	DefaultVocabModel  = "Vocab.2023-04-08"
	DefaultNotebookURL = "https://read.amazon.com/notebook"
	DefaultBookLimit   = 10
)

// LLMConfig holds completion backend configuration
type LLMConfig struct {
	Provider    string `yaml:"provider"` // "openai", "anthropic", "perplexity", "ollama", or any OpenAI-compatible
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"` // custom endpoint; defaults per provider
	Model       string `yaml:"model"`    // defaults per provider
	BatchSize   int    `yaml:"batch_size"`
	MaxAttempts int    `yaml:"max_attempts"`
}

// AnkiConfig holds AnkiConnect and note type settings
type AnkiConfig struct {
	URL        string `yaml:"url"`
	Deck       string `yaml:"deck"`
	BasicModel string `yaml:"basic_model"`
	VocabModel string `yaml:"vocab_model"`
}

// KindleConfig holds the Kindle notebook capture settings
type KindleConfig struct {
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	NotebookURL string `yaml:"notebook_url"`
	BookLimit   int    `yaml:"book_limit"`
	Headless    bool   `yaml:"headless"`
	RemoteURL   string `yaml:"remote_url"` // attach to a running browser instead of launching one
}

// Config holds application configuration
type Config struct {
	DataDir        string       `yaml:"data_dir"`
	CheckpointFile string       `yaml:"checkpoint_file"`
	ReadwiseToken  string       `yaml:"readwise_token"`
	ReadwiseURL    string       `yaml:"readwise_url"`
	LLM            LLMConfig    `yaml:"llm"`
	Anki           AnkiConfig   `yaml:"anki"`
	Kindle         KindleConfig `yaml:"kindle"`
	LogLevel       string       `yaml:"log_level"`
	LogFile        string       `yaml:"log_file"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		LLM: LLMConfig{MaxAttempts: 1},
		Anki: AnkiConfig{
			URL:        DefaultAnkiURL,
			Deck:       DefaultDeck,
			BasicModel: DefaultBasicModel,
			VocabModel: DefaultVocabModel,
		},
		Kindle: KindleConfig{
			NotebookURL: DefaultNotebookURL,
			BookLimit:   DefaultBookLimit,
			Headless:    true,
		},
		LogLevel: "info",
	}
}

// GetLLMConfig returns the effective LLM configuration, applying backward
// compatibility for the legacy OPENAI_API_KEY variable.
func (c *Config) GetLLMConfig() LLMConfig {
	llm := c.LLM

	if llm.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			llm.APIKey = key
			if llm.Provider == "" {
				llm.Provider = "openai"
			}
		}
	}
	if llm.MaxAttempts <= 0 {
		llm.MaxAttempts = 1
	}

	return llm
}

// HasLLM reports whether a completion backend is configured
func (c *Config) HasLLM() bool {
	llm := c.GetLLMConfig()
	return llm.APIKey != "" || llm.Provider == "ollama"
}

// CheckpointPath returns where the watermark file lives
func (c *Config) CheckpointPath() string {
	if c.CheckpointFile != "" {
		return c.CheckpointFile
	}
	return filepath.Join(c.DataDir, "last_run.json")
}

// Load loads configuration from the default config file and environment
// variables. Environment variables take precedence over config file values.
func Load() (*Config, error) {
	return LoadFile(getConfigPath())
}

// LoadFile is Load with an explicit config file path. A missing file is
// not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFromFile(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg.loadFromEnv()

	if cfg.DataDir == "" {
		dir, err := defaultDataDir()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = dir
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	if path == "" {
		return os.ErrNotExist
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		c.DataDir = dir
	}
	if file := os.Getenv("LAST_RUN_FILE"); file != "" {
		c.CheckpointFile = file
	}

	// Prefer READWISE_TOKEN, fall back to legacy READWISE_API_KEY
	if token := os.Getenv("READWISE_TOKEN"); token != "" {
		c.ReadwiseToken = token
	} else if token := os.Getenv("READWISE_API_KEY"); token != "" {
		c.ReadwiseToken = token
	}
	if url := os.Getenv("READWISE_BASE_URL"); url != "" {
		c.ReadwiseURL = url
	}

	if key := os.Getenv("LLM_API_KEY"); key != "" {
		c.LLM.APIKey = key
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		c.LLM.Provider = provider
	}
	if baseURL := os.Getenv("LLM_BASE_URL"); baseURL != "" {
		c.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if n := os.Getenv("LLM_BATCH_SIZE"); n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			c.LLM.BatchSize = v
		}
	}

	if user := os.Getenv("AMAZON_USER"); user != "" {
		c.Kindle.User = user
	}
	if pass := os.Getenv("AMAZON_PASS"); pass != "" {
		c.Kindle.Password = pass
	}
	if url := os.Getenv("ANKI_CONNECT_URL"); url != "" {
		c.Anki.URL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

// getConfigPath returns the path to the config file
// Priority: $ANKIFY_CONFIG > ~/.config/readwise-ankify/config.yaml
func getConfigPath() string {
	if configPath := os.Getenv("ANKIFY_CONFIG"); configPath != "" {
		return configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "readwise-ankify", "config.yaml")
}

// ConfigPath returns the config file Load reads
func ConfigPath() string {
	return getConfigPath()
}

func GetConfigDir() (string, error) {
	configPath := getConfigPath()
	if configPath == "" {
		return "", fmt.Errorf("cannot determine config path")
	}
	return filepath.Dir(configPath), nil
}

func defaultDataDir() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "data"), nil
}

// SaveExampleConfig writes an example config file to path (the default
// location when empty) unless one already exists, and returns the path.
func SaveExampleConfig(path string) (string, error) {
	if path == "" {
		path = getConfigPath()
	}
	if path == "" {
		return "", fmt.Errorf("cannot determine config path")
	}

	if _, err := os.Stat(path); err == nil {
		return path, nil // Already exists, don't overwrite
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", err
	}

	example := `# Readwise Ankify Configuration

# Where snapshots, the run journal and the checkpoint are kept
# data_dir: "~/.config/readwise-ankify/data"
# checkpoint_file: ""      # defaults to <data_dir>/last_run.json

# Readwise API token for ankify-recent (https://readwise.io/access_token)
readwise_token: ""
# readwise_url: "https://readwise.io/api/v2"

# Optional: completion backend used to write answers, definitions and notes.
# Without one, items are created from the annotation text alone.
# Environment variables LLM_API_KEY, LLM_PROVIDER, LLM_BASE_URL, LLM_MODEL also work.
llm:
  provider: "openai"       # "openai", "anthropic", "perplexity", "ollama", or custom
  api_key: ""
  # base_url: ""           # override endpoint (defaults per provider)
  # model: ""              # override model (defaults per provider)
  batch_size: 0            # annotations per request, 0 = all in one
  max_attempts: 1

anki:
  url: "http://localhost:8765"
  deck: "2-Recent"
  basic_model: "Basic (synced)"
  vocab_model: "Vocab.2023-04-08"

# Kindle notebook capture (AMAZON_USER / AMAZON_PASS also work)
kindle:
  user: ""
  password: ""
  book_limit: 10
  headless: true
  # remote_url: "ws://127.0.0.1:9222/devtools/browser/..."

log_level: "info"
# log_file: "~/.config/readwise-ankify/ankify.log"
`

	return path, os.WriteFile(path, []byte(example), 0600)
}
