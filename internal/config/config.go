package config

import (
	"fmt"
	"os"
	"time"

	"catalogsync-backend/internal/catalog/state"
	"catalogsync-backend/internal/media/freeimage"
	"catalogsync-backend/internal/report"
	"catalogsync-backend/internal/sink/gsheets"
	"catalogsync-backend/internal/source/winediscovery"
	"catalogsync-backend/lib/configutil"
	"catalogsync-backend/lib/sqliteutil"
	"catalogsync-backend/lib/telemetry"
)

const DefaultFile = "catalogsync.json5"

type SinkKind string

const (
	SinkXlsx    SinkKind = "xlsx"
	SinkGsheets SinkKind = "gsheets"
	SinkMemory  SinkKind = "memory"
)

type StateBackend string

const (
	StateSQLite StateBackend = "sqlite"
	StateRedis  StateBackend = "redis"
	StateMemory StateBackend = "memory"
)

type LLMProvider string

const (
	LLMNone      LLMProvider = "none"
	LLMAnthropic LLMProvider = "anthropic"
	LLMOpenAI    LLMProvider = "openai"
)

type XlsxConfig struct {
	Path  string `json:"path"`
	Sheet string `json:"sheet"`
}

type SinkConfig struct {
	Kind    SinkKind       `json:"kind"`
	Xlsx    XlsxConfig     `json:"xlsx"`
	Gsheets gsheets.Config `json:"gsheets"`
}

type StateConfig struct {
	Backend StateBackend      `json:"backend"`
	SQLite  sqliteutil.Config `json:"sqlite"`
	Redis   state.RedisConfig `json:"redis"`
}

type LLMConfig struct {
	Provider LLMProvider `json:"provider"`
	Model    string      `json:"model"`
	ApiKey   string      `json:"api_key"`
	// BaseURL is only used by openai compatible providers.
	BaseURL           string `json:"base_url"`
	TimeoutSeconds    int    `json:"timeout_seconds"`
	RequestsPerMinute int    `json:"requests_per_minute"`
	// DisableReadability turns off the local text oracle used when no model
	// is configured.
	DisableReadability bool `json:"disable_readability"`
}

func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type PipelineConfig struct {
	MaxConcurrency int  `json:"max_concurrency"`
	MaxProducts    int  `json:"max_products"`
	RefreshImages  bool `json:"refresh_images"`
}

type Config struct {
	Source    winediscovery.Config `json:"source"`
	Pipeline  PipelineConfig       `json:"pipeline"`
	Sink      SinkConfig           `json:"sink"`
	State     StateConfig          `json:"state"`
	Images    freeimage.Config     `json:"images"`
	LLM       LLMConfig            `json:"llm"`
	Schedule  string               `json:"schedule"`
	Timezone  string               `json:"timezone"`
	Smtp      report.SmtpConfig    `json:"smtp"`
	Telemetry telemetry.Config     `json:"telemetry"`
}

func Defaults() Config {
	return Config{
		Source: winediscovery.Config{
			CategoryURL:         winediscovery.DefaultCategoryURL,
			RequestDelayMs:      1000,
			NavigationTimeoutMs: 20_000,
			MaxRetries:          3,
		},
		Pipeline: PipelineConfig{
			MaxConcurrency: 2,
		},
		Sink: SinkConfig{
			Kind: SinkXlsx,
			Xlsx: XlsxConfig{
				Path:  "output/catalog.xlsx",
				Sheet: "Products",
			},
			Gsheets: gsheets.Config{
				Tab:                "Products",
				ServiceAccountFile: "service_account.json",
			},
		},
		State: StateConfig{
			Backend: StateSQLite,
			SQLite: sqliteutil.Config{
				File: "state/pipeline.db",
			},
		},
		Images: freeimage.Config{
			Endpoint:              freeimage.DefaultEndpoint,
			ConnectTimeoutSeconds: 15,
			ReadTimeoutSeconds:    60,
			MaxRetries:            3,
		},
		LLM: LLMConfig{
			Provider:       LLMNone,
			TimeoutSeconds: 30,
		},
		Schedule: "0 6 * * *",
		Timezone: "Europe/Moscow",
	}
}

// secrets that may be supplied through the environment instead of the
// config file, later names win over earlier ones
var envSecrets = []struct {
	names []string
	apply func(c *Config, value string)
}{
	{
		names: []string{"FREEIMAGE_API_KEY", "IMAGE_HOST_API_KEY"},
		apply: func(c *Config, v string) { c.Images.ApiKey = v },
	},
	{
		names: []string{"GOOGLE_SHEET_ID"},
		apply: func(c *Config, v string) { c.Sink.Gsheets.SpreadsheetID = v },
	},
	{
		names: []string{"GOOGLE_SERVICE_ACCOUNT_JSON"},
		apply: func(c *Config, v string) { c.Sink.Gsheets.ServiceAccountFile = v },
	},
	{
		names: []string{"LIBSQL_AUTH_TOKEN"},
		apply: func(c *Config, v string) { c.State.SQLite.AuthToken = v },
	},
	{
		names: []string{"SMTP_PASSWORD"},
		apply: func(c *Config, v string) { c.Smtp.Password = v },
	},
}

// applyEnv fills secrets from the environment. The model key is picked by
// provider so an OPENAI_API_KEY never leaks into an anthropic request.
func applyEnv(c *Config, lookup func(string) (string, bool)) {
	for _, secret := range envSecrets {
		for _, name := range secret.names {
			value, ok := lookup(name)
			if ok && value != "" {
				secret.apply(c, value)
			}
		}
	}

	var keyName string
	switch c.LLM.Provider {
	case LLMAnthropic:
		keyName = "ANTHROPIC_API_KEY"
	case LLMOpenAI:
		keyName = "OPENAI_API_KEY"
	}
	if keyName != "" {
		if value, ok := lookup(keyName); ok && value != "" {
			c.LLM.ApiKey = value
		}
	}
}

func (c Config) Validate() error {
	switch c.Sink.Kind {
	case SinkXlsx:
		if c.Sink.Xlsx.Path == "" {
			return fmt.Errorf("sink.xlsx.path is required")
		}
	case SinkGsheets:
		if c.Sink.Gsheets.SpreadsheetID == "" {
			return fmt.Errorf("sink.gsheets.spreadsheet_id is required")
		}
	case SinkMemory:
	default:
		return fmt.Errorf("unknown sink kind '%s'", c.Sink.Kind)
	}

	switch c.State.Backend {
	case StateSQLite:
		if c.State.SQLite.File == "" && c.State.SQLite.Url == "" {
			return fmt.Errorf("state.sqlite needs a file or url")
		}
	case StateRedis:
		if c.State.Redis.Addr == "" {
			return fmt.Errorf("state.redis.addr is required")
		}
	case StateMemory:
	default:
		return fmt.Errorf("unknown state backend '%s'", c.State.Backend)
	}

	switch c.LLM.Provider {
	case LLMNone, "":
	case LLMAnthropic, LLMOpenAI:
		if c.LLM.Model == "" {
			return fmt.Errorf("llm.model is required for provider '%s'", c.LLM.Provider)
		}
		if c.LLM.ApiKey == "" {
			return fmt.Errorf("no api key configured for llm provider '%s'", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unknown llm provider '%s'", c.LLM.Provider)
	}

	if c.Pipeline.MaxConcurrency < 1 {
		return fmt.Errorf("pipeline.max_concurrency must be at least 1")
	}
	return nil
}

// Load reads the config file (and its .local override) on top of Defaults,
// then applies environment secrets. Zero values in a file keep the default.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultFile
	}
	config, err := configutil.ReadWithDefaults(path, Defaults())
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	applyEnv(&config, os.LookupEnv)
	err = config.Validate()
	if err != nil {
		return Config{}, err
	}
	return config, nil
}
