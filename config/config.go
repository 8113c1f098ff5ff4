// Package config loads the application configuration with the precedence
// defaults, then YAML file, then RAGTUTOR_* environment variables.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chao-dotcom/RAGh-Tutor/agent"
	"github.com/chao-dotcom/RAGh-Tutor/guard"
	"github.com/chao-dotcom/RAGh-Tutor/llm"
	"github.com/chao-dotcom/RAGh-Tutor/memory"
	"github.com/chao-dotcom/RAGh-Tutor/rag"
)

// EnvPrefix is the root of every environment override, e.g.
// RAGTUTOR_PROVIDER_API_KEY or RAGTUTOR_RETRIEVAL_TOP_K.
const EnvPrefix = "RAGTUTOR"

// RetrievalConfig groups the retrieval pipeline settings.
type RetrievalConfig struct {
	rag.OrchestratorConfig `yaml:",inline"`

	Expansion rag.ExpanderConfig `yaml:"expansion"`
	BM25      rag.BM25Config     `yaml:"bm25"`
}

// RedisConfig configures the hot session store. An empty Addr disables
// Redis and persistence falls back to the in-memory store.
type RedisConfig struct {
	Addr       string        `yaml:"addr"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

// ArchiveConfig configures the SQLite cold store. An empty Path disables
// archiving.
type ArchiveConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is json or console.
	Format string `yaml:"format"`
}

// Config is the full application configuration.
type Config struct {
	Retrieval RetrievalConfig                `yaml:"retrieval"`
	Agent     agent.Config                   `yaml:"agent"`
	Memory    memory.ConversationStoreConfig `yaml:"memory"`
	Budget    guard.Config                   `yaml:"budget"`
	Provider  llm.OpenAIConfig               `yaml:"provider"`
	Redis     RedisConfig                    `yaml:"redis"`
	Archive   ArchiveConfig                  `yaml:"archive"`
	Log       LogConfig                      `yaml:"log"`
}

// Default returns the configuration used when neither file nor
// environment overrides anything.
func Default() *Config {
	return &Config{
		Retrieval: RetrievalConfig{
			OrchestratorConfig: rag.DefaultOrchestratorConfig(),
			Expansion:          rag.DefaultExpanderConfig(),
			BM25:               rag.DefaultBM25Config(),
		},
		Agent:    agent.DefaultConfig(),
		Memory:   memory.DefaultConversationStoreConfig(),
		Budget:   guard.DefaultConfig(),
		Provider: llm.DefaultOpenAIConfig(),
		Redis: RedisConfig{
			SessionTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration with the precedence defaults, YAML file,
// environment. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := applyEnv(reflect.ValueOf(cfg).Elem(), EnvPrefix); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []string
	if c.Retrieval.Alpha < 0 || c.Retrieval.Alpha > 1 {
		errs = append(errs, "retrieval.alpha must be in [0, 1]")
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, "retrieval.top_k must be positive")
	}
	if c.Agent.MaxIterations <= 0 {
		errs = append(errs, "agent.max_iterations must be positive")
	}
	if c.Memory.MaxHistory <= 0 {
		errs = append(errs, "memory.max_history must be positive")
	}
	if c.Memory.SummarizationThreshold < c.Memory.MaxHistory {
		errs = append(errs, "memory.summarization_threshold must be >= memory.max_history")
	}
	if c.Provider.Dimensions <= 0 {
		errs = append(errs, "provider.dimensions must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnv overrides struct fields from environment variables. Keys are
// derived from yaml tags: RAGTUTOR_<SECTION>_<FIELD>, inline structs
// stay on the parent prefix.
func applyEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		tag := t.Field(i).Tag.Get("yaml")
		if tag == "-" {
			continue
		}
		name, _, _ := strings.Cut(tag, ",")

		key := prefix
		if name != "" {
			key = prefix + "_" + strings.ToUpper(name)
		}

		if field.Kind() == reflect.Struct {
			if err := applyEnv(field, key); err != nil {
				return err
			}
			continue
		}

		value := os.Getenv(key)
		if value == "" {
			continue
		}
		if err := setField(field, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	}
	return nil
}
