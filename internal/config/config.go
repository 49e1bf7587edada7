package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Uploads UploadsConfig `yaml:"uploads" mapstructure:"uploads"`
	Chain   ChainConfig   `yaml:"chain" mapstructure:"chain"`
	Model   ModelConfig   `yaml:"model" mapstructure:"model"`
	Eval    EvalConfig    `yaml:"eval" mapstructure:"eval"`
	Session SessionConfig `yaml:"session" mapstructure:"session"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address string `yaml:"address" mapstructure:"address"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// UploadsConfig configures on-disk document storage.
type UploadsConfig struct {
	Dir         string `yaml:"dir" mapstructure:"dir"`
	MaxFileSize int64  `yaml:"max_file_size" mapstructure:"max_file_size"`
}

// ChainConfig configures the chain-anchor client. Anchoring is disabled
// when the RPC URL is empty; RFQs and bids are then created off-chain only.
type ChainConfig struct {
	RPCURL         string        `yaml:"rpc_url" mapstructure:"rpc_url"`
	PrivateKey     string        `yaml:"private_key" mapstructure:"private_key"`
	DescriptorPath string        `yaml:"descriptor_path" mapstructure:"descriptor_path"`
	ChainID        int64         `yaml:"chain_id" mapstructure:"chain_id"`
	GasLimit       uint64        `yaml:"gas_limit" mapstructure:"gas_limit"`
	GasPriceGwei   int64         `yaml:"gas_price_gwei" mapstructure:"gas_price_gwei"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// ModelConfig configures the generative and embedding model collaborators.
type ModelConfig struct {
	AnthropicKey   string        `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	AnthropicModel string        `yaml:"anthropic_model" mapstructure:"anthropic_model"`
	MaxTokens      int64         `yaml:"max_tokens" mapstructure:"max_tokens"`
	EmbedBaseURL   string        `yaml:"embed_base_url" mapstructure:"embed_base_url"`
	EmbedKey       string        `yaml:"embed_key" mapstructure:"embed_key"`
	EmbedModel     string        `yaml:"embed_model" mapstructure:"embed_model"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// EvalConfig holds the scoring design parameters. The defaults mirror the
// documented behavior and must stay configurable for parity tuning.
type EvalConfig struct {
	PassThreshold    float64 `yaml:"pass_threshold" mapstructure:"pass_threshold"`
	ClarifyThreshold float64 `yaml:"clarify_threshold" mapstructure:"clarify_threshold"`
	DefaultWeight    float64 `yaml:"default_weight" mapstructure:"default_weight"`
	QualificationCap int     `yaml:"qualification_cap" mapstructure:"qualification_cap"`
}

// SessionConfig configures session cookies.
type SessionConfig struct {
	TTL time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RFQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", "0.0.0.0:8080")
	v.SetDefault("uploads.dir", "./uploads")
	v.SetDefault("uploads.max_file_size", 10<<20)
	v.SetDefault("chain.chain_id", 1337)
	v.SetDefault("chain.gas_limit", 500000)
	v.SetDefault("chain.gas_price_gwei", 10)
	v.SetDefault("chain.timeout", 90*time.Second)
	v.SetDefault("chain.descriptor_path", "./RFQRegistry.json")
	v.SetDefault("model.anthropic_model", "claude-haiku-4-5-20251001")
	v.SetDefault("model.max_tokens", 1024)
	v.SetDefault("model.embed_base_url", "https://api.openai.com/v1")
	v.SetDefault("model.embed_model", "text-embedding-3-small")
	v.SetDefault("model.timeout", 60*time.Second)
	v.SetDefault("eval.pass_threshold", 0.72)
	v.SetDefault("eval.clarify_threshold", 0.5)
	v.SetDefault("eval.default_weight", 0.25)
	v.SetDefault("eval.qualification_cap", 4000)
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
