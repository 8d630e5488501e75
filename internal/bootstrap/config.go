package bootstrap

import (
	"github.com/spf13/viper"
)

type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	EnginePath         string `mapstructure:"ENGINE_PATH"`
	EngineDepthShallow int    `mapstructure:"ENGINE_DEPTH_SHALLOW"`
	EngineDepthDeep    int    `mapstructure:"ENGINE_DEPTH_DEEP"`
	EngineMultiPV      int    `mapstructure:"ENGINE_MULTI_PV"`
	EngineTimeoutMS    int    `mapstructure:"ENGINE_TIMEOUT_MS"`
	SwingRecheckCP     int    `mapstructure:"SWING_RECHECK_CP"`

	ExplainConcurrency  int     `mapstructure:"EXPLAIN_CONCURRENCY"`
	ExplainGoodMoves    bool    `mapstructure:"EXPLAIN_GOOD_MOVES"`
	VerifyMaxRetries    int     `mapstructure:"VERIFY_MAX_RETRIES"`
	VerifyConfidenceMin float64 `mapstructure:"VERIFY_CONFIDENCE_MIN"`
	GenerateTimeoutMS   int     `mapstructure:"GENERATE_TIMEOUT_MS"`
	GeminiModel         string  `mapstructure:"GEMINI_MODEL"`

	ThemeCacheSize     int `mapstructure:"THEME_CACHE_SIZE"`
	ThemeCacheTTLHours int `mapstructure:"THEME_CACHE_TTL_HOURS"`

	RedisUrl    string `mapstructure:"REDIS_URL"`
	MongoUri    string `mapstructure:"MONGO_URI"`
	IsLocalCors bool   `mapstructure:"LOCAL_CORS"`
}

func Setup(cfgPath string) (*Config, error) {
	viper.SetConfigFile(cfgPath)

	viper.SetDefault("SERVER_PORT", ":8080")
	viper.SetDefault("ENGINE_PATH", "./stockfish")
	viper.SetDefault("ENGINE_DEPTH_SHALLOW", 12)
	viper.SetDefault("ENGINE_DEPTH_DEEP", 18)
	viper.SetDefault("ENGINE_MULTI_PV", 3)
	viper.SetDefault("ENGINE_TIMEOUT_MS", 15000)
	viper.SetDefault("SWING_RECHECK_CP", 100)
	viper.SetDefault("EXPLAIN_CONCURRENCY", 10)
	viper.SetDefault("EXPLAIN_GOOD_MOVES", false)
	viper.SetDefault("VERIFY_MAX_RETRIES", 2)
	viper.SetDefault("VERIFY_CONFIDENCE_MIN", 0.7)
	viper.SetDefault("GENERATE_TIMEOUT_MS", 30000)
	viper.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	viper.SetDefault("THEME_CACHE_SIZE", 4096)
	viper.SetDefault("THEME_CACHE_TTL_HOURS", 24)

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	var cfg Config

	err = viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
