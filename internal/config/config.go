package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/viper"
)

type AppConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	LogLevel  string `mapstructure:"log_level"`
	StaticDir string `mapstructure:"static_dir"`
	// PublicURL is the externally reachable base URL, used to build the join
	// link encoded into room QR codes.
	PublicURL string `mapstructure:"public_url"`

	// Phase controller strategy: with auto_advance on, every timed phase arms
	// a countdown that advances the game by itself; off leaves all
	// transitions to the host.
	AutoAdvance    bool `mapstructure:"auto_advance"`
	RoleSeconds    int  `mapstructure:"role_seconds"`
	DiscussSeconds int  `mapstructure:"discuss_seconds"`
	VoteSeconds    int  `mapstructure:"vote_seconds"`
	ResultsSeconds int  `mapstructure:"results_seconds"`

	// Rooms with no connected player for this long are reclaimed.
	RoomTTLMinutes int `mapstructure:"room_ttl_minutes"`
}

var cfg *AppConfig

func GetConfig() *AppConfig {
	if cfg == nil {
		cfg = InitConfig()
	}

	return cfg
}

func InitConfig() *AppConfig {
	v := viper.New()

	v.SetConfigFile("app_config")
	v.SetConfigType("json")
	v.AddConfigPath(".")

	v.SetEnvPrefix("IMPOSTER")
	v.AutomaticEnv()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 3000)
	v.SetDefault("log_level", "info")
	v.SetDefault("static_dir", "./web")
	v.SetDefault("public_url", "http://localhost:3000")
	v.SetDefault("auto_advance", true)
	v.SetDefault("role_seconds", 12)
	v.SetDefault("discuss_seconds", 60)
	v.SetDefault("vote_seconds", 30)
	v.SetDefault("results_seconds", 10)
	v.SetDefault("room_ttl_minutes", 30)

	// The config file is optional: defaults plus env vars are enough to run.
	if err := v.ReadInConfig(); err != nil {
		var pathErr *fs.PathError
		if !errors.As(err, &pathErr) {
			panic(fmt.Errorf("failed to load config: %w", err))
		}
	}

	var config AppConfig

	if err := v.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("failed to parse config: %w", err))
	}

	return &config
}
