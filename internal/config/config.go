package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/dkeye/vcall/internal/domain"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	Secret     string        `mapstructure:"secret"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	NumWorkers int `mapstructure:"num_workers"`
	RTCMinPort int `mapstructure:"rtc_min_port"`
	RTCMaxPort int `mapstructure:"rtc_max_port"`

	MaxIncomingBitrate int `mapstructure:"max_incoming_bitrate"`

	RateLimit  int           `mapstructure:"rate_limit"`
	RateWindow time.Duration `mapstructure:"rate_window"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("ping_period", "25s")
	v.SetDefault("num_workers", 4)
	v.SetDefault("rtc_min_port", 10000)
	v.SetDefault("rtc_max_port", 10100)
	v.SetDefault("max_incoming_bitrate", 1500000)
	v.SetDefault("rate_limit", 50)
	v.SetDefault("rate_window", "1m")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// MediaCodecs is the fixed router codec table: Opus audio plus VP8 video.
func MediaCodecs() []domain.CodecCapability {
	return []domain.CodecCapability{
		{
			Kind:                 domain.MediaAudio,
			MimeType:             "audio/opus",
			ClockRate:            48000,
			Channels:             2,
			PreferredPayloadType: 111,
			SDPFmtpLine:          "minptime=10;useinbandfec=1",
		},
		{
			Kind:                 domain.MediaVideo,
			MimeType:             "video/VP8",
			ClockRate:            90000,
			PreferredPayloadType: 96,
			SDPFmtpLine:          "x-google-start-bitrate=1000",
		},
	}
}
