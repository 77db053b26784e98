// Package config reads the Mesh's configuration from `.env`/environment
// variables the way api/integration-api/config does in the teacher repo:
// viper with a "__" key delimiter for nested sections, explicit defaults,
// and go-playground/validator struct validation.
package config

import (
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AppConfig is the fully-resolved, validated configuration for every
// Mesh process (orchestrator, STT, trigger).
type AppConfig struct {
	Name     string `mapstructure:"service_name" validate:"required"`
	Version  string `mapstructure:"version" validate:"required"`
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"required"`
	LogLevel string `mapstructure:"log_level" validate:"required"`

	Redis         RedisConfig         `mapstructure:"redis" validate:"required"`
	Postgres      PostgresConfig      `mapstructure:"postgres" validate:"required"`
	JWT           JWTConfig           `mapstructure:"jwt" validate:"required"`
	WebSocket     WebSocketConfig     `mapstructure:"websocket" validate:"required"`
	VAD           VADConfig           `mapstructure:"vad" validate:"required"`
	Transcription TranscriptionConfig `mapstructure:"transcription" validate:"required"`
	Mappings      MappingsConfig      `mapstructure:"mappings" validate:"required"`
	Audio         AudioConfig         `mapstructure:"audio" validate:"required"`
	STT           STTConfig           `mapstructure:"stt" validate:"required"`

	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" validate:"required"`
}

// InitConfig loads `.env`/environment variables into a viper instance.
// ENV_PATH overrides the config file location, matching the teacher's
// integration-api loader.
func InitConfig() (*viper.Viper, error) {
	vConfig := viper.NewWithOptions(viper.KeyDelimiter("__"))

	vConfig.AddConfigPath(".")
	vConfig.SetConfigName(".env")
	if path := os.Getenv("ENV_PATH"); path != "" {
		vConfig.SetConfigFile(path)
	}
	vConfig.SetConfigType("env")
	vConfig.AutomaticEnv()

	setDefault(vConfig)

	if err := vConfig.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		log.Printf("mesh: reading config from environment variables only: %v", err)
	}

	return vConfig, nil
}

func setDefault(v *viper.Viper) {
	v.SetDefault("SERVICE_NAME", "mesh")
	v.SetDefault("VERSION", "0.0.1")
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8080)
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("REDIS__URL", "redis://localhost:6379/0")

	v.SetDefault("POSTGRES__HOST", "localhost")
	v.SetDefault("POSTGRES__PORT", 5432)
	v.SetDefault("POSTGRES__DB_NAME", "mesh")
	v.SetDefault("POSTGRES__USER", "mesh")
	v.SetDefault("POSTGRES__PASSWORD", "")
	v.SetDefault("POSTGRES__SSL_MODE", "disable")
	v.SetDefault("POSTGRES__MAX_OPEN_CONNECTION", 10)
	v.SetDefault("POSTGRES__MAX_IDEAL_CONNECTION", 10)

	v.SetDefault("JWT__SECRET_KEY", "changeme-placeholder")
	v.SetDefault("JWT__ALGORITHM", "HS256")
	v.SetDefault("JWT__ACCESS_TOKEN_EXPIRE_MINUTES", 60)

	v.SetDefault("WEBSOCKET__MAX_QUEUE_SIZE", 100)
	v.SetDefault("WEBSOCKET__HEARTBEAT_INTERVAL_S", 30)

	v.SetDefault("VAD__THRESHOLD", 0.5)
	v.SetDefault("VAD__MIN_SILENCE_DURATION_MS", 500)
	v.SetDefault("VAD__WINDOW_SIZE_SAMPLES", 512)
	v.SetDefault("VAD__MODEL_PATH", "")

	v.SetDefault("TRANSCRIPTION__PROVIDER", "openai")
	v.SetDefault("TRANSCRIPTION__WHISPER_MODEL_NAME", "whisper-1")
	v.SetDefault("TRANSCRIPTION__DEEPGRAM_MODEL_NAME", "nova-2")
	v.SetDefault("TRANSCRIPTION__MAX_BUFFERED_CHUNKS", 4)
	v.SetDefault("TRANSCRIPTION__PARTIAL_RESULT_INTERVAL_S", 2)

	v.SetDefault("MAPPINGS__FILE_PATH", "testdata/mappings.json")
	v.SetDefault("MAPPINGS__ENABLE_HOT_RELOAD", true)

	v.SetDefault("AUDIO__SAMPLE_RATE", 16000)

	v.SetDefault("STT__BASE_URL", "ws://localhost:8081")

	v.SetDefault("CONFIDENCE_THRESHOLD", 0.75)
}

// GetApplicationConfig unmarshals and validates the AppConfig from viper.
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// IsPlaceholderSecret reports whether the configured JWT secret is the
// shipped default, which must be logged as a startup warning per §4.2.
func IsPlaceholderSecret(secret string) bool {
	return secret == "" || secret == "changeme-placeholder"
}
