package config

// RedisConfig configures the C1 Bus Client's connection.
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// PostgresConfig configures the session store's connection.
type PostgresConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required"`
	DBName             string `mapstructure:"db_name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required"`
	MaxOpenConnection  int    `mapstructure:"max_open_connection" validate:"required"`
	MaxIdealConnection int    `mapstructure:"max_ideal_connection" validate:"required"`
}

// JWTConfig configures the C2 Token Service.
type JWTConfig struct {
	SecretKey            string `mapstructure:"secret_key" validate:"required"`
	Algorithm            string `mapstructure:"algorithm" validate:"required"`
	AccessTokenExpireMin int    `mapstructure:"access_token_expire_minutes" validate:"required"`
}

// WebSocketConfig configures C6/C7's queue and heartbeat parameters.
type WebSocketConfig struct {
	MaxQueueSize       int `mapstructure:"max_queue_size" validate:"required"`
	HeartbeatIntervalS int `mapstructure:"heartbeat_interval_s" validate:"required"`
}

// VADConfig configures C3's window state machine.
type VADConfig struct {
	Threshold              float32 `mapstructure:"threshold" validate:"required"`
	MinSilenceDurationMs   int     `mapstructure:"min_silence_duration_ms" validate:"required"`
	WindowSizeSamples      int     `mapstructure:"window_size_samples" validate:"required"`
	ModelPath              string  `mapstructure:"model_path"`
}

// TranscriptionConfig configures C4's provider selection and pool.
type TranscriptionConfig struct {
	Provider               string `mapstructure:"provider" validate:"required"`
	OpenAIAPIKey           string `mapstructure:"openai_api_key"`
	DeepgramAPIKey         string `mapstructure:"deepgram_api_key"`
	GoogleCredentialsFile  string `mapstructure:"google_credentials_file"`
	WhisperModelName       string `mapstructure:"whisper_model_name" validate:"required"`
	DeepgramModelName      string `mapstructure:"deepgram_model_name" validate:"required"`
	MaxInFlight            int    `mapstructure:"max_buffered_chunks" validate:"required"`
	PartialResultIntervalS int    `mapstructure:"partial_result_interval_s" validate:"required"`
}

// MappingsConfig configures C10's hot-reloadable file dictionary.
type MappingsConfig struct {
	FilePath        string `mapstructure:"file_path" validate:"required"`
	EnableHotReload bool   `mapstructure:"enable_hot_reload"`
}

// AudioConfig is the PCM format the Mesh assumes throughout.
type AudioConfig struct {
	SampleRate int `mapstructure:"sample_rate" validate:"required"`
}

// STTConfig tells the orchestrator where to dial the C5 per-session
// stream endpoint for relaying client audio_chunk bytes.
type STTConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required"`
}
