package config

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// AppConfig holds environment driven configuration values. Credentials must
// come from the config file or the environment, never from code defaults.
type AppConfig struct {
	AppPort string
	// Gin framework configuration
	GinMode string
	GinPath string
	// API credentials
	APIKeys          []string
	CredentialSecret string
	// Challenge lifecycle
	TokenTTLSeconds int
	MaxAttempts     int
	// Rate limiting
	IPRateLimitPerMinute  int
	KeyRateLimitPerMinute int
	// Rendering
	FontsDir    string
	TTSCommand  string
	TTSVoice    string
	FFmpegPath  string
	TempDir     string
	UploadDir   string
	UploadMaxMB int
	// Redis for token state
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string
	// Logging configuration
	LogLevel      string
	LogPath       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

var cfg AppConfig
var loaded bool

// Load loads the application configuration. It should be called once during boot.
// Precedence: config/config.json -> defaults -> environment variable overrides.
func Load() AppConfig {
	if loaded {
		return cfg
	}

	if err := loadJSONConfig(filepath.Join("config", "config.json"), &cfg); err != nil {
		log.Fatalf("invalid config file: %v", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if cfg.CredentialSecret == "" {
		log.Fatal("CREDENTIAL_SECRET must be set in environment variables")
	}

	loaded = true
	return cfg
}

// Get returns the cached configuration, loading it if necessary.
func Get() AppConfig {
	if !loaded {
		return Load()
	}
	return cfg
}

// loadJSONConfig reads the JSON file into cfg if present. Returns error only for invalid JSON.
func loadJSONConfig(path string, out *AppConfig) error {
	f, err := os.Open(path)
	if err != nil {
		return nil // silently ignore missing file
	}
	defer f.Close()

	var raw map[string]map[string]any
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return err
	}

	if app, ok := raw["app"]; ok {
		out.AppPort = getString(app, "AppPort")
		out.GinMode = getString(app, "GinMode")
		out.GinPath = getString(app, "GinPath")
		out.TokenTTLSeconds = getInt(app, "TokenTTLSeconds")
		out.MaxAttempts = getInt(app, "MaxAttempts")
		out.IPRateLimitPerMinute = getInt(app, "IPRateLimitPerMinute")
		out.KeyRateLimitPerMinute = getInt(app, "KeyRateLimitPerMinute")
	}
	if au, ok := raw["auth"]; ok {
		out.APIKeys = getStringSlice(au, "APIKeys")
		out.CredentialSecret = getString(au, "CredentialSecret")
	}
	if cp, ok := raw["captcha"]; ok {
		out.FontsDir = getString(cp, "FontsDir")
		out.TTSCommand = getString(cp, "TTSCommand")
		out.TTSVoice = getString(cp, "TTSVoice")
		out.FFmpegPath = getString(cp, "FFmpegPath")
		out.TempDir = getString(cp, "TempDir")
		out.UploadDir = getString(cp, "UploadDir")
		out.UploadMaxMB = getInt(cp, "UploadMaxMB")
	}
	if rds, ok := raw["redis"]; ok {
		out.RedisHost = getString(rds, "RedisHost")
		out.RedisPort = getInt(rds, "RedisPort")
		out.RedisDB = getInt(rds, "RedisDB")
		out.RedisPassword = getString(rds, "RedisPassword")
	}
	if lg, ok := raw["log"]; ok {
		out.LogLevel = getString(lg, "Level")
		out.LogPath = getString(lg, "Path")
		out.LogMaxSizeMB = getInt(lg, "MaxSizeMB")
		out.LogMaxBackups = getInt(lg, "MaxBackups")
		out.LogMaxAgeDays = getInt(lg, "MaxAgeDays")
		out.LogCompress = getBool(lg, "Compress")
	}
	return nil
}

func getString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func getInt(m map[string]any, key string) int {
	switch t := m[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	}
	return 0
}

func getBool(m map[string]any, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}

func getStringSlice(m map[string]any, key string) []string {
	arr, ok := m[key].([]any)
	if !ok {
		return nil
	}
	res := make([]string, 0, len(arr))
	for _, it := range arr {
		if s, ok := it.(string); ok {
			res = append(res, s)
		}
	}
	return res
}

// applyDefaults sets sane defaults for zero-value fields.
func applyDefaults(c *AppConfig) {
	if c.AppPort == "" {
		c.AppPort = "8080"
	}
	if c.GinMode == "" {
		c.GinMode = "release"
	}
	if c.GinPath == "" {
		c.GinPath = "logs/go_gin.log"
	}
	if c.TokenTTLSeconds == 0 {
		c.TokenTTLSeconds = 180
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.IPRateLimitPerMinute == 0 {
		c.IPRateLimitPerMinute = 60
	}
	if c.KeyRateLimitPerMinute == 0 {
		c.KeyRateLimitPerMinute = 100
	}
	if c.TTSCommand == "" {
		c.TTSCommand = "espeak-ng"
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.UploadMaxMB == 0 {
		c.UploadMaxMB = 5
	}
	if c.RedisHost == "" {
		c.RedisHost = "127.0.0.1"
	}
	if c.RedisPort == 0 {
		c.RedisPort = 6379
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogMaxSizeMB == 0 {
		c.LogMaxSizeMB = 100
	}
	if c.LogMaxBackups == 0 {
		c.LogMaxBackups = 3
	}
	if c.LogMaxAgeDays == 0 {
		c.LogMaxAgeDays = 7
	}
}

// applyEnvOverrides maps known environment variables onto config values when present.
func applyEnvOverrides(c *AppConfig) {
	if v := os.Getenv("APP_PORT"); v != "" {
		c.AppPort = v
	}
	if v := os.Getenv("GIN_MODE"); v != "" {
		c.GinMode = v
	}
	if v := os.Getenv("GIN_PATH"); v != "" {
		c.GinPath = v
	}
	if v := os.Getenv("API_KEYS"); v != "" {
		c.APIKeys = splitAndTrim(v)
	}
	if v := os.Getenv("CREDENTIAL_SECRET"); v != "" {
		c.CredentialSecret = v
	}
	if v := os.Getenv("TOKEN_TTL_SECONDS"); v != "" {
		c.TokenTTLSeconds = mustParseInt(v)
	}
	if v := os.Getenv("MAX_ATTEMPTS"); v != "" {
		c.MaxAttempts = mustParseInt(v)
	}
	if v := os.Getenv("IP_RATE_LIMIT_PER_MINUTE"); v != "" {
		c.IPRateLimitPerMinute = mustParseInt(v)
	}
	if v := os.Getenv("KEY_RATE_LIMIT_PER_MINUTE"); v != "" {
		c.KeyRateLimitPerMinute = mustParseInt(v)
	}
	if v := os.Getenv("FONTS_DIR"); v != "" {
		c.FontsDir = v
	}
	if v := os.Getenv("TTS_COMMAND"); v != "" {
		c.TTSCommand = v
	}
	if v := os.Getenv("TTS_VOICE"); v != "" {
		c.TTSVoice = v
	}
	if v := os.Getenv("FFMPEG_PATH"); v != "" {
		c.FFmpegPath = v
	}
	if v := os.Getenv("TEMP_DIR"); v != "" {
		c.TempDir = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		c.UploadDir = v
	}
	if v := os.Getenv("UPLOAD_MAX_MB"); v != "" {
		c.UploadMaxMB = mustParseInt(v)
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.RedisHost = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		c.RedisPort = mustParseInt(v)
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		c.RedisDB = mustParseInt(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_PATH"); v != "" {
		c.LogPath = v
	}
	if v := os.Getenv("LOG_MAX_SIZE_MB"); v != "" {
		c.LogMaxSizeMB = mustParseInt(v)
	}
	if v := os.Getenv("LOG_MAX_BACKUPS"); v != "" {
		c.LogMaxBackups = mustParseInt(v)
	}
	if v := os.Getenv("LOG_MAX_AGE_DAYS"); v != "" {
		c.LogMaxAgeDays = mustParseInt(v)
	}
	if v := os.Getenv("LOG_COMPRESS"); v != "" {
		c.LogCompress = v == "true"
	}
}

func mustParseInt(val string) int {
	i, err := strconv.Atoi(val)
	if err != nil {
		log.Fatalf("invalid integer value %s: %v", val, err)
	}
	return i
}

func splitAndTrim(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
