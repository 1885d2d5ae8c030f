package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config はバックエンド（serve / migrate）の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// LLM（OpenAI互換API）
	LLMBaseURL     string
	LLMModel       string
	LLMTemperature float64
	LLMMaxTokens   int
	LLMTimeout     time.Duration
	// LLMMaxConcurrent は同時に実行する生成の上限。
	LLMMaxConcurrent int
	// LLMMaxAttempts は429/5xx時に補完を試行する最大回数（初回を含む）。
	LLMMaxAttempts int

	// Rate Limit（1ユーザーあたり1分間のリクエスト数）
	RateLimitGeneral  int
	RateLimitGenerate int

	// Server
	ServerPort      string
	ShutdownTimeout time.Duration
	LogLevel        string

	// CORS
	CORSAllowedOrigin string
}

// ClientConfig はクライアントコマンド（login / logout / keys / generate）の設定を保持する。
type ClientConfig struct {
	// APIBaseURL はクレデンシャルサービスと生成サービスを提供するバックエンドのURL。
	APIBaseURL string
	// SessionPath はアイデンティティのセッションファイルのパス。
	SessionPath string
	// DisplayName はプレビューのヘッダーに表示する名前。
	DisplayName string

	CredentialLoadTimeout time.Duration
	GenerateTimeout       time.Duration
	LogLevel              string
}

// LoadDotEnv はpathの.envファイルを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既に設定済みの環境変数は上書きしない。
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.LLMBaseURL = getEnvString("LLM_BASE_URL", "https://api.groq.com/openai/v1")
	cfg.LLMModel = getEnvString("LLM_MODEL", "deepseek-r1-distill-llama-70b")
	cfg.LLMTemperature = getEnvFloat("LLM_TEMPERATURE", 0.6)
	cfg.LLMMaxTokens = getEnvInt("LLM_MAX_TOKENS", 4096)
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", 90*time.Second)
	cfg.LLMMaxConcurrent = getEnvInt("LLM_MAX_CONCURRENT", 4)
	cfg.LLMMaxAttempts = getEnvInt("LLM_MAX_ATTEMPTS", 3)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitGenerate = getEnvInt("RATE_LIMIT_GENERATE", 5)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.RateLimitGeneral <= 0 || cfg.RateLimitGenerate <= 0 {
		return nil, fmt.Errorf("rate limits must be positive: general=%d generate=%d", cfg.RateLimitGeneral, cfg.RateLimitGenerate)
	}

	return cfg, nil
}

// LoadClient は環境変数からClientConfigを読み込む。
// セッションファイルの既定値はユーザー設定ディレクトリ配下のpostmate/session.json。
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{}

	cfg.APIBaseURL = getEnvString("POSTMATE_API_URL", "http://localhost:8080")
	cfg.DisplayName = getEnvString("POSTMATE_DISPLAY_NAME", "")
	cfg.CredentialLoadTimeout = getEnvDuration("POSTMATE_CREDENTIAL_TIMEOUT", 15*time.Second)
	cfg.GenerateTimeout = getEnvDuration("POSTMATE_GENERATE_TIMEOUT", 3*time.Minute)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "warn")

	cfg.SessionPath = os.Getenv("POSTMATE_SESSION_FILE")
	if cfg.SessionPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("resolve session file path (set POSTMATE_SESSION_FILE): %w", err)
		}
		cfg.SessionPath = filepath.Join(dir, "postmate", "session.json")
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
