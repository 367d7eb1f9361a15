package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// API
	APIBaseURL     string
	RequestTimeout time.Duration
	RequestRate    float64 // 秒あたりの最大リクエスト数
	RequestBurst   int

	// Credential
	CredentialFile string

	// Notification
	NotifyPollInterval time.Duration
	NotifyPageLimit    int

	// Alert
	AlertDismissAfter time.Duration

	// Devserver
	DevserverPort      string
	DevserverRateLimit int // req/min/token

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = os.Getenv("API_BASE_URL")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", 10*time.Second)
	cfg.RequestRate = getEnvFloat("REQUEST_RATE", 10)
	cfg.RequestBurst = getEnvInt("REQUEST_BURST", 20)
	cfg.CredentialFile = getEnvString("CREDENTIAL_FILE", defaultCredentialFile())
	cfg.NotifyPollInterval = getEnvDuration("NOTIFY_POLL_INTERVAL", 60*time.Second)
	cfg.NotifyPageLimit = getEnvInt("NOTIFY_PAGE_LIMIT", 20)
	cfg.AlertDismissAfter = getEnvDuration("ALERT_DISMISS_AFTER", 5*time.Second)
	cfg.DevserverPort = getEnvString("DEVSERVER_PORT", "8080")
	cfg.DevserverRateLimit = getEnvInt("DEVSERVER_RATE_LIMIT", 120)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

// defaultCredentialFile は資格情報ファイルのデフォルトパスを返す。
// ホームディレクトリが取得できない場合はカレントディレクトリ直下を使用する。
func defaultCredentialFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chintai-credentials.json"
	}
	return filepath.Join(home, ".chintai", "credentials.json")
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
