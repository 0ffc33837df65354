package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Mail      MailConfig
	CORS      CORSConfig
	Upload    UploadConfig
	Keepalive KeepaliveConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            string
	ShutdownTimeout time.Duration
	StaticDir       string
}

// Addr returns the listen address in host:port form.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type MailConfig struct {
	User        string
	Password    string
	Recipient   string
	Host        string
	Port        int
	SendTimeout time.Duration
}

// HasCredentials reports whether both the relay account and its secret are set.
func (m MailConfig) HasCredentials() bool {
	return m.User != "" && m.Password != ""
}

type CORSConfig struct {
	AllowedOrigins []string
}

type UploadConfig struct {
	FieldName   string
	MaxFiles    int
	MaxFileSize int64
}

// BodyLimit is the largest request body the transport accepts: every file at
// its cap plus room for the text fields and multipart framing.
func (u UploadConfig) BodyLimit() int {
	const fieldsSlack = 1 << 20
	return u.MaxFiles*int(u.MaxFileSize) + fieldsSlack
}

type KeepaliveConfig struct {
	URL      string
	Interval time.Duration
}

// Enabled reports whether a keepalive target has been configured.
func (k KeepaliveConfig) Enabled() bool {
	return k.URL != ""
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	defaultAllowedOrigin = "https://back-i4i2.onrender.com"
	defaultMaxFileSize   = 10 * 1024 * 1024 // 10MB
)

// LoadConfig reads an optional .env file and then builds the configuration
// from the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	return &Config{
		Server: ServerConfig{
			Host:            loadEnv("HOST", "0.0.0.0"),
			Port:            loadEnv("PORT", "3000"),
			ShutdownTimeout: time.Duration(loadEnvAsInt("SERVER_SHUTDOWN_TIMEOUT", 5)) * time.Second,
			StaticDir:       loadEnv("STATIC_DIR", "public"),
		},
		Mail: MailConfig{
			User:        strings.TrimSpace(os.Getenv("EMAIL_USER")),
			Password:    os.Getenv("EMAIL_PASS"),
			Recipient:   strings.TrimSpace(os.Getenv("EMAIL_TO")),
			Host:        loadEnv("SMTP_HOST", "smtp.gmail.com"),
			Port:        loadEnvAsInt("SMTP_PORT", 587),
			SendTimeout: loadEnvAsDuration("MAIL_SEND_TIMEOUT", 0),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseCSV(loadEnv("CORS_ALLOWED_ORIGINS", defaultAllowedOrigin)),
		},
		Upload: UploadConfig{
			FieldName:   "files",
			MaxFiles:    loadEnvAsInt("UPLOAD_MAX_FILES", 10),
			MaxFileSize: loadEnvAsInt64("UPLOAD_MAX_FILE_SIZE", defaultMaxFileSize),
		},
		Keepalive: KeepaliveConfig{
			URL:      strings.TrimSpace(os.Getenv("KEEPALIVE_URL")),
			Interval: loadEnvAsPositiveDuration("KEEPALIVE_INTERVAL", 10*time.Minute),
		},
		Log: LogConfig{
			Level:  loadEnv("LOG_LEVEL", "INFO"),
			Format: loadEnv("LOG_FORMAT", "text"),
		},
	}
}

func loadEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return defaultVal
}

func loadEnvAsInt(key string, defaultVal int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func loadEnvAsInt64(key string, defaultVal int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// loadEnvAsDuration accepts Go duration strings ("90s", "10m") as well as a
// bare number of seconds.
func loadEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultVal
}

// loadEnvAsPositiveDuration is loadEnvAsDuration for settings where zero or a
// negative value is meaningless.
func loadEnvAsPositiveDuration(key string, defaultVal time.Duration) time.Duration {
	if d := loadEnvAsDuration(key, defaultVal); d > 0 {
		return d
	}
	return defaultVal
}

func parseCSV(value string) []string {
	var normalized []string
	for _, part := range strings.Split(value, ",") {
		candidate := strings.TrimSpace(part)
		if candidate == "" {
			continue
		}
		normalized = append(normalized, candidate)
	}
	return normalized
}
