package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/avdeyev/socialguard/internal/models"
	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Linking  LinkingConfig
	Channels map[string]ChannelConfig
	Game     GameConfig
	Geo      GeoConfig
	Messages MessagesConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type AuthConfig struct {
	JWTSecret string
}

// LinkingConfig holds the linking, confirmation and rate-limit knobs.
type LinkingConfig struct {
	LinkCommands     []string
	UnlinkCommands   []string
	RegisterCommands []string
	KeyboardCommands []string

	NicknamePattern string
	CodeMin         int64
	CodeMax         int64

	AllowPremiumRegistration  bool
	AllowRelink               bool
	UnlinkAll                 bool
	DisableUnlink             bool
	DisableLinkWithoutPass    bool
	DisableLinkWithPass       bool
	EnableNotify              bool
	ReverseYesNo              bool
	ProhibitPremiumRestore    bool
	DisableRegistration       bool
	MaxRegistrationsPerWindow int
	RegistrationWindow        time.Duration

	LinkCodeTTL        time.Duration
	PurgeInterval      time.Duration
	ConfirmWaitTimeout time.Duration
}

// ChannelConfig configures one messaging channel backend.
type ChannelConfig struct {
	Enabled       bool
	OutboundURL   string
	InboundSecret string
	PreferInline  bool
}

type GameConfig struct {
	WebhookURL    string
	WebhookSecret string
}

type GeoConfig struct {
	Enabled bool
	URL     string
}

type MessagesConfig struct {
	Path string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "socialguard"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:     getEnv("PORT", "8080"),
			Env:      env,
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: jwtSecret,
		},
		Linking: LinkingConfig{
			LinkCommands:     getEnvAsList("LINK_COMMANDS", []string{"!link", "!account link"}),
			UnlinkCommands:   getEnvAsList("UNLINK_COMMANDS", []string{"!unlink", "!account unlink"}),
			RegisterCommands: getEnvAsList("REGISTER_COMMANDS", []string{"!register", "!reg"}),
			KeyboardCommands: getEnvAsList("KEYBOARD_COMMANDS", []string{"!keyboard", "!kb"}),

			NicknamePattern: getEnv("NICKNAME_PATTERN", `^[A-Za-z0-9_]{3,16}$`),
			CodeMin:         getEnvAsInt64("LINK_CODE_MIN", 1000),
			CodeMax:         getEnvAsInt64("LINK_CODE_MAX", 9999),

			AllowPremiumRegistration:  getEnvAsBool("ALLOW_PREMIUM_REGISTRATION", false),
			AllowRelink:               getEnvAsBool("ALLOW_ACCOUNT_RELINK", false),
			UnlinkAll:                 getEnvAsBool("UNLINK_ALL_CHANNELS", false),
			DisableUnlink:             getEnvAsBool("DISABLE_UNLINK", false),
			DisableLinkWithoutPass:    getEnvAsBool("DISABLE_LINK_WITHOUT_PASSWORD", false),
			DisableLinkWithPass:       getEnvAsBool("DISABLE_LINK_WITH_PASSWORD", false),
			EnableNotify:              getEnvAsBool("ENABLE_NOTIFY", true),
			ReverseYesNo:              getEnvAsBool("REVERSE_YES_NO_BUTTONS", false),
			ProhibitPremiumRestore:    getEnvAsBool("PROHIBIT_PREMIUM_RESTORE", false),
			DisableRegistration:       getEnvAsBool("DISABLE_REGISTRATION", false),
			MaxRegistrationsPerWindow: getEnvAsInt("MAX_REGISTRATIONS_PER_WINDOW", 3),
			RegistrationWindow:        getEnvAsDuration("REGISTRATION_WINDOW", 1*time.Hour),

			LinkCodeTTL:        getEnvAsDuration("LINK_CODE_TTL", 10*time.Minute),
			PurgeInterval:      getEnvAsDuration("PURGE_INTERVAL", 1*time.Minute),
			ConfirmWaitTimeout: getEnvAsDuration("CONFIRM_WAIT_TIMEOUT", 2*time.Minute),
		},
		Channels: loadChannels(),
		Game: GameConfig{
			WebhookURL:    getEnv("GAME_WEBHOOK_URL", ""),
			WebhookSecret: getEnv("GAME_WEBHOOK_SECRET", ""),
		},
		Geo: GeoConfig{
			Enabled: getEnvAsBool("GEO_ENABLED", false),
			URL:     getEnv("GEO_URL", "http://ip-api.com/json/"),
		},
		Messages: MessagesConfig{
			Path: getEnv("MESSAGES_PATH", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.Linking.CodeMin >= cfg.Linking.CodeMax {
		return nil, fmt.Errorf("LINK_CODE_MIN must be below LINK_CODE_MAX")
	}

	return cfg, nil
}

// loadChannels reads one ChannelConfig per known kind from
// CHANNEL_<KIND>_* variables. A channel is enabled when its outbound
// URL is set.
func loadChannels() map[string]ChannelConfig {
	channels := make(map[string]ChannelConfig, len(models.ChannelKinds))
	for _, kind := range models.ChannelKinds {
		prefix := "CHANNEL_" + strings.ToUpper(kind)
		url := getEnv(prefix+"_OUTBOUND_URL", "")
		channels[kind] = ChannelConfig{
			Enabled:       url != "",
			OutboundURL:   url,
			InboundSecret: getEnv(prefix+"_INBOUND_SECRET", ""),
			PreferInline:  getEnvAsBool(prefix+"_PREFER_INLINE", kind != models.KindVK),
		}
	}
	return channels
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i, part := range parts {
			parts[i] = strings.TrimSpace(part)
		}
		return parts
	}
	return defaultVal
}
