package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/edgecoder/edgeauth/internal/auth/service"
)

type Config struct {
	BaseURL string // Required: external base URL, used in OAuth callbacks and mail links

	DatabaseFile string // Optional: path to SQLite database file (default: ./edgeauth.db)
	PepperFile   string // Optional: path to file containing pepper for password hashing (default: ./pepper)

	SessionTTL          time.Duration // Session lifetime (default: 720h)
	EmailTokenTTL       time.Duration // Email verification token lifetime (default: 24h)
	PasskeyChallengeTTL time.Duration // WebAuthn ceremony lifetime (default: 5m)
	WalletChallengeTTL  time.Duration // Wallet send challenge lifetime (default: 10m)

	RPID          string   // WebAuthn relying party id (default: host of BaseURL behavior is not inferred; default: localhost)
	RPDisplayName string   // WebAuthn relying party display name (default: EdgeCoder)
	RPOrigins     []string // WebAuthn allowed origins (default: BaseURL)

	NativeRedirectScheme string // Accepted native redirect prefix for OAuth hand-off (default: edgecoder://)
	InternalToken        string // Shared secret for /internal/ endpoints; empty disables them
	CookieSecure         bool   // Secure flag on session cookies (default: true)

	Providers map[string]service.ProviderConfig

	GeoIPURL string // Optional: base URL of the IP enrichment service

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Expired-row sweep interval (default: 1h)
}

// LoadConfig reads configuration from the environment. The localhost
// defaults for BaseURL, RPID and RPOrigins only apply in dev; any other
// environment must set them explicitly or startup fails.
func LoadConfig() (Config, error) {
	cfg := Config{
		BaseURL:      strings.TrimRight(getEnvOrDefault("AUTH_BASE_URL", "http://localhost:8080"), "/"),
		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "edgeauth.db"),
		PepperFile:   getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		SessionTTL:          getEnvDurationOrDefault("AUTH_SESSION_TTL", 30*24*time.Hour),
		EmailTokenTTL:       getEnvDurationOrDefault("AUTH_EMAIL_TOKEN_TTL", 24*time.Hour),
		PasskeyChallengeTTL: getEnvDurationOrDefault("AUTH_PASSKEY_CHALLENGE_TTL", 5*time.Minute),
		WalletChallengeTTL:  getEnvDurationOrDefault("AUTH_WALLET_CHALLENGE_TTL", 10*time.Minute),

		RPID:          getEnvOrDefault("AUTH_RP_ID", "localhost"),
		RPDisplayName: getEnvOrDefault("AUTH_RP_DISPLAY_NAME", "EdgeCoder"),

		NativeRedirectScheme: getEnvOrDefault("AUTH_NATIVE_REDIRECT_SCHEME", "edgecoder://"),
		InternalToken:        os.Getenv("AUTH_INTERNAL_TOKEN"),
		CookieSecure:         getEnvBoolOrDefault("AUTH_COOKIE_SECURE", true),

		GeoIPURL: os.Getenv("AUTH_GEOIP_URL"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if origins := os.Getenv("AUTH_RP_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.RPOrigins = append(cfg.RPOrigins, o)
			}
		}
	} else {
		cfg.RPOrigins = []string{cfg.BaseURL}
	}

	cfg.Providers = loadProviders()

	if cfg.Env != "dev" {
		var missing []string
		for _, key := range []string{"AUTH_BASE_URL", "AUTH_RP_ID", "AUTH_RP_ORIGINS"} {
			if os.Getenv(key) == "" {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return Config{}, fmt.Errorf("config: %s must be set when ENV=%s", strings.Join(missing, ", "), cfg.Env)
		}
	}

	return cfg, nil
}

// providerDefaults are the endpoint presets for well-known providers. Other
// providers must supply all endpoints via environment.
var providerDefaults = map[string]service.ProviderConfig{
	"google": {
		AuthURL:     "https://accounts.google.com/o/oauth2/v2/auth",
		TokenURL:    "https://oauth2.googleapis.com/token",
		UserInfoURL: "https://openidconnect.googleapis.com/v1/userinfo",
		Scopes:      []string{"openid", "email", "profile"},
	},
	"github": {
		AuthURL:     "https://github.com/login/oauth/authorize",
		TokenURL:    "https://github.com/login/oauth/access_token",
		UserInfoURL: "https://api.github.com/user",
		Scopes:      []string{"read:user", "user:email"},
	},
}

// loadProviders reads OAUTH_PROVIDERS (comma separated) and per-provider
// OAUTH_<NAME>_CLIENT_ID / _CLIENT_SECRET / _AUTH_URL / _TOKEN_URL /
// _USERINFO_URL / _SCOPES variables. Providers without credentials are
// skipped.
func loadProviders() map[string]service.ProviderConfig {
	providers := map[string]service.ProviderConfig{}

	for _, name := range strings.Split(getEnvOrDefault("OAUTH_PROVIDERS", "google,github"), ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}

		prefix := "OAUTH_" + strings.ToUpper(name) + "_"
		p := providerDefaults[name]
		p.Name = name
		p.ClientID = os.Getenv(prefix + "CLIENT_ID")
		p.ClientSecret = os.Getenv(prefix + "CLIENT_SECRET")

		if v := os.Getenv(prefix + "AUTH_URL"); v != "" {
			p.AuthURL = v
		}
		if v := os.Getenv(prefix + "TOKEN_URL"); v != "" {
			p.TokenURL = v
		}
		if v := os.Getenv(prefix + "USERINFO_URL"); v != "" {
			p.UserInfoURL = v
		}
		if v := os.Getenv(prefix + "SCOPES"); v != "" {
			p.Scopes = strings.Split(v, ",")
		}

		if p.ClientID == "" || p.ClientSecret == "" || p.AuthURL == "" || p.TokenURL == "" {
			continue
		}
		providers[name] = p
	}

	return providers
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
