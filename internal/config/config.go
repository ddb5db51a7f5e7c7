package config // package config loads application configuration from environment variables

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, durations for
// lifetimes.
type Config struct {
	Env  string // application environment (e.g. "dev", "prod")
	Port string // HTTP port to listen on

	DBUser string // database username
	DBPass string // database password (optional)
	DBHost string // database host address
	DBPort string // database port number
	DBName string // database name

	JWTSecret string // secret used to verify member access tokens

	PaymentBaseURL   string // payment provider API base URL
	PaymentSecretKey string // payment provider API key
	PaymentMode      string // handoff mode requested from the provider
	WebhookSecret    string // shared secret for webhook signature checks

	Currency      string        // charge currency (ISO 4217)
	HoldTTL       time.Duration // lifetime of a new checkout session and its holds
	ExtendTTL     time.Duration // extra time granted by one extension
	MaxExtensions int           // extensions allowed per session
	SweepInterval time.Duration // how often the expiry sweep runs
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:  must("APP_ENV"),
		Port: must("APP_PORT"),

		DBUser: must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"), // empty allowed
		DBHost: must("DB_HOST"),
		DBPort: must("DB_PORT"),
		DBName: must("DB_NAME"),

		JWTSecret: must("JWT_SECRET"),

		PaymentBaseURL:   must("PAYMENT_BASE_URL"),
		PaymentSecretKey: must("PAYMENT_SECRET_KEY"),
		PaymentMode:      getenv("PAYMENT_MODE", "embedded"),
		WebhookSecret:    must("PAYMENT_WEBHOOK_SECRET"),

		Currency:      getenv("CURRENCY", "USD"),
		HoldTTL:       mustMinutes("HOLD_TTL_MIN"),
		ExtendTTL:     mustMinutes("EXTEND_TTL_MIN"),
		MaxExtensions: mustInt("MAX_EXTENSIONS"),
		SweepInterval: envDur("SWEEP_INTERVAL", 30*time.Second),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

// mustMinutes reads a required integer variable expressed in minutes.
func mustMinutes(key string) time.Duration {
	return time.Duration(mustInt(key)) * time.Minute
}
