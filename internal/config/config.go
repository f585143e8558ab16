package config // package config loads application configuration from environment variables

import (
	"log"  // log is used to report configuration errors and halt execution
	"os"   // os provides access to environment variables
	"time" // time parses the TTL durations
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.  The reservation TTL is the soft lease a
// pending order holds on a code; the sweep interval drives the
// background reclamation loop on top of the lazy sweeps.
type Config struct {
	Env               string        // application environment (e.g. "dev", "prod")
	Port              string        // HTTP port to listen on
	DBUser            string        // database username
	DBPass            string        // database password (optional)
	DBHost            string        // database host address
	DBPort            string        // database port number
	DBName            string        // database name
	JWTSecret         string        // secret used to sign buyer and admin tokens
	ReserveTTL        time.Duration // how long a reservation holds a code
	SweepInterval     time.Duration // background sweeper period
	GatewayKeyHash    string        // bcrypt hash of the chat gateway's shared key
	AdminPasswordHash string        // bcrypt hash of the admin password
	CatalogPath       string        // optional JSON catalog override (empty = built-in)
	AMQPURL           string        // optional broker URL for order events
}

// Load reads configuration values from environment variables and returns
// a Config.  Required variables are enforced by must() and missing
// values cause the program to exit with a fatal log message.
func Load() Config {
	return Config{
		Env:               must("APP_ENV"),
		Port:              must("APP_PORT"),
		DBUser:            must("DB_USER"),
		DBPass:            os.Getenv("DB_PASS"), // empty allowed
		DBHost:            must("DB_HOST"),
		DBPort:            must("DB_PORT"),
		DBName:            must("DB_NAME"),
		JWTSecret:         must("JWT_SECRET"),
		ReserveTTL:        mustDur("RESERVE_TTL", 10*time.Minute),
		SweepInterval:     mustDur("SWEEP_INTERVAL", 5*time.Minute),
		GatewayKeyHash:    must("GATEWAY_KEY_HASH"),
		AdminPasswordHash: must("ADMIN_PASSWORD_HASH"),
		CatalogPath:       os.Getenv("CATALOG_PATH"),
		AMQPURL:           os.Getenv("RABBITMQ_URL"),
	}
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and
// exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustDur parses an optional duration variable, falling back to def when
// unset.  An unparsable value is fatal rather than silently defaulted.
func mustDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Fatalf("invalid duration for %s: %q", key, v)
	}
	return d
}
