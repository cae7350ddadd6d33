package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Writer strategies selectable through WRITER_STRATEGY
const (
	StrategySOAP = "soap"
	StrategyREST = "rest"
)

type Config struct {
	Server    ServerConfig
	Marketing MarketingCloudConfig
	Activity  ActivityConfig
	Database  DatabaseConfig
	RabbitMQ  RabbitMQConfig
	LogLevel  string
}

type ServerConfig struct {
	Port string
	Host string
}

// MarketingCloudConfig holds the credentials and tenant of the external API
type MarketingCloudConfig struct {
	ClientID          string
	ClientSecret      string
	AccountID         string
	Subdomain         string
	DataExtensionKey  string
	Strategy          string
	TokenTTL          time.Duration
	TokenExpiryMargin time.Duration
	HTTPTimeout       time.Duration
	MaxResponseBody   int
}

// ActivityConfig holds settings for the custom activity surface
type ActivityConfig struct {
	StaticDir string
}

type DatabaseConfig struct {
	Host          string
	Port          string
	User          string
	Password      string
	DBName        string
	SSLMode       string
	RunMigrations bool
}

type RabbitMQConfig struct {
	URL        string
	Host       string
	Port       string
	User       string
	Password   string
	VHost      string
	Exchange   string
	RoutingKey string
}

func Load() (*Config, error) {
	var missing []string
	var invalid []string

	// get returns the first non-empty value among keys and records the
	// first key as missing when none is set
	get := func(keys ...string) string {
		for _, key := range keys {
			if val := os.Getenv(key); val != "" {
				return val
			}
		}
		missing = append(missing, keys[0])
		return ""
	}

	getOr := func(key, fallback string) string {
		if val := os.Getenv(key); val != "" {
			return val
		}
		return fallback
	}

	seconds := func(key string, fallback int) time.Duration {
		raw := os.Getenv(key)
		if raw == "" {
			return time.Duration(fallback) * time.Second
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			invalid = append(invalid, key)
			return 0
		}
		return time.Duration(n) * time.Second
	}

	integer := func(key string, fallback int) int {
		raw := os.Getenv(key)
		if raw == "" {
			return fallback
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			invalid = append(invalid, key)
			return 0
		}
		return n
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = getOr("PORT", "3000")
	}

	config := &Config{
		Server: ServerConfig{
			Port: port,
			Host: getOr("SERVER_HOST", "0.0.0.0"),
		},
		Marketing: MarketingCloudConfig{
			ClientID:          get("CLIENT_ID", "clientId"),
			ClientSecret:      get("CLIENT_SECRET", "clientSecret"),
			Subdomain:         get("SUBDOMAIN", "subdomain"),
			AccountID:         os.Getenv("ACCOUNT_ID"),
			DataExtensionKey:  getOr("DATA_EXTENSION_KEY", "Journey_Logger"),
			Strategy:          strings.ToLower(getOr("WRITER_STRATEGY", StrategySOAP)),
			TokenTTL:          seconds("TOKEN_TTL_SECONDS", 300),
			TokenExpiryMargin: seconds("TOKEN_EXPIRY_MARGIN_SECONDS", 30),
			HTTPTimeout:       seconds("HTTP_TIMEOUT_SECONDS", 10),
			MaxResponseBody:   integer("MAX_RESPONSE_BODY_BYTES", 64*1024),
		},
		Activity: ActivityConfig{
			StaticDir: getOr("STATIC_DIR", "modules/journey-logger"),
		},
		Database: DatabaseConfig{
			Host:          os.Getenv("DB_HOST"),
			Port:          getOr("DB_PORT", "5432"),
			User:          os.Getenv("DB_USER"),
			Password:      os.Getenv("DB_PASSWORD"),
			DBName:        os.Getenv("DB_NAME"),
			SSLMode:       getOr("DB_SSLMODE", "disable"),
			RunMigrations: os.Getenv("RUN_MIGRATIONS") == "true",
		},
		RabbitMQ: RabbitMQConfig{
			URL:        os.Getenv("RABBITMQ_URL"),
			Host:       os.Getenv("RABBITMQ_HOST"),
			Port:       getOr("RABBITMQ_PORT", "5672"),
			User:       os.Getenv("RABBITMQ_USER"),
			Password:   os.Getenv("RABBITMQ_PASSWORD"),
			VHost:      os.Getenv("RABBITMQ_VHOST"),
			Exchange:   getOr("RABBITMQ_EXCHANGE", "journey-logger"),
			RoutingKey: getOr("RABBITMQ_ROUTING_KEY", "execution"),
		},
		LogLevel: getOr("LOG_LEVEL", "info"),
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid values for environment variables: %v", invalid)
	}

	switch config.Marketing.Strategy {
	case StrategySOAP, StrategyREST:
	default:
		return nil, fmt.Errorf("unknown WRITER_STRATEGY %q (expected %q or %q)",
			config.Marketing.Strategy, StrategySOAP, StrategyREST)
	}

	return config, nil
}

// Enabled reports whether the execution attempt log is configured
func (c *DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

// ConnectionString returns a DSN string for GORM
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
}

// MigrationURL returns the postgres:// URL golang-migrate expects
func (c *DatabaseConfig) MigrationURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// Enabled reports whether execution events should be published
func (c *RabbitMQConfig) Enabled() bool {
	return c.URL != "" || c.Host != ""
}

func (c *RabbitMQConfig) ConnectionURL() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s%s",
		c.User, c.Password, c.Host, c.Port, c.VHost)
}

// AuthURL is the client-credentials token endpoint of the tenant
func (c *MarketingCloudConfig) AuthURL() string {
	return "https://" + c.Subdomain + ".auth.marketingcloudapis.com/v2/token"
}

// RESTBaseURL is the tenant REST host used when the token response does not name one
func (c *MarketingCloudConfig) RESTBaseURL() string {
	return "https://" + c.Subdomain + ".rest.marketingcloudapis.com/"
}

// SOAPBaseURL is the tenant SOAP host used when the token response does not name one
func (c *MarketingCloudConfig) SOAPBaseURL() string {
	return "https://" + c.Subdomain + ".soap.marketingcloudapis.com/"
}
