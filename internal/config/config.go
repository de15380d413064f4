// Package config loads typed gateway configuration from environment
// variables, with optional .env file support for local development.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the complete gateway configuration.
type Config struct {
	App      App
	Provider Provider
	Session  Session
	Redis    Redis
	Backend  Backend
	Cors     Cors
}

// App holds process-level settings.
type App struct {
	Name string `env:"APP_NAME" envDefault:"BionicPro Auth Gateway"`
	Port string `env:"PORT" envDefault:"8000"`
	Env  string `env:"ENV" envDefault:"DEV"`
}

// Addr returns the listen address for http.Server.
func (a App) Addr() string {
	if strings.HasPrefix(a.Port, ":") {
		return a.Port
	}
	return ":" + a.Port
}

// Provider identifies the upstream OpenID Provider and the gateway's client
// registration with it.
type Provider struct {
	BaseURL      string        `env:"KEYCLOAK_URL" envDefault:"http://keycloak:8080"`
	Realm        string        `env:"KEYCLOAK_REALM" envDefault:"reports-realm"`
	ClientID     string        `env:"CLIENT_ID" envDefault:"reports-frontend"`
	ClientSecret string        `env:"CLIENT_SECRET"`
	RedirectURI  string        `env:"REDIRECT_URI" envDefault:"http://localhost:8000/auth/callback"`
	Scopes       []string      `env:"OAUTH_SCOPES" envSeparator:" " envDefault:"openid profile email"`
	Timeout      time.Duration `env:"IDP_TIMEOUT" envDefault:"30s"`
	// BrokerIDPAlias names the federated upstream identity provider for
	// broker-token enrichment; empty disables it.
	BrokerIDPAlias string `env:"BROKER_IDP_ALIAS"`
}

// Issuer returns the provider issuer URL in Keycloak's realm shape.
func (p Provider) Issuer() string {
	return strings.TrimSuffix(p.BaseURL, "/") + "/realms/" + p.Realm
}

// Session controls session lifetime, cookies, and refresh-token encryption.
type Session struct {
	// Lifetime must stay well above the provider's access-token lifetime:
	// one session spans many refresh cycles.
	Lifetime      time.Duration `env:"SESSION_LIFETIME" envDefault:"1h"`
	SecureCookies bool          `env:"SECURE_COOKIES" envDefault:"false"`
	// EncryptionKey is a base64-encoded 32-byte key. When absent an
	// ephemeral key is generated and sessions do not survive restarts.
	EncryptionKey string `env:"ENCRYPTION_KEY"`
}

// Redis holds session-store connection parameters.
type Redis struct {
	Host     string `env:"REDIS_HOST" envDefault:"redis"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Addr returns host:port for the Redis client.
func (r Redis) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// Backend identifies the API the gateway proxies authenticated calls to.
type Backend struct {
	APIGatewayURL string        `env:"API_GATEWAY_URL" envDefault:"http://api-gateway:8080"`
	FrontendURL   string        `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	ProxyTimeout  time.Duration `env:"PROXY_TIMEOUT" envDefault:"30s"`
}

// Cors configures cross-origin access for the frontend origin.
type Cors struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
	AllowedMethods string   `env:"CORS_ALLOWED_METHODS" envDefault:"GET, POST, PUT, DELETE, PATCH, OPTIONS"`
	AllowedHeaders string   `env:"CORS_ALLOWED_HEADERS" envDefault:"Content-Type, Authorization"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("[config Load] %w", err)
	}

	return cfg, nil
}
