package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is read once at startup and never modified afterwards.
type Config struct {
	Environment    string        `env:"ENVIRONMENT,default=dev" validate:"oneof=dev test perf staging prod"`
	LogLevel       string        `env:"LOG_LEVEL,default=debug" validate:"oneof=debug info warn warning error"`
	APIBaseURL     string        `env:"API_BASE_URL,default=http://localhost:8080/api/v1" validate:"required,url"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=30s" validate:"gt=0"`

	// AutoAttachToken installs the session's authorization interceptor on the transport.
	// Off by default: authenticated call sites opt in with Manager.AddAuthHeader.
	AutoAttachToken bool `env:"AUTO_ATTACH_TOKEN,default=false"`

	// ClearSessionOnUnauthorized clears the stored session whenever the API answers 401
	ClearSessionOnUnauthorized bool `env:"CLEAR_SESSION_ON_UNAUTHORIZED,default=true"`

	SessionStore     string `env:"SESSION_STORE,default=file" validate:"oneof=memory file redis"`
	SessionFile      string `env:"SESSION_FILE"` // defaults to <user config dir>/portalcore/session.json
	SessionNamespace string `env:"SESSION_NAMESPACE,default=default" validate:"required"`
	RedisURL         string `env:"REDIS_URL" validate:"required_if=SessionStore redis"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS,default=0" validate:"gte=0"` // 0 = no outbound limit
	RateLimitBurst int     `env:"RATE_LIMIT_BURST,default=1" validate:"gte=1"`
}

const (
	DefaultRequestTimeout = 30 * time.Second
	sessionFileName       = "session.json"
	appDirName            = "portalcore"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewConfig loads an optional .env file, then reads the environment.
func NewConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if cfg.SessionStore == "file" && cfg.SessionFile == "" {
		path, err := DefaultSessionFile()
		if err != nil {
			return nil, err
		}
		cfg.SessionFile = path
	}

	return &cfg, nil
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s' check (value %v)", fe.Field(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

// DefaultSessionFile returns the path used by the file session store when SESSION_FILE is not set
func DefaultSessionFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("could not locate user config dir: %w", err)
	}
	return dir + string(os.PathSeparator) + appDirName + string(os.PathSeparator) + sessionFileName, nil
}
