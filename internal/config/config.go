package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppEnv     string `env:"APP_ENV" envDefault:"development"`
	AppName    string `env:"APP_NAME" envDefault:"activation-portal"`
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":80"`

	Database struct {
		Driver  string `env:"DRIVER" envDefault:"sqlite"`
		DSN     string `env:"DSN"`
		DataDir string `env:"DATA_DIR" envDefault:"data"`
	} `envPrefix:"DB_"`

	// GetCID upstream
	GetCID struct {
		APIURL    string        `env:"API_URL,required"`
		Token     string        `env:"TOKEN,required"`
		Timeout   time.Duration `env:"TIMEOUT" envDefault:"30s"`
		UserAgent string        `env:"USER_AGENT" envDefault:"GetCID-Landing/1.0"`
	} `envPrefix:"GETCID_"`

	AdminEmail    string        `env:"ADMIN_EMAIL,required"`
	AdminPassword string        `env:"ADMIN_PASSWORD"`
	JWTSecret     string        `env:"JWT_SECRET,required"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	SheetSync struct {
		Enabled         bool   `env:"ENABLED" envDefault:"false"`
		CredentialsFile string `env:"CREDENTIALS_FILE"`
		SpreadsheetID   string `env:"SPREADSHEET_ID"`
		SheetName       string `env:"SHEET_NAME" envDefault:"Keys"`
	} `envPrefix:"SHEET_SYNC_"`

	CORSOrigins    string `env:"CORS_ORIGINS" envDefault:"*"`
	MetricsEnabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
}

func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses configuration from the given variables instead of the
// process environment.
func LoadFrom(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("DB_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.GetCID.Timeout <= 0 {
		return fmt.Errorf("GETCID_TIMEOUT must be positive")
	}
	if c.SheetSync.Enabled && (c.SheetSync.CredentialsFile == "" || c.SheetSync.SpreadsheetID == "") {
		return fmt.Errorf("sheet sync needs SHEET_SYNC_CREDENTIALS_FILE and SHEET_SYNC_SPREADSHEET_ID")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
