package config

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// File is the optional path of a YAML/TOML/JSON config file. Empty means env + defaults only.
type File string

type Config struct {
	AppName string

	LogLevel string
	LogFile  string `key:"log.file" validate:"required"`

	Portal  PortalConfig
	Monitor MonitorConfig
	Browser BrowserConfig
	Journal JournalConfig
}

type PortalConfig struct {
	LoginURL string `key:"portal.login_url" validate:"required,url"`
	// ProbeURL is the landing page checked for the logout indicator. Defaults to LoginURL.
	ProbeURL string `key:"portal.probe_url" validate:"required,url"`

	Username string `key:"portal.username" validate:"required"`
	Password string `key:"portal.password" validate:"required"`

	UsernameField   string `key:"portal.username_field" validate:"required"`
	PasswordField   string `key:"portal.password_field" validate:"required"`
	SubmitButton    string `key:"portal.submit_button" validate:"required"`
	LogoutIndicator string `key:"portal.logout_indicator" validate:"required"`

	// ConfirmLogin waits for LogoutIndicator after submitting the form.
	ConfirmLogin bool

	// DiscoverLoginURL reads the form action from the probe page before each login and
	// falls back to LoginURL when none is found.
	DiscoverLoginURL bool

	// Domain is the ISP choice selected in DomainField. Empty leaves the select untouched.
	Domain      string
	DomainField string `key:"portal.domain_field" validate:"required_with=Domain"`
}

type MonitorConfig struct {
	Interval      time.Duration `key:"monitor.interval" validate:"gt=0"`
	Timeout       time.Duration `key:"monitor.timeout" validate:"gt=0"`
	SettleTimeout time.Duration `key:"monitor.settle_timeout" validate:"gt=0"`
	MaxRetries    int           `key:"monitor.max_retries" validate:"min=1"`
}

// stopMargin leaves room for closing the browser after the in-flight step returns.
const stopMargin = 10 * time.Second

// StopTimeout bounds a graceful stop: the slowest single browser step plus stopMargin.
func (c MonitorConfig) StopTimeout() time.Duration {
	d := c.Timeout
	if c.SettleTimeout > d {
		d = c.SettleTimeout
	}
	return d + stopMargin
}

type BrowserConfig struct {
	Headless bool
	// CDPURL attaches to an already running Chrome (http://host:port) instead of launching one.
	CDPURL  string `key:"browser.cdp_url" validate:"omitempty,url"`
	Args    []string
	Install bool
}

type JournalConfig struct {
	// Path of the SQLite event journal. Empty disables the journal.
	Path string
}

func NewViper(file File) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("PORTALKEEPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "portal-keeper")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "portal-keeper.log")

	v.SetDefault("portal.username_field", "username")
	v.SetDefault("portal.password_field", "password")
	v.SetDefault("portal.submit_button", "login-account")
	v.SetDefault("portal.logout_indicator", "logout")
	v.SetDefault("portal.confirm_login", true)
	v.SetDefault("portal.discover_login_url", false)
	v.SetDefault("portal.domain_field", "domain")

	v.SetDefault("monitor.interval", "60s")
	v.SetDefault("monitor.timeout", "5s")
	v.SetDefault("monitor.settle_timeout", "10s")
	v.SetDefault("monitor.max_retries", 3)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.install", true)
	v.SetDefault("browser.args", []string{
		"--no-sandbox",
		"--disable-dev-shm-usage",
		"--disable-gpu",
		"--window-size=1920,1080",
	})

	if path := strings.TrimSpace(string(file)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	return v, nil
}

func NewConfig(v *viper.Viper) (Config, error) {
	interval, err := durationSeconds(v, "monitor.interval")
	if err != nil {
		return Config{}, err
	}
	timeout, err := durationSeconds(v, "monitor.timeout")
	if err != nil {
		return Config{}, err
	}
	settle, err := durationSeconds(v, "monitor.settle_timeout")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:  v.GetString("app.name"),
		LogLevel: v.GetString("log.level"),
		LogFile:  strings.TrimSpace(v.GetString("log.file")),

		Portal: PortalConfig{
			LoginURL:        strings.TrimSpace(v.GetString("portal.login_url")),
			ProbeURL:        strings.TrimSpace(v.GetString("portal.probe_url")),
			Username:        v.GetString("portal.username"),
			Password:        v.GetString("portal.password"),
			UsernameField:   strings.TrimSpace(v.GetString("portal.username_field")),
			PasswordField:   strings.TrimSpace(v.GetString("portal.password_field")),
			SubmitButton:    strings.TrimSpace(v.GetString("portal.submit_button")),
			LogoutIndicator: strings.TrimSpace(v.GetString("portal.logout_indicator")),
			ConfirmLogin:    v.GetBool("portal.confirm_login"),

			DiscoverLoginURL: v.GetBool("portal.discover_login_url"),
			Domain:           strings.TrimSpace(v.GetString("portal.domain")),
			DomainField:      strings.TrimSpace(v.GetString("portal.domain_field")),
		},

		Monitor: MonitorConfig{
			Interval:      interval,
			Timeout:       timeout,
			SettleTimeout: settle,
			MaxRetries:    v.GetInt("monitor.max_retries"),
		},

		Browser: BrowserConfig{
			Headless: v.GetBool("browser.headless"),
			CDPURL:   strings.TrimSpace(v.GetString("browser.cdp_url")),
			Args:     v.GetStringSlice("browser.args"),
			Install:  v.GetBool("browser.install"),
		},

		Journal: JournalConfig{
			Path: strings.TrimSpace(v.GetString("journal.path")),
		},
	}

	if cfg.Portal.ProbeURL == "" {
		cfg.Portal.ProbeURL = cfg.Portal.LoginURL
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid key at once, named by its config key.
func Validate(cfg Config) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		if k := f.Tag.Get("key"); k != "" {
			return k
		}
		return f.Name
	})

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			problems = append(problems, fe.Field()+" is required")
		case "url":
			problems = append(problems, fmt.Sprintf("%s must be a URL (got %q)", fe.Field(), fe.Value()))
		default:
			problems = append(problems, fmt.Sprintf("%s is invalid (%s=%s, got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
}

// durationSeconds accepts Go duration strings ("90s", "2m") and bare numbers as seconds.
func durationSeconds(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
