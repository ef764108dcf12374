/*
Package config loads runtime settings.

SOURCES (later wins):
  1. Defaults below
  2. .env file, when present (loaded into the process environment)
  3. LIQ_* environment variables (LIQ_PORT, LIQ_DB_PATH, ...)
  4. Command-line flags, applied by cmd/* after Load

KEYS:
  port              HTTP port
  db_path           SQLite file
  logo_path         PNG/JPEG drawn on every statement (optional)
  pdf_dir           where published PDFs are written
  base_url          public URL prefix for published PDF links
  notifier          "log" (WhatsApp link in the logs) or "sendgrid"
  sendgrid_key      SendGrid API key
  from_email        sender address for e-mail notifications
  from_name         sender name
  invoice_email     address teachers send their invoices to
  pdf_retention     age after which published PDFs are removed
  janitor_interval  how often the janitor runs
  cors_origins      comma-separated allowed origins
  log_level         debug | info | warn | error
*/
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "LIQ"

// Notifier kinds.
const (
	NotifierLog      = "log"
	NotifierSendGrid = "sendgrid"
)

// Config holds the resolved settings.
type Config struct {
	Port            string
	DBPath          string
	LogoPath        string
	PDFDir          string
	BaseURL         string
	Notifier        string
	SendGridKey     string
	FromEmail       string
	FromName        string
	InvoiceEmail    string
	PDFRetention    time.Duration
	JanitorInterval time.Duration
	CORSOrigins     []string
	LogLevel        string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	v.SetDefault("port", "8080")
	v.SetDefault("db_path", "./liquidaciones.db")
	v.SetDefault("logo_path", "static/logo.png")
	v.SetDefault("pdf_dir", "static/pdfs")
	v.SetDefault("base_url", "http://localhost:8080")
	v.SetDefault("notifier", NotifierLog)
	v.SetDefault("sendgrid_key", "")
	v.SetDefault("from_email", "noreply@localhost")
	v.SetDefault("from_name", "Escuela de Música")
	v.SetDefault("invoice_email", "roberto@escuelademusica.org")
	v.SetDefault("pdf_retention", 30*24*time.Hour)
	v.SetDefault("janitor_interval", time.Hour)
	v.SetDefault("cors_origins", "*")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	return v
}

// Load resolves the configuration. envFile is loaded when it exists; a
// missing file is not an error.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("config.godotenv(%s): %w", envFile, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config.os.Stat(%s): %w", envFile, err)
		}
	}

	v := newViper()
	cfg := &Config{
		Port:            v.GetString("port"),
		DBPath:          v.GetString("db_path"),
		LogoPath:        v.GetString("logo_path"),
		PDFDir:          v.GetString("pdf_dir"),
		BaseURL:         strings.TrimRight(v.GetString("base_url"), "/"),
		Notifier:        strings.ToLower(v.GetString("notifier")),
		SendGridKey:     v.GetString("sendgrid_key"),
		FromEmail:       v.GetString("from_email"),
		FromName:        v.GetString("from_name"),
		InvoiceEmail:    v.GetString("invoice_email"),
		PDFRetention:    v.GetDuration("pdf_retention"),
		JanitorInterval: v.GetDuration("janitor_interval"),
		CORSOrigins:     splitList(v.GetString("cors_origins")),
		LogLevel:        v.GetString("log_level"),
	}
	return cfg, cfg.Validate()
}

// Validate checks settings that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch c.Notifier {
	case NotifierLog:
	case NotifierSendGrid:
		if c.SendGridKey == "" {
			return fmt.Errorf("config: notifier %q requires %s_SENDGRID_KEY", c.Notifier, EnvPrefix)
		}
	default:
		return fmt.Errorf("config: unknown notifier %q", c.Notifier)
	}
	if c.JanitorInterval <= 0 {
		return fmt.Errorf("config: janitor_interval must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
