package config

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

var (
	cfg *APIConfig
	mu  sync.RWMutex
)

// Environment variables that override values from the XML file.
const (
	EnvAccessSecret  = "ACTPATH_JWT_ACCESS_SECRET"
	EnvRefreshSecret = "ACTPATH_JWT_REFRESH_SECRET"
	EnvDBPassword    = "ACTPATH_DB_PASSWORD"
	EnvDBDriver      = "ACTPATH_DB_DRIVER"
	EnvDBPath        = "ACTPATH_DB_PATH"
)

// APIConfig represents the root element.
type APIConfig struct {
	XMLName        xml.Name             `xml:"API"`
	RequestDump    bool                 `xml:"REQUEST_DUMP,attr"`
	Context        ContextConfig        `xml:"CONTEXT"`
	Authentication AuthenticationConfig `xml:"AUTHENTICATION"`
	DB             DBConfig             `xml:"DB"`
	Logging        LoggingConfig        `xml:"LOGGING"`
	Curriculum     CurriculumConfig     `xml:"CURRICULUM"`
}

// ContextConfig holds basic server settings.
type ContextConfig struct {
	Port           int    `xml:"PORT"`
	Host           string `xml:"HOST"`
	Path           string `xml:"PATH"`
	TimeZone       string `xml:"TIME_ZONE"`
	MaxConnections int    `xml:"MAX_CONNECTIONS"`
}

// AuthenticationConfig holds authentication settings.
type AuthenticationConfig struct {
	AccessSecret       string          `xml:"ACCESS_SECRET"`
	RefreshSecret      string          `xml:"REFRESH_SECRET"`
	AccessTokenMinutes int             `xml:"ACCESS_TOKEN_MINUTES"`
	RefreshTokenHours  int             `xml:"REFRESH_TOKEN_HOURS"`
	MFACodeMinutes     int             `xml:"MFA_CODE_MINUTES"`
	ExposeMFACode      bool            `xml:"EXPOSE_MFA_CODE"`
	MaxMFAAttempts     int             `xml:"MAX_MFA_ATTEMPTS"`
	RateLimit          RateLimitConfig `xml:"RATE_LIMIT"`
}

// RateLimitConfig bounds requests per client IP on the auth routes.
type RateLimitConfig struct {
	PerMinute int `xml:"PER_MINUTE,attr"`
	Burst     int `xml:"BURST,attr"`
}

// DBConfig holds database connection settings.
type DBConfig struct {
	Initialize bool         `xml:"INITIALIZE"`
	Host       string       `xml:"HOST"`
	Port       int          `xml:"PORT"`
	Driver     string       `xml:"DRIVER"`
	SSLMode    string       `xml:"SSL_MODE"`
	Path       string       `xml:"PATH"`
	Names      DBNames      `xml:"NAMES"`
	Username   string       `xml:"USERNAME"`
	Password   DBPassword   `xml:"PASSWORD"`
	Pool       DBPoolConfig `xml:"POOL"`
}

// DBNames holds the names defined in the DB section.
type DBNames struct {
	ACTPATH string `xml:"ACTPATH,attr"`
}

// DBPassword holds password details.
type DBPassword struct {
	Type  string `xml:"TYPE,attr"`
	Value string `xml:",chardata"`
}

// DBPoolConfig holds database connection pooling settings.
type DBPoolConfig struct {
	MaxOpenConns    int `xml:"MAX_OPEN_CONNS"`
	MaxIdleConns    int `xml:"MAX_IDLE_CONNS"`
	ConnMaxLifetime int `xml:"CONN_MAX_LIFETIME"`
}

// LoggingConfig controls console and rotated file output.
type LoggingConfig struct {
	Level      string `xml:"LEVEL"`
	Dir        string `xml:"DIR"`
	MaxSizeMB  int    `xml:"MAX_SIZE_MB"`
	MaxBackups int    `xml:"MAX_BACKUPS"`
	MaxAgeDays int    `xml:"MAX_AGE_DAYS"`
}

// CurriculumConfig describes the fixed session sequence.
type CurriculumConfig struct {
	SessionCount int `xml:"SESSION_COUNT"`
}

// DSN builds the PostgreSQL connection string.
func (d DBConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		d.Host, d.Username, strings.TrimSpace(d.Password.Value), d.Names.ACTPATH, d.Port, d.SSLMode)
}

// Parse decodes an XML document, applies defaults and environment overrides.
func Parse(r io.Reader) (*APIConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var newCfg APIConfig
	if err := xml.Unmarshal(data, &newCfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	newCfg.applyDefaults()
	newCfg.applyEnv()
	return &newCfg, nil
}

// LoadConfig loads and parses the XML configuration from the given file.
// A .env file next to the working directory is loaded first when present.
func LoadConfig(xmlPath string) (*APIConfig, error) {
	_ = godotenv.Load()

	f, err := os.Open(xmlPath)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	newCfg, err := Parse(f)
	if err != nil {
		return nil, err
	}

	mu.Lock()
	cfg = newCfg
	mu.Unlock()
	return newCfg, nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *APIConfig {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Default returns a configuration suitable for local development.
func Default() *APIConfig {
	c := &APIConfig{}
	c.applyDefaults()
	return c
}

func (c *APIConfig) applyDefaults() {
	if c.Context.Port == 0 {
		c.Context.Port = 5000
	}
	if c.Context.Host == "" {
		c.Context.Host = "0.0.0.0"
	}
	if c.Context.Path == "" {
		c.Context.Path = "/api"
	}
	if c.Context.TimeZone == "" {
		c.Context.TimeZone = "UTC"
	}
	if c.Context.MaxConnections == 0 {
		c.Context.MaxConnections = 512
	}

	a := &c.Authentication
	if a.AccessTokenMinutes == 0 {
		a.AccessTokenMinutes = 60
	}
	if a.RefreshTokenHours == 0 {
		a.RefreshTokenHours = 24 * 7
	}
	if a.MFACodeMinutes == 0 {
		a.MFACodeMinutes = 10
	}
	if a.MaxMFAAttempts == 0 {
		a.MaxMFAAttempts = 5
	}
	if a.RateLimit.PerMinute == 0 {
		a.RateLimit.PerMinute = 30
	}
	if a.RateLimit.Burst == 0 {
		a.RateLimit.Burst = 10
	}

	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Path == "" {
		c.DB.Path = "actpath.db"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if c.DB.SSLMode == "" {
		c.DB.SSLMode = "disable"
	}
	if c.DB.Pool.MaxOpenConns == 0 {
		c.DB.Pool.MaxOpenConns = 10
	}
	if c.DB.Pool.MaxIdleConns == 0 {
		c.DB.Pool.MaxIdleConns = 5
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 50
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}
	if c.Logging.MaxAgeDays == 0 {
		c.Logging.MaxAgeDays = 30
	}

	if c.Curriculum.SessionCount == 0 {
		c.Curriculum.SessionCount = 12
	}
}

func (c *APIConfig) applyEnv() {
	if v := os.Getenv(EnvAccessSecret); v != "" {
		c.Authentication.AccessSecret = v
	}
	if v := os.Getenv(EnvRefreshSecret); v != "" {
		c.Authentication.RefreshSecret = v
	}
	if v := os.Getenv(EnvDBPassword); v != "" {
		c.DB.Password.Value = v
	}
	if v := os.Getenv(EnvDBDriver); v != "" {
		c.DB.Driver = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DB.Path = v
	}
}
