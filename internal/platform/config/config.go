package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

const envPrefix = "BOOKSHARE_"

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql | sqlite3
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Path     string `yaml:"path"` // sqlite3 のみ
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type LendingConfig struct {
	DefaultDurationDays int `yaml:"default_duration_days"`
}

type Config struct {
	Version     string         `yaml:"version"`
	Mode        string         `yaml:"mode"`
	Server      ServerConfig   `yaml:"server"`
	DB          DatabaseConfig `yaml:"database"`
	Auth        AuthConfig     `yaml:"auth"`
	Certificate Certs          `yaml:"certificate"`
	Lending     LendingConfig  `yaml:"lending"`
}

func defaults() Config {
	return Config{
		Mode:    "dev",
		Server:  ServerConfig{Addr: ":8080"},
		DB:      DatabaseConfig{Driver: "sqlite3", Path: "bookshare.db", Port: 3306},
		Auth:    AuthConfig{TokenTTL: 24 * time.Hour},
		Lending: LendingConfig{DefaultDurationDays: 14},
	}
}

// Load reads the yaml file, then .env, then BOOKSHARE_* overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env の読み込み失敗: %w", err)
	}

	cfg := defaults()
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(c *Config) error {
	str := map[string]*string{
		"MODE":        &c.Mode,
		"ADDR":        &c.Server.Addr,
		"DB_DRIVER":   &c.DB.Driver,
		"DB_HOST":     &c.DB.Host,
		"DB_USER":     &c.DB.Username,
		"DB_PASSWORD": &c.DB.Password,
		"DB_NAME":     &c.DB.DBName,
		"DB_PATH":     &c.DB.Path,
		"JWT_SECRET":  &c.Auth.JWTSecret,
	}
	for k, dst := range str {
		if v, ok := os.LookupEnv(envPrefix + k); ok {
			*dst = v
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "DB_PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sDB_PORT: %w", envPrefix, err)
		}
		c.DB.Port = p
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("mode must be dev or release, got %q", c.Mode)
	}
	switch c.DB.Driver {
	case "mysql":
		if c.DB.Host == "" || c.DB.DBName == "" {
			return errors.New("database.host and database.dbname are required for mysql")
		}
	case "sqlite3":
		if c.DB.Path == "" {
			return errors.New("database.path is required for sqlite3")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.DB.Driver)
	}
	if c.Mode == "release" && len(c.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 bytes in release mode")
	}
	if c.Lending.DefaultDurationDays < 1 || c.Lending.DefaultDurationDays > 90 {
		return errors.New("lending.default_duration_days must be within 1..90")
	}
	return nil
}

// TLSEnabled は証明書が両方設定されている時のみ true
func (c *Config) TLSEnabled() bool {
	return c.Certificate.Cert != "" && c.Certificate.Key != ""
}

func (c *Config) CertPaths() (certFile, keyFile string) {
	dir := "config/tls/dev"
	if c.Mode == "release" {
		dir = "config/tls/release"
	}
	return fmt.Sprintf("%s/%s", dir, c.Certificate.Cert), fmt.Sprintf("%s/%s", dir, c.Certificate.Key)
}
