// Package config loads ordergate settings from a YAML file, ORDERGATE_*
// environment variables and defaults, in that order of precedence reversed.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StoreFS       = "fs"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	ListenAddr string         `yaml:"listen_addr" mapstructure:"listen_addr"`
	Log        LogConfig      `yaml:"log"         mapstructure:"log"`
	CORS       CORSConfig     `yaml:"cors"        mapstructure:"cors"`
	Store      StoreConfig    `yaml:"store"       mapstructure:"store"`
	Identity   IdentityConfig `yaml:"identity"    mapstructure:"identity"`
	Visitor    VisitorConfig  `yaml:"visitor"     mapstructure:"visitor"`
}

type LogConfig struct {
	JSON  bool `yaml:"json"  mapstructure:"json"`
	Debug bool `yaml:"debug" mapstructure:"debug"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

type StoreConfig struct {
	Kind    string `yaml:"kind"     mapstructure:"kind"`
	DSN     string `yaml:"dsn"      mapstructure:"dsn"`
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
}

type IdentityConfig struct {
	Issuer     string        `yaml:"issuer"      mapstructure:"issuer"`
	HMACSecret string        `yaml:"hmac_secret" mapstructure:"hmac_secret"`
	JWKFile    string        `yaml:"jwk_file"    mapstructure:"jwk_file"` // path to JWK
	TokenTTL   time.Duration `yaml:"token_ttl"   mapstructure:"token_ttl"`
}

type VisitorConfig struct {
	Kind        string        `yaml:"kind"          mapstructure:"kind"`
	RedisAddr   string        `yaml:"redis_addr"    mapstructure:"redis_addr"`
	FGAAPIURL   string        `yaml:"fga_api_url"   mapstructure:"fga_api_url"`
	FGAStoreID  string        `yaml:"fga_store_id"  mapstructure:"fga_store_id"`
	FGAModelID  string        `yaml:"fga_model_id"  mapstructure:"fga_model_id"`
	FGAAPIToken string        `yaml:"fga_api_token" mapstructure:"fga_api_token"`
	CacheSize   int           `yaml:"cache_size"    mapstructure:"cache_size"`
	CacheTTL    time.Duration `yaml:"cache_ttl"     mapstructure:"cache_ttl"`
}

func Dir() (string, error) {
	if v := os.Getenv("ORDERGATE_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".ordergate"), nil
}

func DefaultPath() string {
	dir, err := Dir()
	if err != nil {
		return filepath.Join(".ordergate", "config.yaml")
	}
	return filepath.Join(dir, "config.yaml")
}

func defaults(v *viper.Viper) {
	dataDir := filepath.Join(".ordergate", "data")
	if dir, err := Dir(); err == nil {
		dataDir = filepath.Join(dir, "data")
	}

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("store.kind", StoreMemory)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.data_dir", dataDir)
	v.SetDefault("identity.issuer", "ordergate")
	v.SetDefault("identity.hmac_secret", "")
	v.SetDefault("identity.jwk_file", "")
	v.SetDefault("identity.token_ttl", time.Hour)
	v.SetDefault("visitor.kind", "static")
	v.SetDefault("visitor.redis_addr", "localhost:6379")
	v.SetDefault("visitor.fga_api_url", "http://localhost:8080")
	v.SetDefault("visitor.fga_store_id", "")
	v.SetDefault("visitor.fga_model_id", "")
	v.SetDefault("visitor.fga_api_token", "")
	v.SetDefault("visitor.cache_size", 1024)
	v.SetDefault("visitor.cache_ttl", 30*time.Second)
}

// Load reads path (DefaultPath when empty). A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	defaults(v)

	// Env overrides: ORDERGATE_LISTEN_ADDR, ORDERGATE_STORE_KIND, etc.
	v.SetEnvPrefix("ORDERGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &c, nil
}

// Save writes c as YAML with owner-only permissions.
func Save(path string, c *Config) error {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("listen_addr", c.ListenAddr)
	v.Set("log.json", c.Log.JSON)
	v.Set("log.debug", c.Log.Debug)
	v.Set("cors.allowed_origins", c.CORS.AllowedOrigins)
	v.Set("store.kind", c.Store.Kind)
	v.Set("store.dsn", c.Store.DSN)
	v.Set("store.data_dir", c.Store.DataDir)
	v.Set("identity.issuer", c.Identity.Issuer)
	v.Set("identity.hmac_secret", c.Identity.HMACSecret)
	v.Set("identity.jwk_file", c.Identity.JWKFile)
	v.Set("identity.token_ttl", c.Identity.TokenTTL.String())
	v.Set("visitor.kind", c.Visitor.Kind)
	v.Set("visitor.redis_addr", c.Visitor.RedisAddr)
	v.Set("visitor.fga_api_url", c.Visitor.FGAAPIURL)
	v.Set("visitor.fga_store_id", c.Visitor.FGAStoreID)
	v.Set("visitor.fga_model_id", c.Visitor.FGAModelID)
	v.Set("visitor.fga_api_token", c.Visitor.FGAAPIToken)
	v.Set("visitor.cache_size", c.Visitor.CacheSize)
	v.Set("visitor.cache_ttl", c.Visitor.CacheTTL.String())

	// The file holds secrets: create it owner-only before anything is
	// written, and tighten an existing one. WriteConfigAs keeps the mode of
	// an existing file.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o600)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return err
	}
	return v.WriteConfigAs(path)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}

	switch c.Store.Kind {
	case StoreMemory:
	case StoreFS:
		if c.Store.DataDir == "" {
			errs = append(errs, errors.New("store.data_dir is required for the fs store"))
		}
	case StorePostgres, StoreSQLite:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for the %s store", c.Store.Kind))
		}
	default:
		errs = append(errs, fmt.Errorf("store.kind %q is not one of memory|fs|postgres|sqlite", c.Store.Kind))
	}

	switch {
	case c.Identity.HMACSecret == "" && c.Identity.JWKFile == "":
		errs = append(errs, errors.New("identity.hmac_secret or identity.jwk_file is required"))
	case c.Identity.HMACSecret != "" && c.Identity.JWKFile != "":
		errs = append(errs, errors.New("identity.hmac_secret and identity.jwk_file are mutually exclusive"))
	case c.Identity.HMACSecret != "" && len(c.Identity.HMACSecret) < 32:
		errs = append(errs, errors.New("identity.hmac_secret must be at least 32 bytes"))
	}
	if c.Identity.TokenTTL <= 0 {
		errs = append(errs, errors.New("identity.token_ttl must be positive"))
	}

	switch c.Visitor.Kind {
	case "static":
	case "redis":
		if c.Visitor.RedisAddr == "" {
			errs = append(errs, errors.New("visitor.redis_addr is required for the redis lookup"))
		}
	case "fga":
		if c.Visitor.FGAAPIURL == "" || c.Visitor.FGAStoreID == "" {
			errs = append(errs, errors.New("visitor.fga_api_url and visitor.fga_store_id are required for the fga lookup"))
		}
	default:
		errs = append(errs, fmt.Errorf("visitor.kind %q is not one of static|redis|fga", c.Visitor.Kind))
	}
	if c.Visitor.CacheSize < 0 {
		errs = append(errs, errors.New("visitor.cache_size must not be negative"))
	}

	return errors.Join(errs...)
}
