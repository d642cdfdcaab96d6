package main

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/zenfi/core/internal/db"
	"github.com/zenfi/core/internal/mimes"
)

const (
	defaultPort                 = 9000
	defaultDBDriver             = db.DriverSQLite
	defaultDBDSN                = "zenfi.db"
	defaultStorageBackend       = "filesystem"
	defaultFilesystemRoot       = "files"
	defaultSignedURLTTLSeconds  = 300
	defaultMaxReceiptSizeMB     = 10
	defaultLightningProvider    = "mock"
	defaultActivationSats       = 1000
	defaultActivationTTLMinutes = 30
)

type Config struct {
	// API settings
	Port              int      `yaml:"port" envconfig:"PORT"`
	APIBase           string   `yaml:"api_base" envconfig:"API_BASE"`
	AuthSecret        string   `yaml:"auth_secret" envconfig:"AUTH_SECRET"`
	AdminUsers        []string `yaml:"admin_users" envconfig:"ADMIN_USERS"`
	MaxReceiptSizeMB  int64    `yaml:"max_receipt_size_mb" envconfig:"MAX_RECEIPT_SIZE_MB"`
	AcceptedMimetypes []string `yaml:"accepted_mimetypes" envconfig:"ACCEPTED_MIMETYPES"`

	// Record store
	DBDriver string `yaml:"db_driver" envconfig:"DB_DRIVER"`
	DBDSN    string `yaml:"db_dsn" envconfig:"DB_DSN"`

	// Receipt storage
	StorageBackend      string `yaml:"storage_backend" envconfig:"STORAGE_BACKEND"`
	S3Bucket            string `yaml:"s3_bucket" envconfig:"S3_BUCKET"`
	S3PublicBase        string `yaml:"s3_public_base" envconfig:"S3_PUBLIC_BASE"`
	FilesystemRoot      string `yaml:"filesystem_root" envconfig:"FILESYSTEM_ROOT"`
	SignedURLTTLSeconds int    `yaml:"signed_url_ttl_seconds" envconfig:"SIGNED_URL_TTL_SECONDS"`

	// Withdrawal activation
	LightningProvider    string `yaml:"lightning_provider" envconfig:"LIGHTNING_PROVIDER"`
	NodelessAPIKey       string `yaml:"nodeless_apikey" envconfig:"NODELESS_APIKEY"`
	NodelessStoreID      string `yaml:"nodeless_storeid" envconfig:"NODELESS_STOREID"`
	NodelessTestnet      bool   `yaml:"nodeless_testnet" envconfig:"NODELESS_TESTNET"`
	ZBDAPIKey            string `yaml:"zbd_apikey" envconfig:"ZBD_APIKEY"`
	ActivationSats       int    `yaml:"activation_sats" envconfig:"ACTIVATION_SATS"`
	ActivationTTLMinutes int    `yaml:"activation_ttl_minutes" envconfig:"ACTIVATION_TTL_MINUTES"`

	// Operator notifications
	NotifierNsec   string   `yaml:"notifier_nsec" envconfig:"NOTIFIER_NSEC"`
	NotifierRelays []string `yaml:"notifier_relays" envconfig:"NOTIFIER_RELAYS"`
}

// Load Config from a yaml file at path.
func (c *Config) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(c); err != nil {
		return err
	}

	c.applyDefaults()
	return c.validate()
}

// Load Config from the environment.
func (c *Config) LoadFromEnv() error {
	if err := envconfig.Process("", c); err != nil {
		return err
	}

	c.applyDefaults()
	return c.validate()
}

func (c *Config) SignedURLTTL() time.Duration {
	return time.Duration(c.SignedURLTTLSeconds) * time.Second
}

func (c *Config) ActivationTTL() time.Duration {
	return time.Duration(c.ActivationTTLMinutes) * time.Minute
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.APIBase == "" {
		c.APIBase = fmt.Sprintf("http://localhost:%d", c.Port)
	}
	if c.MaxReceiptSizeMB == 0 {
		c.MaxReceiptSizeMB = defaultMaxReceiptSizeMB
	}
	if len(c.AcceptedMimetypes) == 0 {
		c.AcceptedMimetypes = []string{
			mimes.ImageJPEG,
			mimes.ImagePNG,
			mimes.ImageWEBP,
			mimes.ImageHEIC,
			mimes.ImageGIF,
			mimes.PDF,
		}
	}
	if c.DBDriver == "" {
		c.DBDriver = defaultDBDriver
	}
	if c.DBDSN == "" && c.DBDriver == db.DriverSQLite {
		c.DBDSN = defaultDBDSN
	}
	if c.StorageBackend == "" {
		c.StorageBackend = defaultStorageBackend
	}
	if c.FilesystemRoot == "" {
		c.FilesystemRoot = defaultFilesystemRoot
	}
	if c.SignedURLTTLSeconds == 0 {
		c.SignedURLTTLSeconds = defaultSignedURLTTLSeconds
	}
	if c.LightningProvider == "" {
		c.LightningProvider = defaultLightningProvider
	}
	if c.ActivationSats == 0 {
		c.ActivationSats = defaultActivationSats
	}
	if c.ActivationTTLMinutes == 0 {
		c.ActivationTTLMinutes = defaultActivationTTLMinutes
	}
}

func (c *Config) validate() error {
	if len(c.AuthSecret) < 16 {
		return fmt.Errorf("auth_secret must be at least 16 characters")
	}
	switch c.StorageBackend {
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("s3 storage requires s3_bucket")
		}
	case "filesystem":
	default:
		return fmt.Errorf("unknown storage_backend %q. must be 's3' or 'filesystem'", c.StorageBackend)
	}
	return nil
}
