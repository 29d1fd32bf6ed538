package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Storage  StorageConfig       `yaml:"storage"`
	Database DatabaseConfig      `yaml:"database"`
	RabbitMQ RabbitMQConfig      `yaml:"rabbitmq"`
	API      APIConfig           `yaml:"api"`
	Sync     SyncConfig          `yaml:"sync"`
	HTTP     HTTPConfig          `yaml:"http"`
	Products map[string][]string `yaml:"products"`
	// ProductOrder fixes the order products are reported in.
	ProductOrder   []string `yaml:"product_order"`
	DefaultProduct string   `yaml:"default_product"`
	LogLevel       string   `yaml:"log_level"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
}

// RabbitMQ publishing is disabled when URL is empty.
type RabbitMQConfig struct {
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	ArticleCount int           `yaml:"article_count"`
	Timeout      time.Duration `yaml:"timeout"`
	Retry        RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
	// RetainOnError keeps existing guides whose detail fetch or local write
	// failed instead of deleting them at the end of the run.
	RetainOnError *bool `yaml:"retain_on_error"`
}

func (s SyncConfig) Retain() bool {
	return s.RetainOnError == nil || *s.RetainOnError
}

type HTTPConfig struct {
	Addr       string `yaml:"addr"`
	AdminToken string `yaml:"admin_token"`
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment variables in data and decodes it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverPostgres
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "guide_sync"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "guides"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "guide_changes"
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://halo.haloservicedesk.com/api"
	}
	if c.API.ArticleCount == 0 {
		c.API.ArticleCount = 5000
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.Retry.MaxAttempts == 0 {
		c.API.Retry.MaxAttempts = 3
	}
	if c.API.Retry.InitialBackoff == 0 {
		c.API.Retry.InitialBackoff = 1 * time.Second
	}
	if c.API.Retry.MaxBackoff == 0 {
		c.API.Retry.MaxBackoff = 30 * time.Second
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = 6 * time.Hour
	}
	if c.Sync.Timeout == 0 {
		c.Sync.Timeout = 30 * time.Minute
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if len(c.Products) == 0 {
		c.Products = DefaultProducts()
		c.ProductOrder = DefaultProductOrder()
	}
	if len(c.ProductOrder) == 0 {
		for product := range c.Products {
			c.ProductOrder = append(c.ProductOrder, product)
		}
		sort.Strings(c.ProductOrder)
	}
	if c.DefaultProduct == "" {
		c.DefaultProduct = "default-product"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	ordered := make(map[string]bool, len(c.ProductOrder))
	for _, product := range c.ProductOrder {
		if _, ok := c.Products[product]; !ok {
			return fmt.Errorf("product_order names unknown product %q", product)
		}
		ordered[product] = true
	}
	for product := range c.Products {
		if !ordered[product] {
			return fmt.Errorf("product %q is missing from product_order", product)
		}
	}
	return nil
}

// DefaultProducts maps each product to the root FAQ list slugs it shows.
func DefaultProducts() map[string][]string {
	return map[string][]string{
		"halocrm":  {"administrator-guides", "halocrm-user-guides", "user-guides", "security"},
		"halopsa":  {"administrator-guides", "halopsa-guides", "user-guides", "security"},
		"haloitsm": {"administrator-guides", "user-guides", "security"},
	}
}

func DefaultProductOrder() []string {
	return []string{"halocrm", "halopsa", "haloitsm"}
}
