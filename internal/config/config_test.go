package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("log_level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 5000, cfg.API.ArticleCount)
	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, 3, cfg.API.Retry.MaxAttempts)
	assert.Equal(t, 6*time.Hour, cfg.Sync.Interval)
	assert.True(t, cfg.Sync.Retain())
	assert.Equal(t, DefaultProductOrder(), cfg.ProductOrder)
	assert.Equal(t, "default-product", cfg.DefaultProduct)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("GUIDE_SYNC_DB_PASSWORD", "s3cret")

	cfg, err := Parse([]byte(`
database:
  host: db
  user: guides
  password: ${GUIDE_SYNC_DB_PASSWORD}
  dbname: guides
sync:
  interval: 2h
  retain_on_error: false
`))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, 2*time.Hour, cfg.Sync.Interval)
	assert.False(t, cfg.Sync.Retain())
	assert.Equal(t, "host=db port=5432 user=guides password=s3cret dbname=guides sslmode=disable", cfg.Database.DSN())
}

func TestParse_CustomProductsSortedWhenNoOrder(t *testing.T) {
	cfg, err := Parse([]byte(`
products:
  zeta: [security]
  alpha: [user-guides]
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "zeta"}, cfg.ProductOrder)
}

func TestParse_RejectsUnknownDriver(t *testing.T) {
	_, err := Parse([]byte("storage:\n  driver: mysql\n"))
	assert.ErrorContains(t, err, "unknown storage driver")
}

func TestParse_RejectsUnknownOrderedProduct(t *testing.T) {
	_, err := Parse([]byte(`
products:
  halopsa: [security]
product_order: [halopsa, haloitsm]
`))
	assert.ErrorContains(t, err, "haloitsm")
}

func TestParse_RejectsProductMissingFromOrder(t *testing.T) {
	_, err := Parse([]byte(`
products:
  halopsa: [security]
  halocrm: [user-guides]
product_order: [halopsa]
`))
	assert.ErrorContains(t, err, `product "halocrm" is missing from product_order`)
}

func TestLoad_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  driver: memory\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")
}
