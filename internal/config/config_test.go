package config

import (
	"testing"
	"time"

	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "marketplace-api", cfg.ServiceName)
	assert.Equal(t, ":8081", cfg.HTTP.Addr)
	assert.Equal(t, BackendPostgres, cfg.Store.Backend)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 100, cfg.Realtime.WindowLimit)
	assert.Equal(t, 500*time.Millisecond, cfg.Realtime.BaseDelay)
	assert.Equal(t, 8*time.Second, cfg.Realtime.MaxDelay)
	assert.Equal(t, 3, cfg.Realtime.MaxRetries)
	assert.Equal(t, time.Second, cfg.Realtime.Debounce)
	assert.Equal(t, 30*time.Second, cfg.Realtime.HealthyAfter)
	assert.Equal(t, 5, cfg.InventoryConflictRetries)

	fees, err := cfg.FeeTable()
	require.NoError(t, err)
	assert.Equal(t, "2000", fees.Fee(orders.PaymentTypeClick).String())
	assert.Equal(t, "1500", fees.Fee(orders.PaymentTypePayme).String())
	assert.Equal(t, "3000", fees.Fee(orders.PaymentTypeVisa).String())
	assert.Equal(t, "2500", fees.Fee("uzcard").String())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MARKET_HTTP_ADDR", ":9090")
	t.Setenv("MARKET_STORE_BACKEND", "Memory")
	t.Setenv("MARKET_KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MARKET_REALTIME_DEBOUNCE", "250ms")
	t.Setenv("MARKET_REFUND_FEE_CLICK", "1200.50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Realtime.Debounce)

	fees, err := cfg.FeeTable()
	require.NoError(t, err)
	assert.Equal(t, "1200.5", fees.Fee(orders.PaymentTypeClick).String())
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("MARKET_STORE_BACKEND", "mongo")
		_, err := Load()
		assert.ErrorContains(t, err, "unknown store backend")
	})
	t.Run("unparseable fee", func(t *testing.T) {
		t.Setenv("MARKET_REFUND_FEE_VISA", "three thousand")
		_, err := Load()
		assert.ErrorContains(t, err, "refund fee visa")
	})
	t.Run("unbounded window", func(t *testing.T) {
		t.Setenv("MARKET_REALTIME_WINDOW_LIMIT", "0")
		_, err := Load()
		assert.ErrorContains(t, err, "window_limit")
	})
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV(" a ,,b "))
	assert.Empty(t, splitCSV(""))
}
