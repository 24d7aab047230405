package redisx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "idem:order:create:ext-1", IdemOrderCreate("ext-1"))
	assert.Equal(t, "order_status:o-9", OrderStatus("o-9"))
	assert.Equal(t, "dedup:notifier:ev-3", Dedup("notifier", "ev-3"))
}
