package redisx

import (
	"fmt"
	"time"
)

const (
	// idem:order:create:{external_id} -> order json
	KeyIdemOrderCreate = "idem:order:create:%s"

	// order_status:{order_id} -> order json
	KeyOrderStatus = "order_status:%s"

	// dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func IdemOrderCreate(externalID string) string { return fmt.Sprintf(KeyIdemOrderCreate, externalID) }

func OrderStatus(orderID string) string { return fmt.Sprintf(KeyOrderStatus, orderID) }

func Dedup(service, eventID string) string { return fmt.Sprintf(KeyDedup, service, eventID) }
