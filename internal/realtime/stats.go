package realtime

import (
	"github.com/ariefcatur/go-marketplace-core/internal/orders"
	"github.com/shopspring/decimal"
)

type OrderStats struct {
	Total    int                   `json:"total"`
	ByStatus map[orders.Status]int `json:"by_status"`
	// Backlog counts open orders accepted as backlog demand.
	Backlog          int             `json:"backlog"`
	DeliveredRevenue decimal.Decimal `json:"delivered_revenue"`
	PendingRefunds   int             `json:"pending_refunds"`
	RefundedAmount   decimal.Decimal `json:"refunded_amount"`
}

func ComputeOrderStats(list []orders.Order) OrderStats {
	st := OrderStats{
		ByStatus:         map[orders.Status]int{},
		DeliveredRevenue: decimal.Zero,
		RefundedAmount:   decimal.Zero,
	}
	for _, o := range list {
		st.Total++
		st.ByStatus[o.Status]++
		if !o.FromStock && !o.Status.Terminal() {
			st.Backlog++
		}
		if o.Status == orders.StatusDelivered {
			st.DeliveredRevenue = st.DeliveredRevenue.Add(o.TotalPrice)
		}
		switch o.RefundStatus {
		case orders.RefundPending:
			st.PendingRefunds++
		case orders.RefundProcessed:
			if o.RefundAmount != nil {
				st.RefundedAmount = st.RefundedAmount.Add(*o.RefundAmount)
			}
		}
	}
	return st
}
