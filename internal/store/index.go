package store

import (
	"sort"
	"strings"

	"github.com/ariefcatur/go-marketplace-core/internal/apperr"
)

// IndexSet lists, per collection, the filter field combinations a backend can
// serve together with the updated_at ordering. Anything else is rejected as
// too complex, the way document stores refuse queries lacking a composite index.
type IndexSet map[string][][]string

// DefaultIndexes holds single-field indexes only.
func DefaultIndexes() IndexSet {
	return IndexSet{
		CollectionProducts: {{"seller_id"}, {"kind"}, {"available"}},
		CollectionOrders:   {{"seller_id"}, {"buyer_id"}, {"product_id"}, {"status"}},
		CollectionRefunds:  {{"order_id"}, {"status"}},
	}
}

func (s IndexSet) Check(q Query) error {
	if len(q.Filters) == 0 {
		return nil
	}
	want := fieldKey(q.Filters)
	for _, combo := range s[q.Collection] {
		if comboKey(combo) == want {
			return nil
		}
	}
	return apperr.QueryTooComplex("no index on " + q.Collection + "(" + want + ")")
}

func fieldKey(fs []Filter) string {
	fields := make([]string, 0, len(fs))
	for _, f := range fs {
		fields = append(fields, f.Field)
	}
	return comboKey(fields)
}

func comboKey(fields []string) string {
	cp := append([]string(nil), fields...)
	sort.Strings(cp)
	return strings.Join(cp, ",")
}
