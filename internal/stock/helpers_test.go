package stock

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/retail-backend/pkg/pagination"
)

func paginationParams(limit int) pagination.Params {
	return pagination.Params{Limit: limit}
}

func paginationWithCursor(limit int, cursor string) pagination.Params {
	return pagination.Params{Limit: limit, Cursor: cursor}
}

// counterValue sums every series of the named counter family.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
