package view

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
	"github.com/pombreda/go-tcdb/lib/db"
)

// countOp increments the per-kind, per-operation counter. Counters are
// created lazily and live in the default metrics set, so hosts can expose
// them with metrics.WritePrometheus.
func countOp(kind db.Kind, op string) {
	metrics.GetOrCreateCounter(
		fmt.Sprintf(`tcdb_ops_total{kind=%q,op=%q}`, kind.String(), op),
	).Inc()
}
