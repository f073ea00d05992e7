package registry

import (
	"github.com/mohamedkhairy/price-oracle/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	oraclePrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_price",
			Help: "Current oracle price in display units",
		},
		[]string{"oracle"},
	)

	oracleBroken = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "oracle_broken",
			Help: "1 while the oracle's deviation guard is tripped",
		},
		[]string{"oracle"},
	)
)

// observe exports a status snapshot. The price gauge is approximate and
// only meant for dashboards.
func observe(s models.OracleStatus) {
	broken := 0.0
	if s.Broken {
		broken = 1
	}
	oracleBroken.WithLabelValues(s.Name).Set(broken)

	if s.Display == "" {
		return
	}
	if d, err := decimal.NewFromString(s.Display); err == nil {
		f, _ := d.Float64()
		oraclePrice.WithLabelValues(s.Name).Set(f)
	}
}
