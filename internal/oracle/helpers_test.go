package oracle

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/mohamedkhairy/price-oracle/internal/notify"
	"github.com/mohamedkhairy/price-oracle/pkg/fixedpoint"
)

const day = 24 * time.Hour

var t0 = time.Unix(1700000000, 0).UTC()

// wad returns n whole units at 18 decimals
func wad(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), fixedpoint.WAD)
}

func wads(values ...uint64) []*uint256.Int {
	out := make([]*uint256.Int, len(values))
	for i, v := range values {
		out[i] = wad(v)
	}
	return out
}

func half() *uint256.Int {
	return fixedpoint.MustParse("500000000000000000")
}

func newRecorder() (*notify.Notifier, *notify.Recorder) {
	n := notify.NewNotifier()
	return n, notify.NewRecorder(n)
}
