package dashboard

import (
	"fmt"
	"math"
	"time"

	"aamonitor/internal/api"
)

// Tier is the color band of a gauge.
type Tier string

const (
	TierGood     Tier = "color-good"
	TierWarning  Tier = "color-warn"
	TierCritical Tier = "color-crit"
)

// Gauge is a "remaining fuel" indicator for one quota pool or model.
type Gauge struct {
	Label    string  `json:"label"`
	SubLabel string  `json:"sublabel"`
	Percent  float64 `json:"percent"`
	Tier     Tier    `json:"tier"`
}

// Display is the integer shown inside the ring.
func (g Gauge) Display() int {
	return int(math.Round(g.Percent))
}

// Remaining converts a usage percentage into the remaining share.
func Remaining(usage float64) float64 {
	return api.ClampPercent(100 - usage)
}

func TierFor(remaining float64) Tier {
	switch {
	case remaining < 20:
		return TierCritical
	case remaining < 50:
		return TierWarning
	default:
		return TierGood
	}
}

// NewGauge builds a gauge from a usage percentage. The sub-label is the
// override when given, else the remaining credit count when total is known,
// else the remaining percentage.
func NewGauge(label string, available, total, usage float64, override string) Gauge {
	remaining := Remaining(usage)
	sub := override
	if sub == "" {
		if total > 0 {
			// available is what is left; total minus available would be
			// the used share, not the remaining one.
			sub = remainingCount(available)
		} else {
			sub = remainingPercentLabel(remaining)
		}
	}
	return Gauge{
		Label:    label,
		SubLabel: sub,
		Percent:  remaining,
		Tier:     TierFor(remaining),
	}
}

func remainingCount(available float64) string {
	left := math.Max(0, available)
	if math.IsNaN(left) {
		left = 0
	}
	if left >= 1000 {
		return fmt.Sprintf("%.1fk restants", left/1000)
	}
	return fmt.Sprintf("%d restants", int(math.Round(left)))
}

func remainingPercentLabel(remaining float64) string {
	return fmt.Sprintf("%.0f%% Restant", remaining)
}

// modelSubLabel appends the reset moment: a clock time when it falls on
// now's day, a date otherwise.
func modelSubLabel(remaining float64, resetTime string, now time.Time) string {
	label := remainingPercentLabel(remaining)
	reset, ok := api.ParseTimestamp(resetTime)
	if !ok {
		return label
	}
	reset = reset.In(now.Location())
	ry, rm, rd := reset.Date()
	ny, nm, nd := now.Date()
	if ry == ny && rm == nm && rd == nd {
		return label + " (Reset " + reset.Format("15:04") + ")"
	}
	return label + " (Reset " + reset.Format("02/01/2006") + ")"
}

func valueOr(p *float64, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	return *p
}
