package metrics

import (
	"math"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// EngineSnapshot is a point-in-time readback of the engine metrics, served on
// the operator stats endpoint so a dashboard does not need to scrape and
// aggregate Prometheus itself.
type EngineSnapshot struct {
	CyclesTotal     int64            `json:"cycles_total"`
	CallsDispatched int64            `json:"calls_dispatched"`
	CallsFailed     int64            `json:"calls_failed"`
	ReportsTotal    int64            `json:"reports_total"`
	FollowUpsSent   int64            `json:"follow_ups_sent"`
	CycleDuration   DurationSnapshot `json:"cycle_duration"`
}

// DurationSnapshot summarizes the cycle duration histogram.
type DurationSnapshot struct {
	Total int64   `json:"total"`
	P90Ms float64 `json:"p90_ms"`
	P95Ms float64 `json:"p95_ms"`
}

// Snapshot gathers the current metric families and folds them into an
// EngineSnapshot. A nil gatherer reads the default registry.
func Snapshot(gatherer prometheus.Gatherer) EngineSnapshot {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return EngineSnapshot{}
	}

	return EngineSnapshot{
		CyclesTotal:     sumCounter(mfs, "callflow_dispatch_cycles_total", "", ""),
		CallsDispatched: sumCounter(mfs, "callflow_dispatch_calls_total", "status", "ok"),
		CallsFailed:     sumCounter(mfs, "callflow_dispatch_calls_total", "status", "error"),
		ReportsTotal:    sumCounter(mfs, "callflow_reconcile_reports_total", "", ""),
		FollowUpsSent:   sumCounter(mfs, "callflow_reconcile_follow_ups_total", "status", "sent"),
		CycleDuration:   snapshotCycleDuration(mfs),
	}
}

// sumCounter totals a counter family, optionally filtered to one label value.
func sumCounter(mfs []*dto.MetricFamily, name, labelName, labelValue string) int64 {
	var total float64
	for _, mf := range mfs {
		if mf == nil || mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if metric == nil || metric.GetCounter() == nil {
				continue
			}
			if labelName != "" && !hasLabel(metric, labelName, labelValue) {
				continue
			}
			total += metric.GetCounter().GetValue()
		}
	}
	return int64(total)
}

func snapshotCycleDuration(mfs []*dto.MetricFamily) DurationSnapshot {
	var family *dto.MetricFamily
	for _, mf := range mfs {
		if mf != nil && mf.GetName() == "callflow_dispatch_cycle_duration_seconds" {
			family = mf
			break
		}
	}
	if family == nil {
		return DurationSnapshot{}
	}

	cumulativeByUpper := map[float64]uint64{}
	var sampleCount uint64
	for _, metric := range family.Metric {
		if metric == nil {
			continue
		}
		h := metric.GetHistogram()
		if h == nil {
			continue
		}
		sampleCount += h.GetSampleCount()
		for _, b := range h.Bucket {
			if b == nil {
				continue
			}
			cumulativeByUpper[b.GetUpperBound()] += b.GetCumulativeCount()
		}
	}
	if sampleCount == 0 || len(cumulativeByUpper) == 0 {
		return DurationSnapshot{}
	}

	uppers := make([]float64, 0, len(cumulativeByUpper))
	for upper := range cumulativeByUpper {
		uppers = append(uppers, upper)
	}
	sort.Float64s(uppers)

	return DurationSnapshot{
		Total: int64(sampleCount),
		P90Ms: histogramQuantile(0.90, sampleCount, uppers, cumulativeByUpper) * 1000.0,
		P95Ms: histogramQuantile(0.95, sampleCount, uppers, cumulativeByUpper) * 1000.0,
	}
}

func hasLabel(metric *dto.Metric, name, value string) bool {
	for _, lp := range metric.Label {
		if lp == nil {
			continue
		}
		if lp.GetName() == name && lp.GetValue() == value {
			return true
		}
	}
	return false
}

func histogramQuantile(q float64, total uint64, uppers []float64, cumulativeByUpper map[float64]uint64) float64 {
	if total == 0 || q <= 0 {
		return 0
	}
	if q >= 1 {
		for i := len(uppers) - 1; i >= 0; i-- {
			if !math.IsInf(uppers[i], 1) {
				return uppers[i]
			}
		}
		return 0
	}

	target := q * float64(total)
	var prevUpper float64
	var prevCum float64

	for _, upper := range uppers {
		cum := float64(cumulativeByUpper[upper])
		if cum < target {
			prevUpper = upper
			prevCum = cum
			continue
		}

		// If we can't interpolate, return the bucket upper bound.
		bucketCount := cum - prevCum
		if bucketCount <= 0 || upper == prevUpper {
			return upper
		}
		if math.IsInf(upper, 1) {
			return prevUpper
		}

		fraction := (target - prevCum) / bucketCount
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}

		lower := prevUpper
		return lower + fraction*(upper-lower)
	}

	return uppers[len(uppers)-1]
}
