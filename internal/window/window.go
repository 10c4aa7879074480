package window

import "time"

// Window bounds the observation queries for one aggregation run.
//
// CutoffMax is the start of the hour containing the invocation instant;
// CutoffMin is the first minute of the previous hour, so the closed range
// [CutoffMin, CutoffMax] covers 61 minute-marks. The rate feed samples on
// the half hour, so its range is widened down to the start of the previous
// hour and trimmed just short of the final price minute.
type Window struct {
	CutoffMin time.Time
	CutoffMax time.Time
	RateMin   time.Time
	RateMax   time.Time
}

// Compute derives the alignment window for the given invocation instant.
// Pure function: a fixed instant always yields the same window.
func Compute(now time.Time) Window {
	cutoffMax := now.UTC().Truncate(time.Hour)
	cutoffMin := cutoffMax.Add(-time.Hour + time.Minute)

	return Window{
		CutoffMin: cutoffMin,
		CutoffMax: cutoffMax,
		RateMin:   cutoffMin.Truncate(time.Hour),
		RateMax:   cutoffMax.Add(-time.Minute - time.Second),
	}
}

// PeriodStart 返回合并读取所用的上一小时起点。
func (w Window) PeriodStart() time.Time {
	return w.CutoffMin.Truncate(time.Hour)
}
