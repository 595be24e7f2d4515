package derived

import (
	"time"

	"github.com/bashkirian/kpi-engine/internal/aggregator"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

const (
	peakHourRatio     = 0.8
	criticalHourRatio = 1.2
)

type HourStat struct {
	Hour     int     `json:"hour"`
	Count    int64   `json:"count"`
	Avg      float64 `json:"avg"`
	Peak     bool    `json:"peak"`
	Critical bool    `json:"critical"`
}

type HourlyReport struct {
	Hours         []HourStat `json:"hours"`
	PeakHours     []int      `json:"peak_hours"`
	CriticalHours []int      `json:"critical_hours"`
	MaxCount      int64      `json:"max_count"`
}

// HourlySlice раскладывает события по часам суток. Пиковый час: count >= 0.8*max.
// Критический час: среднее (секунды) > 1.2*SLA; slaMinutes <= 0 отключает проверку.
func HourlySlice(events []models.AttributedEvent, w models.Window, slaMinutes float64, loc *time.Location) HourlyReport {
	res := aggregator.Aggregate(events, w, aggregator.Options{
		BucketBy: models.GranularityHourOfDay,
		Location: loc,
	})

	report := HourlyReport{Hours: make([]HourStat, 0, len(res.Buckets)), PeakHours: []int{}, CriticalHours: []int{}}
	for _, b := range res.Buckets {
		if b.Count > report.MaxCount {
			report.MaxCount = b.Count
		}
	}
	criticalSeconds := criticalHourRatio * slaMinutes * 60

	for _, b := range res.Buckets {
		h := HourStat{Hour: *b.Hour, Count: b.Count, Avg: b.Avg}
		if report.MaxCount > 0 && float64(b.Count) >= peakHourRatio*float64(report.MaxCount) {
			h.Peak = true
			report.PeakHours = append(report.PeakHours, h.Hour)
		}
		if slaMinutes > 0 && b.Count > 0 && b.Avg > criticalSeconds {
			h.Critical = true
			report.CriticalHours = append(report.CriticalHours, h.Hour)
		}
		report.Hours = append(report.Hours, h)
	}
	return report
}

// ActiveHoursMean среднее количество по часам, где были события
func (r HourlyReport) ActiveHoursMean() float64 {
	var total, active int64
	for _, h := range r.Hours {
		if h.Count > 0 {
			total += h.Count
			active++
		}
	}
	if active == 0 {
		return 0
	}
	return float64(total) / float64(active)
}
