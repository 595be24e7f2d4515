package aggregator

import (
	"fmt"
	"time"

	"github.com/bashkirian/kpi-engine/pkg/models"
)

type span struct {
	key   string
	start time.Time
	end   time.Time
	hour  int
}

func hourKey(h int) string {
	return fmt.Sprintf("%02d", h)
}

// bucketSpans перечисляет все бакеты окна, включая пустые
func bucketSpans(w models.Window, g models.Granularity, loc *time.Location) []span {
	if !w.End.After(w.Start) {
		return nil
	}
	switch g {
	case models.GranularityHourOfDay:
		spans := make([]span, 24)
		for h := 0; h < 24; h++ {
			spans[h] = span{key: hourKey(h), hour: h}
		}
		return spans
	case models.GranularityHour:
		local := w.Start.In(loc)
		start := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
		if start.After(w.Start) {
			// неоднозначный час при переходе на зимнее время
			start = start.Add(-time.Hour)
		}
		var spans []span
		for s := start; s.Before(w.End); s = s.Add(time.Hour) {
			spans = append(spans, span{key: s.Format(time.RFC3339), start: s, end: s.Add(time.Hour), hour: -1})
		}
		return spans
	case models.GranularityDay:
		local := w.Start.In(loc)
		var spans []span
		for d := 0; ; d++ {
			s := time.Date(local.Year(), local.Month(), local.Day()+d, 0, 0, 0, 0, loc)
			if !s.Before(w.End) {
				break
			}
			e := time.Date(local.Year(), local.Month(), local.Day()+d+1, 0, 0, 0, 0, loc)
			spans = append(spans, span{key: s.Format("2006-01-02"), start: s, end: e, hour: -1})
		}
		return spans
	}
	return nil
}
