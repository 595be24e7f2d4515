// Package derived считает метрики, которые не сводятся к суммам: классы SLA,
// концентрацию выручки, квадранты меню, почасовые срезы.
package derived

// SLAClass класс задержки относительно SLA кухни
type SLAClass string

const (
	SLAOk       SLAClass = "ok"
	SLAWithin   SLAClass = "within_sla"
	SLAWarning  SLAClass = "warning"
	SLACritical SLAClass = "critical"
)

// Пороги - доли единственного настраиваемого SLA
const (
	slaOkRatio      = 0.7
	slaWarningRatio = 1.2
)

// ClassifySLA классифицирует длительность приготовления (в секундах)
func ClassifySLA(durationSeconds, slaMinutes float64) SLAClass {
	sla := slaMinutes * 60
	switch {
	case durationSeconds <= slaOkRatio*sla:
		return SLAOk
	case durationSeconds <= sla:
		return SLAWithin
	case durationSeconds <= slaWarningRatio*sla:
		return SLAWarning
	default:
		return SLACritical
	}
}

// Delayed: доставка вышла за SLA
func (c SLAClass) Delayed() bool {
	return c == SLAWarning || c == SLACritical
}

// DelayStats распределение доставок по классам SLA
type DelayStats struct {
	Total     int64   `json:"total"`
	Ok        int64   `json:"ok"`
	WithinSLA int64   `json:"within_sla"`
	Warning   int64   `json:"warning"`
	Critical  int64   `json:"critical"`
	Delayed   int64   `json:"delayed"`
	DelayRate float64 `json:"delay_rate"`
}

func DelayBreakdown(durations []float64, slaMinutes float64) DelayStats {
	var s DelayStats
	for _, d := range durations {
		s.Total++
		c := ClassifySLA(d, slaMinutes)
		switch c {
		case SLAOk:
			s.Ok++
		case SLAWithin:
			s.WithinSLA++
		case SLAWarning:
			s.Warning++
		case SLACritical:
			s.Critical++
		}
		if c.Delayed() {
			s.Delayed++
		}
	}
	if s.Total > 0 {
		s.DelayRate = float64(s.Delayed) / float64(s.Total)
	}
	return s
}
