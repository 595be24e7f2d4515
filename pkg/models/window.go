package models

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidRange = errors.New("invalid range: end must be after start")

// Window полуоткрытый диапазон [Start, End)
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidRange)
	}
	if !w.End.After(w.Start) {
		return ErrInvalidRange
	}
	return nil
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains: start включительно, end исключительно
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Previous возвращает окно той же длительности непосредственно перед текущим
func (w Window) Previous() Window {
	return Window{Start: w.Start.Add(-w.Duration()), End: w.Start}
}

// Granularity ключ разбиения окна на бакеты
type Granularity string

const (
	GranularityNone      Granularity = ""
	GranularityHour      Granularity = "hour"
	GranularityDay       Granularity = "day"
	GranularityHourOfDay Granularity = "hour_of_day"
)

func (g Granularity) Valid() bool {
	switch g {
	case GranularityNone, GranularityHour, GranularityDay, GranularityHourOfDay:
		return true
	}
	return false
}

// GroupBy разбивка внутри бакета
type GroupBy string

const (
	GroupByNone     GroupBy = ""
	GroupByEntity   GroupBy = "entity"
	GroupByGroupKey GroupBy = "group_key"
)
