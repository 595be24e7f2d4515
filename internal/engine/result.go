package engine

import (
	"github.com/bashkirian/kpi-engine/internal/attribution"
	"github.com/bashkirian/kpi-engine/internal/comparator"
	"github.com/bashkirian/kpi-engine/internal/derived"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

// Result ответ GetOverview / GetDomainAnalysis
type Result struct {
	Domain            models.Domain                      `json:"domain,omitempty"`
	Window            models.Window                      `json:"window"`
	PreviousWindow    models.Window                      `json:"previous_window"`
	KPIs              map[string]float64                 `json:"kpis"`
	Comparison        map[string]models.ComparisonResult `json:"comparison"`
	Alerts            []models.Alert                     `json:"alerts"`
	Breakdowns        Breakdowns                         `json:"breakdowns"`
	UnattributedCount int64                              `json:"unattributed_count"`
}

// Breakdowns производные разрезы; заполняются только поля запрошенных доменов
type Breakdowns struct {
	RevenueSeries   *models.AggregateResult `json:"revenue_series,omitempty"`
	PaymentMethods  []derived.Share         `json:"payment_methods,omitempty"`
	RevenueByWaiter []models.GroupStat      `json:"revenue_by_waiter,omitempty"`

	PrepTimeSeries *models.AggregateResult `json:"prep_time_series,omitempty"`
	Delay          *derived.DelayStats     `json:"delay,omitempty"`
	KitchenHourly  *derived.HourlyReport   `json:"kitchen_hourly,omitempty"`

	TabsByWaiter     []derived.Share       `json:"tabs_by_waiter,omitempty"`
	DeliveryByWaiter []models.GroupStat    `json:"delivery_by_waiter,omitempty"`
	Overlaps         []attribution.Overlap `json:"interval_overlaps,omitempty"`

	TopItems      []models.GroupStat      `json:"top_items,omitempty"`
	Concentration *derived.Concentration  `json:"concentration,omitempty"`
	Quadrants     *derived.QuadrantReport `json:"quadrants,omitempty"`

	OrderSeries *models.AggregateResult `json:"order_series,omitempty"`
	OrderHourly *derived.HourlyReport   `json:"order_hourly,omitempty"`
}

// metricSet KPI текущего окна и те из них, что сравниваются с прошлым
type metricSet struct {
	current  map[string]float64
	previous map[string]float64
}

func newMetricSet() metricSet {
	return metricSet{current: map[string]float64{}, previous: map[string]float64{}}
}

// pair KPI со сравнением
func (m metricSet) pair(key string, current, previous float64) {
	m.current[key] = current
	m.previous[key] = previous
}

func newResult(domain models.Domain, ds *dataset) *Result {
	return &Result{
		Domain:            domain,
		Window:            ds.current.window,
		PreviousWindow:    ds.previous.window,
		KPIs:              map[string]float64{},
		Comparison:        map[string]models.ComparisonResult{},
		UnattributedCount: ds.current.unattributed(),
	}
}

func (r *Result) addMetrics(m metricSet) {
	for k, v := range m.current {
		r.KPIs[k] = v
	}
	current := make(map[string]float64, len(m.previous))
	for k := range m.previous {
		current[k] = m.current[k]
	}
	for k, cmp := range comparator.CompareAll(current, m.previous) {
		r.Comparison[k] = cmp
	}
}

func compareKey(m metricSet, key string) models.ComparisonResult {
	return comparator.Compare(m.current[key], m.previous[key])
}
