package alerts

import (
	"fmt"

	"github.com/bashkirian/kpi-engine/internal/derived"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

const (
	TypeRevenueDrop             models.AlertType = "REVENUE_DROP"
	TypePaymentMethodDependency models.AlertType = "PAYMENT_METHOD_DEPENDENCY"
	TypeAverageTicketDrop       models.AlertType = "AVERAGE_TICKET_DROP"

	TypeHighDelayRate    models.AlertType = "HIGH_DELAY_RATE"
	TypePrepTimeIncrease models.AlertType = "PREP_TIME_INCREASE"
	TypeCriticalHours    models.AlertType = "CRITICAL_HOURS"

	TypeWorkloadImbalance  models.AlertType = "WORKLOAD_IMBALANCE"
	TypeUnattributedEvents models.AlertType = "UNATTRIBUTED_EVENTS"

	TypeHighDemandUnavailable models.AlertType = "HIGH_DEMAND_UNAVAILABLE"
	TypeRevenueConcentration  models.AlertType = "REVENUE_CONCENTRATION"
	TypeProblematicItems      models.AlertType = "PROBLEMATIC_ITEMS"

	TypeOrderVolumeDrop      models.AlertType = "ORDER_VOLUME_DROP"
	TypeHighCancellationRate models.AlertType = "HIGH_CANCELLATION_RATE"
	TypePeakHourOverload     models.AlertType = "PEAK_HOUR_OVERLOAD"
)

// FinanceInput выручка, средний чек и доли способов оплаты
type FinanceInput struct {
	Revenue        models.ComparisonResult
	AverageTicket  models.ComparisonResult
	PaymentMethods []derived.Share
}

func (FinanceInput) Domain() models.Domain { return models.DomainFinance }
func (FinanceInput) sealed()               {}

var financeRules = []rule[FinanceInput]{
	{TypeRevenueDrop, func(in FinanceInput) (models.Alert, bool) {
		pct, ok := in.Revenue.Percent()
		if !ok {
			return models.Alert{}, false
		}
		sev, hit := dropSeverity(pct, RevenueDropHighPct, RevenueDropMediumPct)
		if !hit {
			return models.Alert{}, false
		}
		return models.Alert{
			Severity: sev,
			Message:  fmt.Sprintf("Revenue dropped %.1f%% compared to the previous period", -pct),
			Metrics: map[string]any{
				"current": in.Revenue.Current, "previous": in.Revenue.Previous, "percent_change": pct,
			},
		}, true
	}},
	{TypePaymentMethodDependency, func(in FinanceInput) (models.Alert, bool) {
		for _, s := range in.PaymentMethods {
			if s.Share > PaymentMethodDependencySharePct {
				return models.Alert{
					Severity: models.SeverityMedium,
					Message:  fmt.Sprintf("Payment method %q accounts for %.1f%% of revenue", s.Key, s.Share),
					Metrics:  map[string]any{"method": s.Key, "share": s.Share, "amount": s.Value},
				}, true
			}
		}
		return models.Alert{}, false
	}},
	{TypeAverageTicketDrop, func(in FinanceInput) (models.Alert, bool) {
		pct, ok := in.AverageTicket.Percent()
		if !ok || pct > AverageTicketDropPct {
			return models.Alert{}, false
		}
		return models.Alert{
			Severity: models.SeverityMedium,
			Message:  fmt.Sprintf("Average ticket dropped %.1f%%", -pct),
			Metrics: map[string]any{
				"current": in.AverageTicket.Current, "previous": in.AverageTicket.Previous, "percent_change": pct,
			},
		}, true
	}},
}

// KitchenInput задержки относительно SLA и критические часы
type KitchenInput struct {
	SLAMinutes    float64
	Delay         derived.DelayStats
	PrepTime      models.ComparisonResult
	CriticalHours []int
}

func (KitchenInput) Domain() models.Domain { return models.DomainKitchen }
func (KitchenInput) sealed()               {}

var kitchenRules = []rule[KitchenInput]{
	{TypeHighDelayRate, func(in KitchenInput) (models.Alert, bool) {
		if in.Delay.Total == 0 {
			return models.Alert{}, false
		}
		rate := float64(in.Delay.Delayed) / float64(in.Delay.Total)
		var sev models.Severity
		switch {
		case rate > DelayRateHigh:
			sev = models.SeverityHigh
		case rate > DelayRateMedium:
			sev = models.SeverityMedium
		default:
			return models.Alert{}, false
		}
		return models.Alert{
			Severity: sev,
			Message:  fmt.Sprintf("%.1f%% of orders exceeded the %.0f minute SLA", rate*100, in.SLAMinutes),
			Metrics: map[string]any{
				"delayed": in.Delay.Delayed, "total": in.Delay.Total, "delay_rate": rate, "sla_minutes": in.SLAMinutes,
			},
		}, true
	}},
	{TypePrepTimeIncrease, func(in KitchenInput) (models.Alert, bool) {
		pct, ok := in.PrepTime.Percent()
		if !ok || pct < PrepTimeIncreasePct {
			return models.Alert{}, false
		}
		return models.Alert{
			Severity: models.SeverityMedium,
			Message:  fmt.Sprintf("Average preparation time increased %.1f%%", pct),
			Metrics: map[string]any{
				"current_seconds": in.PrepTime.Current, "previous_seconds": in.PrepTime.Previous, "percent_change": pct,
			},
		}, true
	}},
	{TypeCriticalHours, func(in KitchenInput) (models.Alert, bool) {
		if len(in.CriticalHours) == 0 {
			return models.Alert{}, false
		}
		return models.Alert{
			Severity: models.SeverityLow,
			Message:  fmt.Sprintf("%d hour(s) averaged above 1.2x SLA", len(in.CriticalHours)),
			Metrics:  map[string]any{"hours": in.CriticalHours},
		}, true
	}},
}

// WaiterInput распределение счетов по официантам и неатрибутированные события
type WaiterInput struct {
	SubjectsByEntity  []derived.Share
	UnattributedCount int64
	TotalEvents       int64
}

func (WaiterInput) Domain() models.Domain { return models.DomainWaiters }
func (WaiterInput) sealed()               {}

var waiterRules = []rule[WaiterInput]{
	{TypeWorkloadImbalance, func(in WaiterInput) (models.Alert, bool) {
		if len(in.SubjectsByEntity) < WorkloadMinEntities {
			return models.Alert{}, false
		}
		for _, s := range in.SubjectsByEntity {
			if s.Share > WorkloadImbalanceSharePct {
				return models.Alert{
					Severity: models.SeverityMedium,
					Message:  fmt.Sprintf("Waiter %s handled %.1f%% of tabs", s.Key, s.Share),
					Metrics:  map[string]any{"entity_id": s.Key, "share": s.Share, "tabs": s.Value},
				}, true
			}
		}
		return models.Alert{}, false
	}},
	{TypeUnattributedEvents, func(in WaiterInput) (models.Alert, bool) {
		if in.UnattributedCount == 0 {
			return models.Alert{}, false
		}
		sev := models.SeverityLow
		var rate float64
		if in.TotalEvents > 0 {
			rate = float64(in.UnattributedCount) / float64(in.TotalEvents)
		}
		if rate > UnattributedMediumRate {
			sev = models.SeverityMedium
		}
		return models.Alert{
			Severity: sev,
			Message:  fmt.Sprintf("%d event(s) had no responsible waiter at the time they happened", in.UnattributedCount),
			Metrics:  map[string]any{"unattributed": in.UnattributedCount, "total": in.TotalEvents, "rate": rate},
		}, true
	}},
}

// ItemDemand спрос на позицию за последние 30 дней и её доступность
type ItemDemand struct {
	ID             string
	Name           string
	TrailingVolume float64
	Available      bool
}

// MenuInput спрос, концентрация выручки и квадранты
type MenuInput struct {
	Items         []ItemDemand
	Concentration derived.Concentration
	Quadrants     derived.QuadrantReport
}

func (MenuInput) Domain() models.Domain { return models.DomainMenu }
func (MenuInput) sealed()               {}

var menuRules = []rule[MenuInput]{
	{TypeHighDemandUnavailable, func(in MenuInput) (models.Alert, bool) {
		if len(in.Items) == 0 {
			return models.Alert{}, false
		}
		var total float64
		for _, it := range in.Items {
			total += it.TrailingVolume
		}
		avg := total / float64(len(in.Items))

		var ids, names []string
		for _, it := range in.Items {
			if !it.Available && it.TrailingVolume > avg {
				ids = append(ids, it.ID)
				names = append(names, it.Name)
			}
		}
		if len(ids) == 0 {
			return models.Alert{}, false
		}
		return models.Alert{
			Severity: models.SeverityHigh,
			Message:  fmt.Sprintf("%d high-demand item(s) are currently unavailable", len(ids)),
			Metrics:  map[string]any{"item_ids": ids, "names": names, "average_volume": avg},
		}, true
	}},
	{TypeRevenueConcentration, func(in MenuInput) (models.Alert, bool) {
		c := in.Concentration
		if c.TotalGroups < RevenueConcentrationMinItems || c.Ratio > RevenueConcentrationRatioMax {
			return models.Alert{}, false
		}
		return models.Alert{
			Severity: models.SeverityMedium,
			Message:  fmt.Sprintf("%d of %d items produce 80%% of revenue", len(c.TopGroups), c.TotalGroups),
			Metrics:  map[string]any{"concentration_ratio": c.Ratio, "top_items": c.TopGroups},
		}, true
	}},
	{TypeProblematicItems, func(in MenuInput) (models.Alert, bool) {
		if len(in.Quadrants.Items) == 0 {
			return models.Alert{}, false
		}
		n := in.Quadrants.Counts[derived.QuadrantProblematic]
		share := float64(n) / float64(len(in.Quadrants.Items)) * 100
		if share < ProblematicItemsSharePct {
			return models.Alert{}, false
		}
		return models.Alert{
			Severity: models.SeverityLow,
			Message:  fmt.Sprintf("%d item(s) sell below median volume at below median price", n),
			Metrics:  map[string]any{"problematic": n, "share": share},
		}, true
	}},
}

// OperationsInput объём заказов, отмены и почасовая нагрузка
type OperationsInput struct {
	Orders         models.ComparisonResult
	CreatedCount   int64
	CancelledCount int64
	Hourly         derived.HourlyReport
}

func (OperationsInput) Domain() models.Domain { return models.DomainOperations }
func (OperationsInput) sealed()               {}

var operationsRules = []rule[OperationsInput]{
	{TypeOrderVolumeDrop, func(in OperationsInput) (models.Alert, bool) {
		pct, ok := in.Orders.Percent()
		if !ok {
			return models.Alert{}, false
		}
		sev, hit := dropSeverity(pct, OrderVolumeDropHighPct, OrderVolumeDropMediumPct)
		if !hit {
			return models.Alert{}, false
		}
		return models.Alert{
			Severity: sev,
			Message:  fmt.Sprintf("Order volume dropped %.1f%%", -pct),
			Metrics:  map[string]any{"current": in.Orders.Current, "previous": in.Orders.Previous, "percent_change": pct},
		}, true
	}},
	{TypeHighCancellationRate, func(in OperationsInput) (models.Alert, bool) {
		if in.CreatedCount == 0 {
			return models.Alert{}, false
		}
		rate := float64(in.CancelledCount) / float64(in.CreatedCount)
		if rate <= CancellationRateMedium {
			return models.Alert{}, false
		}
		return models.Alert{
			Severity: models.SeverityMedium,
			Message:  fmt.Sprintf("%.1f%% of orders were cancelled", rate*100),
			Metrics:  map[string]any{"cancelled": in.CancelledCount, "created": in.CreatedCount, "rate": rate},
		}, true
	}},
	{TypePeakHourOverload, func(in OperationsInput) (models.Alert, bool) {
		mean := in.Hourly.ActiveHoursMean()
		if mean == 0 || float64(in.Hourly.MaxCount) <= PeakOverloadFactor*mean {
			return models.Alert{}, false
		}
		return models.Alert{
			Severity: models.SeverityLow,
			Message:  fmt.Sprintf("Peak hour volume is %.1fx the average active hour", float64(in.Hourly.MaxCount)/mean),
			Metrics:  map[string]any{"max_count": in.Hourly.MaxCount, "active_hour_mean": mean, "peak_hours": in.Hourly.PeakHours},
		}, true
	}},
}

// dropSeverity: pct <= high - high, pct <= medium - medium
func dropSeverity(pct, high, medium float64) (models.Severity, bool) {
	switch {
	case pct <= high:
		return models.SeverityHigh, true
	case pct <= medium:
		return models.SeverityMedium, true
	}
	return "", false
}
