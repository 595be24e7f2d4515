package alerts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bashkirian/kpi-engine/internal/comparator"
	"github.com/bashkirian/kpi-engine/internal/derived"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

func find(list []models.Alert, typ models.AlertType) (models.Alert, bool) {
	for _, a := range list {
		if a.Type == typ {
			return a, true
		}
	}
	return models.Alert{}, false
}

func TestFinance_RevenueDrop(t *testing.T) {
	tests := []struct {
		name     string
		current  float64
		previous float64
		want     models.Severity
		fires    bool
	}{
		// 1000 против 1200 = -16.7%, это ниже порога -10
		{"week over week", 1000, 1200, models.SeverityHigh, true},
		{"exactly minus ten", 900, 1000, models.SeverityHigh, true},
		{"between five and ten", 930, 1000, models.SeverityMedium, true},
		{"exactly minus five", 950, 1000, models.SeverityMedium, true},
		{"small dip", 960, 1000, "", false},
		{"growth", 1100, 1000, "", false},
		{"new activity", 500, 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(FinanceInput{Revenue: comparator.Compare(tt.current, tt.previous)})
			a, ok := find(got, TypeRevenueDrop)
			require.Equal(t, tt.fires, ok)
			if ok {
				assert.Equal(t, tt.want, a.Severity)
				assert.Equal(t, models.DomainFinance, a.Domain)
			}
		})
	}
}

func TestFinance_PaymentMethodDependency(t *testing.T) {
	in := FinanceInput{PaymentMethods: derived.Shares(map[string]float64{"card": 71, "cash": 29})}
	a, ok := find(Evaluate(in), TypePaymentMethodDependency)
	require.True(t, ok)
	assert.Equal(t, models.SeverityMedium, a.Severity)
	assert.Equal(t, "card", a.Metrics["method"])

	in = FinanceInput{PaymentMethods: derived.Shares(map[string]float64{"card": 70, "cash": 30})}
	_, ok = find(Evaluate(in), TypePaymentMethodDependency)
	assert.False(t, ok, "70% is not above the threshold")
}

func TestFinance_AverageTicketDrop(t *testing.T) {
	got := Evaluate(FinanceInput{AverageTicket: comparator.Compare(40, 50)})
	a, ok := find(got, TypeAverageTicketDrop)
	require.True(t, ok)
	assert.Equal(t, models.SeverityMedium, a.Severity)
}

func TestKitchen_HighDelayRate(t *testing.T) {
	tests := []struct {
		delayed, total int64
		want           models.Severity
		fires          bool
	}{
		{26, 100, models.SeverityHigh, true},
		{25, 100, models.SeverityMedium, true},
		{16, 100, models.SeverityMedium, true},
		{15, 100, "", false},
		{0, 0, "", false},
	}
	for _, tt := range tests {
		in := KitchenInput{SLAMinutes: 15, Delay: derived.DelayStats{Delayed: tt.delayed, Total: tt.total}}
		a, ok := find(Evaluate(in), TypeHighDelayRate)
		require.Equal(t, tt.fires, ok, "%d/%d", tt.delayed, tt.total)
		if ok {
			assert.Equal(t, tt.want, a.Severity)
		}
	}
}

func TestKitchen_PrepTimeAndCriticalHours(t *testing.T) {
	got := Evaluate(KitchenInput{PrepTime: comparator.Compare(720, 600), CriticalHours: []int{13}})
	_, ok := find(got, TypePrepTimeIncrease)
	assert.True(t, ok)
	a, ok := find(got, TypeCriticalHours)
	require.True(t, ok)
	assert.Equal(t, models.SeverityLow, a.Severity)
}

func TestWaiters(t *testing.T) {
	in := WaiterInput{
		SubjectsByEntity:  derived.Shares(map[string]float64{"a": 5, "b": 3, "c": 2}),
		UnattributedCount: 1,
		TotalEvents:       100,
	}
	got := Evaluate(in)
	a, ok := find(got, TypeWorkloadImbalance)
	require.True(t, ok)
	assert.Equal(t, "a", a.Metrics["entity_id"])
	u, ok := find(got, TypeUnattributedEvents)
	require.True(t, ok)
	assert.Equal(t, models.SeverityLow, u.Severity)

	single := Evaluate(WaiterInput{SubjectsByEntity: derived.Shares(map[string]float64{"solo": 10})})
	assert.Empty(t, single, "one waiter on shift is not an imbalance")

	noisy := Evaluate(WaiterInput{UnattributedCount: 10, TotalEvents: 100})
	u, ok = find(noisy, TypeUnattributedEvents)
	require.True(t, ok)
	assert.Equal(t, models.SeverityMedium, u.Severity)
}

func TestMenu(t *testing.T) {
	values := map[string]float64{"a": 900, "b": 30, "c": 30, "d": 20, "e": 20}
	in := MenuInput{
		Items: []ItemDemand{
			{ID: "a", Name: "Burger", TrailingVolume: 120, Available: false},
			{ID: "b", Name: "Soup", TrailingVolume: 10, Available: false},
			{ID: "c", Name: "Fries", TrailingVolume: 90, Available: true},
		},
		Concentration: derived.ConcentrationOf(values),
		Quadrants: derived.ClassifyQuadrants([]derived.ItemStat{
			{Key: "a", Volume: 10, Price: 10},
			{Key: "b", Volume: 1, Price: 1},
			{Key: "c", Volume: 2, Price: 2},
		}),
	}
	got := Evaluate(in)

	a, ok := find(got, TypeHighDemandUnavailable)
	require.True(t, ok)
	assert.Equal(t, models.SeverityHigh, a.Severity)
	assert.Equal(t, []string{"a"}, a.Metrics["item_ids"])

	c, ok := find(got, TypeRevenueConcentration)
	require.True(t, ok)
	assert.Equal(t, 20.0, c.Metrics["concentration_ratio"])

	_, ok = find(got, TypeProblematicItems)
	assert.True(t, ok)
}

func TestOperations(t *testing.T) {
	in := OperationsInput{
		Orders:         comparator.Compare(70, 100),
		CreatedCount:   100,
		CancelledCount: 11,
		Hourly: derived.HourlyReport{
			MaxCount: 30,
			Hours:    []derived.HourStat{{Hour: 12, Count: 30}, {Hour: 13, Count: 5}, {Hour: 14, Count: 5}},
		},
	}
	got := Evaluate(in)
	a, ok := find(got, TypeOrderVolumeDrop)
	require.True(t, ok)
	assert.Equal(t, models.SeverityHigh, a.Severity)
	_, ok = find(got, TypeHighCancellationRate)
	assert.True(t, ok)
	_, ok = find(got, TypePeakHourOverload)
	assert.True(t, ok)

	assert.Empty(t, Evaluate(OperationsInput{}))
}

func TestEvaluateAll_SortsBySeverityStably(t *testing.T) {
	got, err := EvaluateAll(context.Background(),
		KitchenInput{CriticalHours: []int{1}},
		FinanceInput{Revenue: comparator.Compare(80, 100), AverageTicket: comparator.Compare(80, 100)},
		WaiterInput{UnattributedCount: 1, TotalEvents: 1000},
	)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, TypeRevenueDrop, got[0].Type)
	assert.Equal(t, TypeAverageTicketDrop, got[1].Type)
	assert.Equal(t, TypeCriticalHours, got[2].Type)
	assert.Equal(t, TypeUnattributedEvents, got[3].Type)

	_, err = EvaluateAll(context.Background(), nil)
	assert.Error(t, err)
}

func TestEvaluate_IsOrderIndependent(t *testing.T) {
	in := FinanceInput{
		Revenue:        comparator.Compare(80, 100),
		PaymentMethods: derived.Shares(map[string]float64{"card": 90, "cash": 10}),
	}
	first := Evaluate(in)
	second := Evaluate(in)
	assert.Equal(t, first, second)
	assert.Equal(t, []models.AlertType{TypeRevenueDrop, TypePaymentMethodDependency, TypeAverageTicketDrop},
		Catalogue(models.DomainFinance))
}
