package derived

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bashkirian/kpi-engine/pkg/models"
)

func TestClassifySLA(t *testing.T) {
	const sla = 10.0 // минут
	tests := []struct {
		seconds float64
		want    SLAClass
	}{
		{0, SLAOk},
		{420, SLAOk},
		{421, SLAWithin},
		{600, SLAWithin},
		{601, SLAWarning},
		{720, SLAWarning},
		{721, SLACritical},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifySLA(tt.seconds, sla), "seconds=%v", tt.seconds)
	}
}

func TestDelayBreakdown(t *testing.T) {
	stats := DelayBreakdown([]float64{60, 500, 650, 900}, 10)
	assert.Equal(t, DelayStats{
		Total: 4, Ok: 1, WithinSLA: 1, Warning: 1, Critical: 1, Delayed: 2, DelayRate: 0.5,
	}, stats)

	empty := DelayBreakdown(nil, 10)
	assert.Zero(t, empty.DelayRate)
}

func TestConcentrationRatio_TopTwoOfTen(t *testing.T) {
	values := map[string]float64{"item-0": 500, "item-1": 320}
	for i := 2; i < 10; i++ {
		values[fmt.Sprintf("item-%d", i)] = 22.5
	}
	c := ConcentrationOf(values)
	assert.InDelta(t, 1000, c.Total, 1e-9)
	assert.Equal(t, 20.0, c.Ratio)
	assert.Equal(t, []string{"item-0", "item-1"}, c.TopGroups)
}

func TestConcentrationRatio_Bounds(t *testing.T) {
	assert.Equal(t, 100.0, ConcentrationRatio(nil))
	assert.Equal(t, 100.0, ConcentrationRatio(map[string]float64{"only": 50}))
	assert.Equal(t, 100.0, ConcentrationRatio(map[string]float64{"a": 0, "b": 0}))

	even := map[string]float64{}
	for i := 0; i < 5; i++ {
		even[fmt.Sprintf("k%d", i)] = 10
	}
	assert.Equal(t, 80.0, ConcentrationRatio(even))

	for n := 2; n < 30; n++ {
		vals := map[string]float64{}
		for i := 0; i < n; i++ {
			vals[fmt.Sprintf("k%d", i)] = float64(i*i + 1)
		}
		r := ConcentrationRatio(vals)
		assert.Greater(t, r, 0.0)
		assert.LessOrEqual(t, r, 100.0)
	}
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 0.0, Median(nil))
	assert.Equal(t, 3.0, Median([]float64{5, 1, 3}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
}

func TestClassifyQuadrants(t *testing.T) {
	report := ClassifyQuadrants([]ItemStat{
		{Key: "burger", Volume: 100, Price: 20},
		{Key: "fries", Volume: 120, Price: 5},
		{Key: "steak", Volume: 10, Price: 45},
		{Key: "salad", Volume: 8, Price: 6},
	})
	assert.Equal(t, 55.0, report.MedianVolume)
	assert.Equal(t, 13.0, report.MedianPrice)

	got := map[string]Quadrant{}
	for _, it := range report.Items {
		got[it.Key] = it.Quadrant
	}
	assert.Equal(t, map[string]Quadrant{
		"burger": QuadrantStar,
		"fries":  QuadrantPopular,
		"steak":  QuadrantPremium,
		"salad":  QuadrantProblematic,
	}, got)
	assert.Equal(t, 1, report.Counts[QuadrantStar])
}

func TestClassifyQuadrants_MedianIsInclusive(t *testing.T) {
	report := ClassifyQuadrants([]ItemStat{{Key: "solo", Volume: 3, Price: 9}})
	require.Len(t, report.Items, 1)
	assert.Equal(t, QuadrantStar, report.Items[0].Quadrant)
}

func TestHourlySlice(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	w := models.Window{Start: day, End: day.Add(24 * time.Hour)}
	var events []models.AttributedEvent
	add := func(hour, n int, seconds float64) {
		for i := 0; i < n; i++ {
			events = append(events, models.AttributedEvent{Event: models.Event{
				Kind:      models.KindOrderDelivered,
				Timestamp: day.Add(time.Duration(hour)*time.Hour + time.Duration(i)*time.Minute),
				Amount:    seconds,
			}})
		}
	}
	add(12, 10, 600)
	add(13, 8, 900)
	add(19, 7, 500)

	report := HourlySlice(events, w, 10, time.UTC)
	require.Len(t, report.Hours, 24)
	assert.Equal(t, int64(10), report.MaxCount)
	assert.Equal(t, []int{12, 13}, report.PeakHours)
	assert.Equal(t, []int{13}, report.CriticalHours)
	assert.InDelta(t, 25.0/3.0, report.ActiveHoursMean(), 1e-9)

	empty := HourlySlice(nil, w, 10, time.UTC)
	assert.Empty(t, empty.PeakHours)
	assert.Empty(t, empty.CriticalHours)
	assert.Zero(t, empty.ActiveHoursMean())
}

func TestShares(t *testing.T) {
	shares := Shares(map[string]float64{"card": 750, "cash": 200, "pix": 50})
	require.Len(t, shares, 3)
	assert.Equal(t, "card", shares[0].Key)
	assert.InDelta(t, 75.0, shares[0].Share, 1e-9)
	assert.InDelta(t, 5.0, shares[2].Share, 1e-9)

	zero := Shares(map[string]float64{"a": 0})
	assert.Zero(t, zero[0].Share)
}
