package aggregator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bashkirian/kpi-engine/pkg/models"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func ev(ts time.Time, amount float64, entity, group string) models.AttributedEvent {
	return models.AttributedEvent{
		Event: models.Event{
			SubjectID: "tab-1",
			Kind:      models.KindTabPaid,
			Timestamp: ts,
			Amount:    amount,
			GroupKey:  group,
		},
		ResolvedEntityID: entity,
		Attributed:       entity != "",
	}
}

func TestAggregate_HalfOpenWindow(t *testing.T) {
	w := models.Window{Start: monday, End: monday.Add(24 * time.Hour)}
	events := []models.AttributedEvent{
		ev(w.Start, 10, "a", ""),
		ev(w.End, 99, "a", ""),
		ev(w.Start.Add(-time.Nanosecond), 99, "a", ""),
		ev(w.End.Add(-time.Nanosecond), 5, "a", ""),
	}

	res := Aggregate(events, w, Options{})
	assert.Equal(t, int64(2), res.Total.Count)
	assert.Equal(t, 15.0, res.Total.Sum)
	assert.Equal(t, 7.5, res.Total.Avg)
	assert.Nil(t, res.Buckets)
}

func TestAggregate_ZeroFillEmptyWindow(t *testing.T) {
	w := models.Window{Start: monday.Add(90 * time.Minute), End: monday.Add(6 * time.Hour)}

	res := Aggregate(nil, w, Options{BucketBy: models.GranularityHour})
	require.Len(t, res.Buckets, 5, "01:00 .. 05:00")
	assert.Equal(t, monday.Add(time.Hour), res.Buckets[0].Start)
	for _, b := range res.Buckets {
		assert.Zero(t, b.Count)
		assert.Zero(t, b.Sum)
		assert.Zero(t, b.Avg)
	}
	assert.Zero(t, res.Total.Count)

	days := Aggregate(nil, models.Window{Start: monday, End: monday.AddDate(0, 0, 7)}, Options{BucketBy: models.GranularityDay})
	require.Len(t, days.Buckets, 7)
	assert.Equal(t, "2026-03-02", days.Buckets[0].Key)
	assert.Equal(t, "2026-03-08", days.Buckets[6].Key)

	hours := Aggregate(nil, models.Window{Start: monday, End: monday.Add(time.Hour)}, Options{BucketBy: models.GranularityHourOfDay})
	require.Len(t, hours.Buckets, 24)
	for h, b := range hours.Buckets {
		require.NotNil(t, b.Hour)
		assert.Equal(t, h, *b.Hour)
		assert.Zero(t, b.Count)
	}
}

func TestAggregate_DayBuckets(t *testing.T) {
	w := models.Window{Start: monday, End: monday.AddDate(0, 0, 3)}
	events := []models.AttributedEvent{
		ev(monday.Add(1*time.Hour), 10, "a", ""),
		ev(monday.Add(23*time.Hour), 20, "b", ""),
		ev(monday.Add(48*time.Hour), 30, "a", ""),
	}

	res := Aggregate(events, w, Options{BucketBy: models.GranularityDay})
	require.Len(t, res.Buckets, 3)
	assert.Equal(t, int64(2), res.Buckets[0].Count)
	assert.Equal(t, 15.0, res.Buckets[0].Avg)
	assert.Equal(t, int64(0), res.Buckets[1].Count)
	assert.Equal(t, 0.0, res.Buckets[1].Avg)
	assert.Equal(t, 30.0, res.Buckets[2].Sum)
}

func TestAggregate_DayBucketsFollowLocation(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// 29 марта 2026 - переход на летнее время, день длится 23 часа
	start := time.Date(2026, 3, 29, 0, 0, 0, 0, loc)
	w := models.Window{Start: start, End: time.Date(2026, 3, 31, 0, 0, 0, 0, loc)}

	res := Aggregate([]models.AttributedEvent{ev(time.Date(2026, 3, 29, 23, 30, 0, 0, loc), 1, "a", "")}, w,
		Options{BucketBy: models.GranularityDay, Location: loc})
	require.Len(t, res.Buckets, 2)
	assert.Equal(t, 23*time.Hour, res.Buckets[0].End.Sub(res.Buckets[0].Start))
	assert.Equal(t, int64(1), res.Buckets[0].Count)
}

func TestAggregate_GroupByEntityExcludesUnattributed(t *testing.T) {
	w := models.Window{Start: monday, End: monday.Add(2 * time.Hour)}
	events := []models.AttributedEvent{
		ev(monday.Add(5*time.Minute), 10, "a", ""),
		ev(monday.Add(10*time.Minute), 30, "b", ""),
		ev(monday.Add(70*time.Minute), 20, "a", ""),
		ev(monday.Add(80*time.Minute), 40, "", ""),
	}

	res := Aggregate(events, w, Options{BucketBy: models.GranularityHour, GroupBy: models.GroupByEntity})
	assert.Equal(t, int64(4), res.Total.Count, "unattributed events stay in domain totals")
	assert.Equal(t, 100.0, res.Total.Sum)
	assert.Equal(t, int64(1), res.UnattributedCount)
	assert.Equal(t, []models.GroupStat{
		{Key: "a", Count: 2, Sum: 30, Avg: 15},
		{Key: "b", Count: 1, Sum: 30, Avg: 30},
	}, res.Total.Breakdown)

	require.Len(t, res.Buckets, 2)
	assert.Equal(t, int64(2), res.Buckets[1].Count)
	assert.Len(t, res.Buckets[1].Breakdown, 1)
}

func TestAggregate_GroupByKey(t *testing.T) {
	w := models.Window{Start: monday, End: monday.Add(time.Hour)}
	events := []models.AttributedEvent{
		ev(monday, 10, "a", "card"),
		ev(monday, 5, "a", "cash"),
		ev(monday, 7, "a", ""),
		ev(monday, 10, "b", "card"),
	}
	res := Aggregate(events, w, Options{GroupBy: models.GroupByGroupKey})
	assert.Equal(t, []models.GroupStat{
		{Key: UngroupedKey, Count: 1, Sum: 7, Avg: 7},
		{Key: "card", Count: 2, Sum: 20, Avg: 10},
		{Key: "cash", Count: 1, Sum: 5, Avg: 5},
	}, res.Total.Breakdown)
}

func TestAggregateParallel_MatchesSequential(t *testing.T) {
	w := models.Window{Start: monday, End: monday.AddDate(0, 0, 2)}
	var events []models.AttributedEvent
	for i := 0; i < 500; i++ {
		entity := fmt.Sprintf("w%d", i%4)
		if i%17 == 0 {
			entity = ""
		}
		events = append(events, ev(monday.Add(time.Duration(i)*7*time.Minute), float64(i%13), entity, ""))
	}
	opts := Options{BucketBy: models.GranularityHour, GroupBy: models.GroupByEntity}

	want := Aggregate(events, w, opts)
	for _, shards := range []int{1, 3, 8, 1000} {
		got, err := AggregateParallel(context.Background(), events, w, opts, shards)
		require.NoError(t, err)
		assert.Equal(t, want.Total, got.Total, "shards=%d", shards)
		assert.Equal(t, want.UnattributedCount, got.UnattributedCount)
		assert.Equal(t, want.Buckets, got.Buckets)
	}

	_, err := AggregateParallel(context.Background(), events, w, opts, 0)
	assert.Error(t, err)
}

func TestPartial_MergeComputesAverageFromSums(t *testing.T) {
	w := models.Window{Start: monday, End: monday.Add(time.Hour)}
	left := NewPartial(w, Options{})
	left.Add(ev(monday, 10, "a", ""))
	right := NewPartial(w, Options{})
	right.Add(ev(monday, 20, "a", ""))
	right.Add(ev(monday, 30, "a", ""))

	left.Merge(right)
	res := left.Result()
	// среднее средних дало бы 17.5
	assert.Equal(t, 20.0, res.Total.Avg)
}

func TestTopGroups(t *testing.T) {
	top := TopGroups([]models.GroupStat{{Key: "x", Sum: 1}, {Key: "y", Sum: 5}, {Key: "a", Sum: 5}}, 2)
	assert.Equal(t, []string{"a", "y"}, []string{top[0].Key, top[1].Key})
}
