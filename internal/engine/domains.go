package engine

import (
	"runtime"
	"sort"

	"github.com/bashkirian/kpi-engine/internal/aggregator"
	"github.com/bashkirian/kpi-engine/internal/alerts"
	"github.com/bashkirian/kpi-engine/internal/derived"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

// build считает KPI, разрезы и вход правил для домена
func (d *dataset) build(domain models.Domain, b *Breakdowns, limit int) (metricSet, alerts.Input) {
	switch domain {
	case models.DomainFinance:
		return d.finance(b, limit)
	case models.DomainKitchen:
		return d.kitchen(b, limit)
	case models.DomainWaiters:
		return d.waiters(b, limit)
	case models.DomainMenu:
		return d.menuAnalysis(b, limit)
	default:
		return d.operations(b)
	}
}

// parallelThreshold с какого числа событий агрегация делится на шарды
var parallelThreshold = 20000

func (d *dataset) aggregate(events []models.AttributedEvent, w models.Window, bucket models.Granularity, groupBy models.GroupBy) models.AggregateResult {
	opts := aggregator.Options{
		BucketBy: bucket,
		GroupBy:  groupBy,
		Location: d.opts.Location,
	}
	if len(events) < parallelThreshold {
		return aggregator.Aggregate(events, w, opts)
	}
	res, err := aggregator.AggregateParallel(d.ctx, events, w, opts, runtime.GOMAXPROCS(0))
	if err != nil {
		// запрос отменён; результат всё равно нужен целиком
		return aggregator.Aggregate(events, w, opts)
	}
	return res
}

func sums(stats []models.GroupStat) map[string]float64 {
	out := make(map[string]float64, len(stats))
	for _, s := range stats {
		out[s.Key] = s.Sum
	}
	return out
}

func (d *dataset) finance(b *Breakdowns, limit int) (metricSet, alerts.Input) {
	cw, pw := d.current.window, d.previous.window
	cur := d.aggregate(d.current.paid, cw, models.GranularityNone, models.GroupByEntity)
	prev := d.aggregate(d.previous.paid, pw, models.GranularityNone, models.GroupByNone)
	series := d.aggregate(d.current.paid, cw, d.opts.Granularity, models.GroupByNone)
	methods := d.aggregate(d.current.paid, cw, models.GranularityNone, models.GroupByGroupKey)

	m := newMetricSet()
	m.pair("revenue", cur.Total.Sum, prev.Total.Sum)
	m.pair("tabs_paid", float64(cur.Total.Count), float64(prev.Total.Count))
	m.pair("average_ticket", cur.Total.Avg, prev.Total.Avg)

	shares := derived.Shares(sums(methods.Total.Breakdown))
	b.RevenueSeries = &series
	b.PaymentMethods = shares
	b.RevenueByWaiter = aggregator.TopGroups(cur.Total.Breakdown, limit)

	return m, alerts.FinanceInput{
		Revenue:        compareKey(m, "revenue"),
		AverageTicket:  compareKey(m, "average_ticket"),
		PaymentMethods: shares,
	}
}

func (d *dataset) kitchen(b *Breakdowns, limit int) (metricSet, alerts.Input) {
	cw, pw := d.current.window, d.previous.window
	cur := d.aggregate(d.current.delivered, cw, models.GranularityNone, models.GroupByNone)
	prev := d.aggregate(d.previous.delivered, pw, models.GranularityNone, models.GroupByNone)
	series := d.aggregate(d.current.delivered, cw, d.opts.Granularity, models.GroupByNone)

	curDelay := derived.DelayBreakdown(durations(d.current.delivered, cw), d.opts.SLAMinutes)
	prevDelay := derived.DelayBreakdown(durations(d.previous.delivered, pw), d.opts.SLAMinutes)
	hourly := derived.HourlySlice(d.current.delivered, cw, d.opts.SLAMinutes, d.opts.Location)

	m := newMetricSet()
	m.pair("orders_delivered", float64(cur.Total.Count), float64(prev.Total.Count))
	m.pair("avg_prep_seconds", cur.Total.Avg, prev.Total.Avg)
	m.pair("delay_rate", curDelay.DelayRate, prevDelay.DelayRate)
	m.current["delayed_orders"] = float64(curDelay.Delayed)
	m.current["sla_minutes"] = d.opts.SLAMinutes

	b.PrepTimeSeries = &series
	b.Delay = &curDelay
	b.KitchenHourly = &hourly

	return m, alerts.KitchenInput{
		SLAMinutes:    d.opts.SLAMinutes,
		Delay:         curDelay,
		PrepTime:      compareKey(m, "avg_prep_seconds"),
		CriticalHours: hourly.CriticalHours,
	}
}

func durations(events []models.AttributedEvent, w models.Window) []float64 {
	out := make([]float64, 0, len(events))
	for _, e := range events {
		if w.Contains(e.Timestamp) {
			out = append(out, e.Amount)
		}
	}
	return out
}

func (d *dataset) waiters(b *Breakdowns, limit int) (metricSet, alerts.Input) {
	cw, pw := d.current.window, d.previous.window
	curTabs := tabsByEntity(d.current.paid, cw)
	prevTabs := tabsByEntity(d.previous.paid, pw)
	revenue := d.aggregate(d.current.paid, cw, models.GranularityNone, models.GroupByEntity)
	delivery := d.aggregate(d.current.delivered, cw, models.GranularityNone, models.GroupByEntity)

	m := newMetricSet()
	m.pair("active_waiters", float64(len(curTabs)), float64(len(prevTabs)))
	m.pair("tabs_per_waiter", perEntity(curTabs), perEntity(prevTabs))
	m.current["unattributed_events"] = float64(d.current.unattributed())

	shares := derived.Shares(curTabs)
	b.TabsByWaiter = shares
	b.RevenueByWaiter = aggregator.TopGroups(revenue.Total.Breakdown, limit)
	b.DeliveryByWaiter = sortByAvg(delivery.Total.Breakdown, limit)
	b.Overlaps = d.overlaps

	return m, alerts.WaiterInput{
		SubjectsByEntity:  shares,
		UnattributedCount: d.current.unattributed(),
		TotalEvents:       d.current.total(),
	}
}

// tabsByEntity число различных счетов, оплаченных при каждом официанте
func tabsByEntity(paid []models.AttributedEvent, w models.Window) map[string]float64 {
	seen := make(map[string]map[string]struct{})
	for _, e := range paid {
		if !e.Attributed || !w.Contains(e.Timestamp) {
			continue
		}
		if seen[e.ResolvedEntityID] == nil {
			seen[e.ResolvedEntityID] = make(map[string]struct{})
		}
		seen[e.ResolvedEntityID][e.SubjectID] = struct{}{}
	}
	out := make(map[string]float64, len(seen))
	for entity, tabs := range seen {
		out[entity] = float64(len(tabs))
	}
	return out
}

func perEntity(tabs map[string]float64) float64 {
	if len(tabs) == 0 {
		return 0
	}
	var total float64
	for _, n := range tabs {
		total += n
	}
	return total / float64(len(tabs))
}

// sortByAvg самые быстрые официанты первыми
func sortByAvg(stats []models.GroupStat, limit int) []models.GroupStat {
	out := make([]models.GroupStat, len(stats))
	copy(out, stats)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Avg != out[j].Avg {
			return out[i].Avg < out[j].Avg
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (d *dataset) menuAnalysis(b *Breakdowns, limit int) (metricSet, alerts.Input) {
	cw, pw := d.current.window, d.previous.window
	cur := d.aggregate(d.current.created, cw, models.GranularityNone, models.GroupByGroupKey)
	prev := d.aggregate(d.previous.created, pw, models.GranularityNone, models.GroupByNone)

	catalogue := make(map[string]models.MenuItem, len(d.menu))
	for _, it := range d.menu {
		catalogue[it.ID] = it
	}

	items := make([]derived.ItemStat, 0, len(cur.Total.Breakdown))
	for _, s := range cur.Total.Breakdown {
		if s.Key == aggregator.UngroupedKey {
			continue
		}
		price := s.Avg
		it, ok := catalogue[s.Key]
		if ok && it.Price > 0 {
			price = it.Price
		}
		items = append(items, derived.ItemStat{Key: s.Key, Name: it.Name, Volume: float64(s.Count), Price: price})
	}
	revenue := sums(cur.Total.Breakdown)
	delete(revenue, aggregator.UngroupedKey)

	concentration := derived.ConcentrationOf(revenue)
	quadrants := derived.ClassifyQuadrants(items)

	m := newMetricSet()
	m.pair("items_sold", float64(cur.Total.Count), float64(prev.Total.Count))
	m.pair("menu_revenue", cur.Total.Sum, prev.Total.Sum)
	m.current["distinct_items"] = float64(len(items))
	m.current["concentration_ratio"] = concentration.Ratio

	b.TopItems = aggregator.TopGroups(cur.Total.Breakdown, limit)
	b.Concentration = &concentration
	b.Quadrants = &quadrants

	return m, alerts.MenuInput{
		Items:         d.demand(),
		Concentration: concentration,
		Quadrants:     quadrants,
	}
}

// demand спрос по каталогу за скользящие 30 дней; без каталога пусто
func (d *dataset) demand() []alerts.ItemDemand {
	volume := make(map[string]float64)
	for _, e := range d.trailing {
		volume[e.GroupKey]++
	}
	out := make([]alerts.ItemDemand, 0, len(d.menu))
	for _, it := range d.menu {
		out = append(out, alerts.ItemDemand{
			ID:             it.ID,
			Name:           it.Name,
			TrailingVolume: volume[it.ID],
			Available:      it.Available,
		})
	}
	return out
}

func (d *dataset) operations(b *Breakdowns) (metricSet, alerts.Input) {
	cw, pw := d.current.window, d.previous.window
	created := d.aggregate(d.current.created, cw, models.GranularityNone, models.GroupByNone)
	prevCreated := d.aggregate(d.previous.created, pw, models.GranularityNone, models.GroupByNone)
	cancelled := d.aggregate(d.current.cancelled, cw, models.GranularityNone, models.GroupByNone)
	prevCancelled := d.aggregate(d.previous.cancelled, pw, models.GranularityNone, models.GroupByNone)
	series := d.aggregate(d.current.created, cw, d.opts.Granularity, models.GroupByNone)
	hourly := derived.HourlySlice(d.current.created, cw, 0, d.opts.Location)

	m := newMetricSet()
	m.pair("orders", float64(created.Total.Count), float64(prevCreated.Total.Count))
	m.pair("orders_cancelled", float64(cancelled.Total.Count), float64(prevCancelled.Total.Count))
	m.current["cancellation_rate"] = rate(cancelled.Total.Count, created.Total.Count)
	m.current["peak_hour_count"] = float64(hourly.MaxCount)

	b.OrderSeries = &series
	b.OrderHourly = &hourly

	return m, alerts.OperationsInput{
		Orders:         compareKey(m, "orders"),
		CreatedCount:   created.Total.Count,
		CancelledCount: cancelled.Total.Count,
		Hourly:         hourly,
	}
}

func rate(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}
