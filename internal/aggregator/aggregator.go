// Package aggregator раскладывает атрибутированные события по окну и бакетам.
package aggregator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bashkirian/kpi-engine/pkg/models"
)

// UngroupedKey ключ разбивки для событий без group_key
const UngroupedKey = "_ungrouped"

// Options параметры агрегации
type Options struct {
	BucketBy models.Granularity
	GroupBy  models.GroupBy
	// Location для границ дней и часов, по умолчанию UTC
	Location *time.Location
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.UTC
	}
	return o.Location
}

type accumulator struct {
	count int64
	sum   float64
}

func (a *accumulator) add(v float64) {
	a.count++
	a.sum += v
}

func (a *accumulator) merge(o accumulator) {
	a.count += o.count
	a.sum += o.sum
}

// avg считается только из суммы и количества, 0 для пустого бакета
func (a accumulator) avg() float64 {
	if a.count == 0 {
		return 0
	}
	return a.sum / float64(a.count)
}

type bucketAcc struct {
	accumulator
	groups map[string]*accumulator
}

func (b *bucketAcc) addGroup(key string, v float64) {
	if b.groups == nil {
		b.groups = make(map[string]*accumulator)
	}
	g, ok := b.groups[key]
	if !ok {
		g = &accumulator{}
		b.groups[key] = g
	}
	g.add(v)
}

func (b *bucketAcc) merge(o *bucketAcc) {
	b.accumulator.merge(o.accumulator)
	for key, g := range o.groups {
		if b.groups == nil {
			b.groups = make(map[string]*accumulator)
		}
		mine, ok := b.groups[key]
		if !ok {
			mine = &accumulator{}
			b.groups[key] = mine
		}
		mine.merge(*g)
	}
}

// Partial частичный агрегат (count/sum по ключам). Merge ассоциативен и
// коммутативен, поэтому шарды можно сливать в любом порядке.
type Partial struct {
	window       models.Window
	opts         Options
	spans        []span
	total        bucketAcc
	unattributed int64
	buckets      map[string]*bucketAcc
}

func NewPartial(w models.Window, opts Options) *Partial {
	return &Partial{
		window:  w,
		opts:    opts,
		spans:   bucketSpans(w, opts.BucketBy, opts.location()),
		buckets: make(map[string]*bucketAcc),
	}
}

// Add учитывает событие, если оно попадает в [start, end)
func (p *Partial) Add(e models.AttributedEvent) {
	if !p.window.Contains(e.Timestamp) {
		return
	}
	if !e.Attributed {
		p.unattributed++
	}

	groupKey, grouped := p.groupKey(e)

	p.total.add(e.Amount)
	if grouped {
		p.total.addGroup(groupKey, e.Amount)
	}

	if p.opts.BucketBy == models.GranularityNone {
		return
	}
	key, ok := p.bucketKey(e.Timestamp)
	if !ok {
		return
	}
	b, exists := p.buckets[key]
	if !exists {
		b = &bucketAcc{}
		p.buckets[key] = b
	}
	b.add(e.Amount)
	if grouped {
		b.addGroup(groupKey, e.Amount)
	}
}

func (p *Partial) groupKey(e models.AttributedEvent) (string, bool) {
	switch p.opts.GroupBy {
	case models.GroupByEntity:
		// неатрибутированные события входят в итоги, но не в разбивку по официантам
		if !e.Attributed {
			return "", false
		}
		return e.ResolvedEntityID, true
	case models.GroupByGroupKey:
		if e.GroupKey == "" {
			return UngroupedKey, true
		}
		return e.GroupKey, true
	}
	return "", false
}

func (p *Partial) bucketKey(t time.Time) (string, bool) {
	if p.opts.BucketBy == models.GranularityHourOfDay {
		return hourKey(t.In(p.opts.location()).Hour()), true
	}
	i := sort.Search(len(p.spans), func(i int) bool { return p.spans[i].end.After(t) })
	if i == len(p.spans) || t.Before(p.spans[i].start) {
		return "", false
	}
	return p.spans[i].key, true
}

// Merge добавляет другой частичный агрегат того же окна
func (p *Partial) Merge(o *Partial) {
	p.total.merge(&o.total)
	p.unattributed += o.unattributed
	for key, b := range o.buckets {
		mine, ok := p.buckets[key]
		if !ok {
			mine = &bucketAcc{}
			p.buckets[key] = mine
		}
		mine.merge(b)
	}
}

// Result собирает итог; все ожидаемые бакеты присутствуют, пустые с нулями
func (p *Partial) Result() models.AggregateResult {
	res := models.AggregateResult{
		Window:            p.window,
		Granularity:       p.opts.BucketBy,
		GroupBy:           p.opts.GroupBy,
		UnattributedCount: p.unattributed,
		Total:             p.total.bucket("total", p.opts.GroupBy),
	}
	res.Total.Start = p.window.Start
	res.Total.End = p.window.End

	if p.opts.BucketBy == models.GranularityNone {
		return res
	}
	res.Buckets = make([]models.AggregateBucket, 0, len(p.spans))
	for _, s := range p.spans {
		acc, ok := p.buckets[s.key]
		if !ok {
			acc = &bucketAcc{}
		}
		b := acc.bucket(s.key, p.opts.GroupBy)
		b.Start, b.End = s.start, s.end
		if s.hour >= 0 {
			h := s.hour
			b.Hour = &h
		}
		res.Buckets = append(res.Buckets, b)
	}
	return res
}

func (b *bucketAcc) bucket(key string, groupBy models.GroupBy) models.AggregateBucket {
	out := models.AggregateBucket{
		Key:   key,
		Count: b.count,
		Sum:   b.sum,
		Avg:   b.avg(),
	}
	if groupBy == models.GroupByNone {
		return out
	}
	out.Breakdown = make([]models.GroupStat, 0, len(b.groups))
	for k, g := range b.groups {
		out.Breakdown = append(out.Breakdown, models.GroupStat{Key: k, Count: g.count, Sum: g.sum, Avg: g.avg()})
	}
	sort.Slice(out.Breakdown, func(i, j int) bool { return out.Breakdown[i].Key < out.Breakdown[j].Key })
	return out
}

// Aggregate агрегирует события окна [w.Start, w.End)
func Aggregate(events []models.AttributedEvent, w models.Window, opts Options) models.AggregateResult {
	p := NewPartial(w, opts)
	for _, e := range events {
		p.Add(e)
	}
	return p.Result()
}

// AggregateParallel то же, что Aggregate, но по шардам в отдельных горутинах.
// Средние считаются после слияния сумм и количеств.
func AggregateParallel(ctx context.Context, events []models.AttributedEvent, w models.Window, opts Options, shards int) (models.AggregateResult, error) {
	if shards < 1 {
		return models.AggregateResult{}, fmt.Errorf("shards must be positive, got %d", shards)
	}
	if shards > len(events) {
		shards = len(events)
	}
	if shards <= 1 {
		return Aggregate(events, w, opts), nil
	}

	partials := make([]*Partial, shards)
	size := (len(events) + shards - 1) / shards

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < shards; i++ {
		i := i
		lo := i * size
		hi := lo + size
		if hi > len(events) {
			hi = len(events)
		}
		g.Go(func() error {
			p := NewPartial(w, opts)
			for _, e := range events[lo:hi] {
				if err := gctx.Err(); err != nil {
					return err
				}
				p.Add(e)
			}
			partials[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.AggregateResult{}, err
	}

	merged := NewPartial(w, opts)
	for _, p := range partials {
		if p != nil {
			merged.Merge(p)
		}
	}
	return merged.Result(), nil
}

// TopGroups сортирует разбивку по сумме по убыванию и обрезает до limit (0 - без обрезки)
func TopGroups(stats []models.GroupStat, limit int) []models.GroupStat {
	out := make([]models.GroupStat, len(stats))
	copy(out, stats)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Sum != out[j].Sum {
			return out[i].Sum > out[j].Sum
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
