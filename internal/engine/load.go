package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bashkirian/kpi-engine/internal/attribution"
	"github.com/bashkirian/kpi-engine/internal/metrics"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

// trailingDemandWindow окно спроса для правила HIGH_DEMAND_UNAVAILABLE
const trailingDemandWindow = 30 * 24 * time.Hour

var feedKinds = []models.EventKind{
	models.KindTabPaid,
	models.KindOrderCreated,
	models.KindOrderDelivered,
	models.KindOrderCancelled,
}

type windowData struct {
	window    models.Window
	paid      []models.AttributedEvent
	created   []models.AttributedEvent
	delivered []models.AttributedEvent
	cancelled []models.AttributedEvent
}

func (w windowData) all() [][]models.AttributedEvent {
	return [][]models.AttributedEvent{w.paid, w.created, w.delivered, w.cancelled}
}

func (w windowData) total() int64 {
	var n int64
	for _, list := range w.all() {
		for _, e := range list {
			if w.window.Contains(e.Timestamp) {
				n++
			}
		}
	}
	return n
}

func (w windowData) unattributed() int64 {
	var n int64
	for _, list := range w.all() {
		for _, e := range list {
			if !e.Attributed && w.window.Contains(e.Timestamp) {
				n++
			}
		}
	}
	return n
}

type dataset struct {
	ctx      context.Context
	opts     Options
	current  windowData
	previous windowData
	trailing []models.Event
	menu     []models.MenuItem
	overlaps []attribution.Overlap
}

// load читает все фиды параллельно. Ошибки фидов возвращаются как есть
// (обёрнутыми через %w), без повторов и подмены данных.
func (e *Engine) load(ctx context.Context, w models.Window, opts Options, withMenu bool) (*dataset, error) {
	prev := w.Previous()
	cur := make([][]models.Event, len(feedKinds))
	old := make([][]models.Event, len(feedKinds))
	ds := &dataset{ctx: ctx, opts: opts}

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range feedKinds {
		i, kind := i, kind
		g.Go(func() error {
			events, err := e.fetchEvents(gctx, kind, w)
			cur[i] = events
			return err
		})
		g.Go(func() error {
			events, err := e.fetchEvents(gctx, kind, prev)
			old[i] = events
			return err
		})
	}
	if withMenu {
		g.Go(func() error {
			trailing := models.Window{Start: w.End.Add(-trailingDemandWindow), End: w.End}
			events, err := e.fetchEvents(gctx, models.KindOrderCreated, trailing)
			ds.trailing = events
			return err
		})
		if e.menu != nil {
			g.Go(func() error {
				items, err := e.menu.FetchMenuItems(gctx)
				if err != nil {
					metrics.FeedErrorsTotal.WithLabelValues("menu").Inc()
					return fmt.Errorf("fetch menu items: %w", err)
				}
				ds.menu = items
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		e.logger.Warn("feed fetch failed", zap.Error(err))
		return nil, err
	}

	all := append(append([][]models.Event{}, cur...), old...)
	subjects := attribution.SubjectsOf(all...)
	var intervals []models.AssignmentInterval
	if len(subjects) > 0 {
		var err error
		intervals, err = e.intervals.FetchIntervals(ctx, subjects)
		if err != nil {
			metrics.FeedErrorsTotal.WithLabelValues("intervals").Inc()
			e.logger.Warn("interval feed failed", zap.Int("subjects", len(subjects)), zap.Error(err))
			return nil, fmt.Errorf("fetch assignment intervals: %w", err)
		}
	}

	resolver := attribution.NewResolver(intervals, attribution.WithLogger(e.logger))
	ds.overlaps = resolver.Overlaps()

	// оплата есть в любом из двух окон: заказ предыдущего окна мог быть оплачен в текущем
	paidAt := attribution.PaidAtBySubject(append(append([]models.Event{}, cur[0]...), old[0]...))
	ds.current = attributeWindow(w, cur, resolver, paidAt)
	ds.previous = attributeWindow(prev, old, resolver, paidAt)
	return ds, nil
}

func (e *Engine) fetchEvents(ctx context.Context, kind models.EventKind, w models.Window) ([]models.Event, error) {
	events, err := e.events.FetchEvents(ctx, kind, w.Start, w.End)
	if err != nil {
		metrics.FeedErrorsTotal.WithLabelValues("events").Inc()
		return nil, fmt.Errorf("fetch %s events: %w", kind, err)
	}
	return events, nil
}

// attributeWindow применяет якорь атрибуции, свой для каждой метрики:
//   - оплата: ответственный в момент оплаты;
//   - заказ: ответственный в момент оплаты счёта, если она известна, иначе в момент заказа;
//   - доставка: ответственный в момент создания заказа (timestamp - длительность),
//     с включённой границей снятия: заказ, созданный ровно в removed_at интервала
//     без преемника, остаётся за этим интервалом (при передаче счёта он за принявшим);
//   - отмена: ответственный в момент отмены.
func attributeWindow(w models.Window, raw [][]models.Event, r *attribution.Resolver, paidAt map[string]time.Time) windowData {
	return windowData{
		window: w,
		paid:   attribution.Attribute(raw[0], r),
		created: attribution.Attribute(raw[1], r,
			attribution.WithAnchor(attribution.AnchorToSubjectTime(paidAt))),
		delivered: attribution.Attribute(raw[2], r,
			attribution.WithAnchor(orderCreatedAt),
			attribution.WithBoundary(models.BoundaryClosed)),
		cancelled: attribution.Attribute(raw[3], r),
	}
}

func orderCreatedAt(e models.Event) time.Time {
	return e.Timestamp.Add(-time.Duration(e.Amount * float64(time.Second)))
}
