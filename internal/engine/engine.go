// Package engine - точка входа дашбордов: загружает события и интервалы за окно
// и предыдущее окно той же длины, атрибутирует, агрегирует и оценивает алерты.
// Движок не хранит состояние между вызовами и не изменяет данные.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bashkirian/kpi-engine/internal/alerts"
	"github.com/bashkirian/kpi-engine/internal/metrics"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

var (
	ErrUnknownDomain  = errors.New("unknown domain")
	ErrInvalidOptions = errors.New("invalid options")
)

// MaxBuckets предел числа бакетов ряда в одном запросе
const MaxBuckets = 10000

// EventFeed возвращает события типа kind с timestamp в [start, end), порядок не важен
type EventFeed interface {
	FetchEvents(ctx context.Context, kind models.EventKind, start, end time.Time) ([]models.Event, error)
}

// IntervalFeed возвращает полную историю назначений по счетам, включая
// интервалы, начатые до окна, и открытые интервалы
type IntervalFeed interface {
	FetchIntervals(ctx context.Context, subjectIDs []string) ([]models.AssignmentInterval, error)
}

// MenuFeed каталог меню с текущей доступностью
type MenuFeed interface {
	FetchMenuItems(ctx context.Context) ([]models.MenuItem, error)
}

// Options настройки одного вызова
type Options struct {
	SLAMinutes  float64
	Granularity models.Granularity
	// Limit обрезка ранжированных списков в обзоре
	Limit int
	// RankLimit обрезка ранжированных списков в анализе домена
	RankLimit int
	Location  *time.Location
}

// DefaultOptions значения по умолчанию
func DefaultOptions() Options {
	return Options{
		SLAMinutes:  15,
		Granularity: models.GranularityDay,
		Limit:       10,
		RankLimit:   50,
		Location:    time.UTC,
	}
}

func (o Options) Validate() error {
	if o.SLAMinutes <= 0 {
		return fmt.Errorf("%w: sla_minutes must be positive, got %v", ErrInvalidOptions, o.SLAMinutes)
	}
	if !o.Granularity.Valid() {
		return fmt.Errorf("%w: unknown granularity %q", ErrInvalidOptions, o.Granularity)
	}
	if o.Limit < 0 || o.RankLimit < 0 {
		return fmt.Errorf("%w: limits must not be negative", ErrInvalidOptions)
	}
	return nil
}

// CheckBuckets отклоняет окно, ряд которого в granularity длиннее MaxBuckets
func CheckBuckets(w models.Window, g models.Granularity) error {
	var step time.Duration
	switch g {
	case models.GranularityHour:
		step = time.Hour
	case models.GranularityDay:
		step = 24 * time.Hour
	default:
		return nil
	}
	if n := int64((w.Duration() + step - 1) / step); n > MaxBuckets {
		return fmt.Errorf("%w: window spans %d %s buckets, at most %d allowed", ErrInvalidOptions, n, g, MaxBuckets)
	}
	return nil
}

// merge заполняет нулевые поля значениями по умолчанию
func (o Options) merge(def Options) Options {
	if o.SLAMinutes == 0 {
		o.SLAMinutes = def.SLAMinutes
	}
	if o.Granularity == models.GranularityNone {
		o.Granularity = def.Granularity
	}
	if o.Limit == 0 {
		o.Limit = def.Limit
	}
	if o.RankLimit == 0 {
		o.RankLimit = def.RankLimit
	}
	if o.Location == nil {
		o.Location = def.Location
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	return o
}

type Engine struct {
	events    EventFeed
	intervals IntervalFeed
	menu      MenuFeed
	defaults  Options
	logger    *zap.Logger
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithDefaults(o Options) Option {
	return func(e *Engine) {
		e.defaults = o.merge(DefaultOptions())
	}
}

// WithMenuFeed без каталога правило HIGH_DEMAND_UNAVAILABLE не срабатывает
func WithMenuFeed(m MenuFeed) Option {
	return func(e *Engine) {
		e.menu = m
	}
}

func New(events EventFeed, intervals IntervalFeed, opts ...Option) *Engine {
	e := &Engine{
		events:    events,
		intervals: intervals,
		defaults:  DefaultOptions(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Defaults настройки, которыми дополняются Options вызова
func (e *Engine) Defaults() Options {
	return e.defaults
}

// GetOverview KPI, сравнения и алерты всех доменов за окно
func (e *Engine) GetOverview(ctx context.Context, w models.Window, opts Options) (*Result, error) {
	start := time.Now()
	defer func() {
		metrics.QueryDurationSeconds.WithLabelValues("overview", "all").Observe(time.Since(start).Seconds())
	}()

	opts, err := e.prepare(w, opts)
	if err != nil {
		return nil, err
	}
	ds, err := e.load(ctx, w, opts, true)
	if err != nil {
		return nil, err
	}

	res := newResult("", ds)
	inputs := make([]alerts.Input, 0, len(models.Domains))
	for _, d := range models.Domains {
		m, in := ds.build(d, &res.Breakdowns, opts.Limit)
		res.addMetrics(m)
		inputs = append(inputs, in)
	}
	if res.Alerts, err = alerts.EvaluateAll(ctx, inputs...); err != nil {
		return nil, err
	}
	e.finish(res)
	return res, nil
}

// GetDomainAnalysis подробный анализ одного домена
func (e *Engine) GetDomainAnalysis(ctx context.Context, domain models.Domain, w models.Window, opts Options) (*Result, error) {
	if !domain.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
	start := time.Now()
	defer func() {
		metrics.QueryDurationSeconds.WithLabelValues("domain", string(domain)).Observe(time.Since(start).Seconds())
	}()

	opts, err := e.prepare(w, opts)
	if err != nil {
		return nil, err
	}
	ds, err := e.load(ctx, w, opts, domain == models.DomainMenu)
	if err != nil {
		return nil, err
	}

	res := newResult(domain, ds)
	m, in := ds.build(domain, &res.Breakdowns, opts.RankLimit)
	res.addMetrics(m)
	res.Alerts = alerts.Evaluate(in)
	alerts.SortBySeverity(res.Alerts)
	e.finish(res)
	return res, nil
}

func (e *Engine) prepare(w models.Window, opts Options) (Options, error) {
	if err := w.Validate(); err != nil {
		return opts, err
	}
	opts = opts.merge(e.defaults)
	if err := opts.Validate(); err != nil {
		return opts, err
	}
	if err := CheckBuckets(w, opts.Granularity); err != nil {
		return opts, err
	}
	return opts, nil
}

func (e *Engine) finish(res *Result) {
	if res.Alerts == nil {
		res.Alerts = []models.Alert{}
	}
	for _, a := range res.Alerts {
		metrics.AlertsEmittedTotal.WithLabelValues(string(a.Domain), string(a.Severity)).Inc()
	}
	if res.UnattributedCount > 0 {
		metrics.UnattributedEventsTotal.Add(float64(res.UnattributedCount))
	}
	e.logger.Debug("kpi query finished",
		zap.String("domain", string(res.Domain)),
		zap.Time("start", res.Window.Start),
		zap.Time("end", res.Window.End),
		zap.Int("alerts", len(res.Alerts)),
		zap.Int64("unattributed", res.UnattributedCount),
	)
}
