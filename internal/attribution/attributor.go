package attribution

import (
	"sort"
	"time"

	"github.com/bashkirian/kpi-engine/pkg/models"
)

// AnchorFunc выбирает момент, на который определяется ответственный
type AnchorFunc func(models.Event) time.Time

// EventTime якорь по умолчанию - собственный timestamp события
func EventTime(e models.Event) time.Time {
	return e.Timestamp
}

// AnchorToSubjectTime якорит событие на время из карты по счёту (например,
// время оплаты), иначе на время самого события.
func AnchorToSubjectTime(times map[string]time.Time) AnchorFunc {
	return func(e models.Event) time.Time {
		if t, ok := times[e.SubjectID]; ok {
			return t
		}
		return e.Timestamp
	}
}

type attributeConfig struct {
	anchor   AnchorFunc
	boundary *models.Boundary
}

type AttributeOption func(*attributeConfig)

func WithAnchor(fn AnchorFunc) AttributeOption {
	return func(c *attributeConfig) {
		if fn != nil {
			c.anchor = fn
		}
	}
}

func WithBoundary(b models.Boundary) AttributeOption {
	return func(c *attributeConfig) {
		c.boundary = &b
	}
}

// Attribute сопоставляет каждому событию ответственного. Выход 1:1 со входом,
// порядок сохраняется.
func Attribute(events []models.Event, r *Resolver, opts ...AttributeOption) []models.AttributedEvent {
	cfg := attributeConfig{anchor: EventTime}
	for _, opt := range opts {
		opt(&cfg)
	}
	boundary := models.BoundaryHalfOpen
	if cfg.boundary != nil {
		boundary = *cfg.boundary
	}

	out := make([]models.AttributedEvent, len(events))
	for i, e := range events {
		entity, ok := r.ResolveWith(e.SubjectID, cfg.anchor(e), boundary)
		out[i] = models.AttributedEvent{Event: e, ResolvedEntityID: entity, Attributed: ok}
	}
	return out
}

// PaidAtBySubject время оплаты по счёту (последняя оплата, если их несколько)
func PaidAtBySubject(events []models.Event) map[string]time.Time {
	paid := make(map[string]time.Time)
	for _, e := range events {
		if e.Kind != models.KindTabPaid {
			continue
		}
		if prev, ok := paid[e.SubjectID]; !ok || e.Timestamp.After(prev) {
			paid[e.SubjectID] = e.Timestamp
		}
	}
	return paid
}

// SubjectsOf уникальные id счетов в отсортированном виде
func SubjectsOf(feeds ...[]models.Event) []string {
	seen := make(map[string]struct{})
	for _, events := range feeds {
		for _, e := range events {
			seen[e.SubjectID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
