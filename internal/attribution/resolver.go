// Package attribution определяет, какой официант отвечал за счёт в момент события.
package attribution

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/bashkirian/kpi-engine/internal/metrics"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

// Overlap пара пересекающихся интервалов одного счёта
type Overlap struct {
	SubjectID string                    `json:"subject_id"`
	First     models.AssignmentInterval `json:"first"`
	Second    models.AssignmentInterval `json:"second"`
}

// Resolver индекс интервалов назначения по счёту.
//
// При пересечении интервалов (нарушение инварианта на стороне источника)
// побеждает интервал с самым поздним AssignedAt, при равенстве - меньший EntityID.
type Resolver struct {
	bySubject map[string][]models.AssignmentInterval
	overlaps  []Overlap
	logger    *zap.Logger
}

type Option func(*Resolver)

func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

func NewResolver(intervals []models.AssignmentInterval, opts ...Option) *Resolver {
	r := &Resolver{
		bySubject: make(map[string][]models.AssignmentInterval),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, iv := range intervals {
		if err := iv.Validate(); err != nil {
			r.logger.Warn("skipping invalid assignment interval",
				zap.String("subject_id", iv.SubjectID),
				zap.String("entity_id", iv.EntityID),
				zap.Time("assigned_at", iv.AssignedAt),
				zap.Error(err),
			)
			continue
		}
		r.bySubject[iv.SubjectID] = append(r.bySubject[iv.SubjectID], iv)
	}

	for subject, list := range r.bySubject {
		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].AssignedAt.Equal(list[j].AssignedAt) {
				return list[i].AssignedAt.After(list[j].AssignedAt)
			}
			return list[i].EntityID < list[j].EntityID
		})
		r.detectOverlaps(subject, list)
	}
	sort.Slice(r.overlaps, func(i, j int) bool {
		return r.overlaps[i].SubjectID < r.overlaps[j].SubjectID
	})

	return r
}

func (r *Resolver) detectOverlaps(subject string, list []models.AssignmentInterval) {
	for i := 0; i < len(list); i++ {
		for j := i + 1; j < len(list); j++ {
			if !list[i].Overlaps(list[j]) {
				continue
			}
			r.overlaps = append(r.overlaps, Overlap{SubjectID: subject, First: list[j], Second: list[i]})
			metrics.IntervalOverlapsTotal.Inc()
			r.logger.Warn("overlapping assignment intervals, latest assignment wins",
				zap.String("subject_id", subject),
				zap.String("entity_id", list[j].EntityID),
				zap.Time("assigned_at", list[j].AssignedAt),
				zap.String("winner_entity_id", list[i].EntityID),
				zap.Time("winner_assigned_at", list[i].AssignedAt),
			)
		}
	}
}

// Resolve возвращает ответственного за счёт в момент at, граница снятия исключается
func (r *Resolver) Resolve(subjectID string, at time.Time) (string, bool) {
	return r.ResolveWith(subjectID, at, models.BoundaryHalfOpen)
}

// ResolveWith возвращает ответственного с явной политикой границы.
// false означает, что событие не атрибутировано - подставлять кого-либо нельзя.
func (r *Resolver) ResolveWith(subjectID string, at time.Time, b models.Boundary) (string, bool) {
	for _, iv := range r.bySubject[subjectID] {
		if iv.Contains(at, b) {
			return iv.EntityID, true
		}
	}
	return "", false
}

// Overlaps найденные нарушения инварианта
func (r *Resolver) Overlaps() []Overlap {
	return r.overlaps
}
