package models

import (
	"errors"
	"time"
)

var ErrInvalidInterval = errors.New("removed_at must be after assigned_at")

// Boundary политика границы снятия ответственности
type Boundary int

const (
	// BoundaryHalfOpen: assigned_at <= t < removed_at ("ответственный на момент оплаты")
	BoundaryHalfOpen Boundary = iota
	// BoundaryClosed: assigned_at <= t <= removed_at (атрибуция по времени доставки)
	BoundaryClosed
)

// AssignmentInterval период, когда официант (entity) отвечал за счёт (subject).
// RemovedAt == nil - интервал открыт.
type AssignmentInterval struct {
	SubjectID  string     `json:"subject_id" yaml:"subject_id"`
	EntityID   string     `json:"entity_id" yaml:"entity_id"`
	AssignedAt time.Time  `json:"assigned_at" yaml:"assigned_at"`
	RemovedAt  *time.Time `json:"removed_at,omitempty" yaml:"removed_at,omitempty"`
}

// Open сообщает, открыт ли интервал
func (a AssignmentInterval) Open() bool {
	return a.RemovedAt == nil
}

// Validate проверяет инвариант removed_at > assigned_at
func (a AssignmentInterval) Validate() error {
	if a.SubjectID == "" || a.EntityID == "" {
		return errors.New("subject_id and entity_id are required")
	}
	if a.RemovedAt != nil && !a.RemovedAt.After(a.AssignedAt) {
		return ErrInvalidInterval
	}
	return nil
}

// Contains проверяет, покрывает ли интервал момент t
func (a AssignmentInterval) Contains(t time.Time, b Boundary) bool {
	if t.Before(a.AssignedAt) {
		return false
	}
	if a.RemovedAt == nil {
		return true
	}
	if b == BoundaryClosed {
		return !t.After(*a.RemovedAt)
	}
	return t.Before(*a.RemovedAt)
}

// Overlaps сообщает, пересекаются ли два полуоткрытых интервала
func (a AssignmentInterval) Overlaps(o AssignmentInterval) bool {
	aEndsBeforeO := a.RemovedAt != nil && !o.AssignedAt.Before(*a.RemovedAt)
	oEndsBeforeA := o.RemovedAt != nil && !a.AssignedAt.Before(*o.RemovedAt)
	return !aEndsBeforeO && !oEndsBeforeA
}
