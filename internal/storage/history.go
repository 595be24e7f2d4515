package storage

import (
	"fmt"
	"time"

	"github.com/bashkirian/kpi-engine/pkg/models"
)

// appendAssignment дописывает интервал в историю счёта. История только
// растёт: открытый интервал закрывается в момент at, новый начинается в at.
// Назначение раньше конца последнего интервала отклоняется.
func appendAssignment(history []models.AssignmentInterval, subjectID, entityID string, at time.Time) ([]models.AssignmentInterval, error) {
	out := make([]models.AssignmentInterval, len(history))
	copy(out, history)

	if n := len(out); n > 0 {
		last := &out[n-1]
		if last.Open() {
			if last.EntityID == entityID {
				return out, nil
			}
			if !at.After(last.AssignedAt) {
				return nil, fmt.Errorf("%w: %s assigned at %s, new assignment at %s",
					ErrIntervalConflict, subjectID, last.AssignedAt.Format(time.RFC3339), at.Format(time.RFC3339))
			}
			removed := at
			last.RemovedAt = &removed
		} else if at.Before(*last.RemovedAt) {
			return nil, fmt.Errorf("%w: %s released at %s", ErrIntervalConflict, subjectID, last.RemovedAt.Format(time.RFC3339))
		}
	}

	return append(out, models.AssignmentInterval{SubjectID: subjectID, EntityID: entityID, AssignedAt: at}), nil
}

// closeOpen проставляет removed_at открытому интервалу
func closeOpen(history []models.AssignmentInterval, at time.Time) ([]models.AssignmentInterval, error) {
	n := len(history)
	if n == 0 || !history[n-1].Open() {
		return nil, fmt.Errorf("%w: no open assignment", ErrNotFound)
	}
	if !at.After(history[n-1].AssignedAt) {
		return nil, fmt.Errorf("%w: release must be after assignment", ErrIntervalConflict)
	}
	out := make([]models.AssignmentInterval, n)
	copy(out, history)
	removed := at
	out[n-1].RemovedAt = &removed
	return out, nil
}
