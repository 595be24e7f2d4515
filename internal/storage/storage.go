package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bashkirian/kpi-engine/pkg/models"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrIntervalConflict  = errors.New("assignment conflicts with interval history")
	ErrUnsupportedDriver = errors.New("unsupported storage driver")
	ErrInvalidEvent      = errors.New("invalid event")
)

// Storage источник событий, интервалов назначения и меню.
// Методы Fetch* реализуют фиды движка.
type Storage interface {
	FetchEvents(ctx context.Context, kind models.EventKind, start, end time.Time) ([]models.Event, error)
	FetchIntervals(ctx context.Context, subjectIDs []string) ([]models.AssignmentInterval, error)
	FetchMenuItems(ctx context.Context) ([]models.MenuItem, error)

	AddEvent(ctx context.Context, event models.Event) (models.Event, error)
	// Assign передаёт счёт официанту с момента at, закрывая текущий интервал
	Assign(ctx context.Context, subjectID, entityID string, at time.Time) error
	// Release закрывает открытый интервал счёта (счёт закрыт)
	Release(ctx context.Context, subjectID string, at time.Time) error
	UpsertMenuItem(ctx context.Context, item models.MenuItem) error

	Ping(ctx context.Context) error
	Close() error
}

// Open создаёт хранилище по имени драйвера: memory, postgres или sqlite
func Open(driver, dsn string) (Storage, error) {
	switch driver {
	case "", "memory":
		return NewInMemoryStorage(), nil
	case "postgres", "sqlite":
		s, err := NewSQLStorage(driver, dsn)
		if err != nil {
			return nil, err
		}
		if err := s.Migrate(context.Background()); err != nil {
			s.Close()
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
}

// prepareEvent генерирует ID и timestamp, если не указаны
func prepareEvent(event models.Event) (models.Event, error) {
	if event.SubjectID == "" || !event.Kind.Valid() {
		return event, fmt.Errorf("%w: subject_id and a known kind are required", ErrInvalidEvent)
	}
	if math.IsNaN(event.Amount) || math.IsInf(event.Amount, 0) {
		return event, fmt.Errorf("%w: amount must be a finite number", ErrInvalidEvent)
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Timestamp = event.Timestamp.UTC()
	return event, nil
}

type InMemoryStorage struct {
	mu        sync.RWMutex
	events    []models.Event
	intervals map[string][]models.AssignmentInterval
	menu      map[string]models.MenuItem
}

func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		events:    make([]models.Event, 0),
		intervals: make(map[string][]models.AssignmentInterval),
		menu:      make(map[string]models.MenuItem),
	}
}

func (s *InMemoryStorage) AddEvent(ctx context.Context, event models.Event) (models.Event, error) {
	event, err := prepareEvent(event)
	if err != nil {
		return event, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return event, nil
}

func (s *InMemoryStorage) FetchEvents(ctx context.Context, kind models.EventKind, start, end time.Time) ([]models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w := models.Window{Start: start, End: end}
	var filtered []models.Event
	for _, e := range s.events {
		if e.Kind == kind && w.Contains(e.Timestamp) {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

func (s *InMemoryStorage) FetchIntervals(ctx context.Context, subjectIDs []string) ([]models.AssignmentInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.AssignmentInterval
	for _, id := range subjectIDs {
		for _, iv := range s.intervals[id] {
			out = append(out, copyInterval(iv))
		}
	}
	return out, nil
}

func (s *InMemoryStorage) Assign(ctx context.Context, subjectID, entityID string, at time.Time) error {
	if subjectID == "" || entityID == "" {
		return fmt.Errorf("%w: subject_id and entity_id are required", ErrIntervalConflict)
	}
	at = at.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := appendAssignment(s.intervals[subjectID], subjectID, entityID, at)
	if err != nil {
		return err
	}
	s.intervals[subjectID] = history
	return nil
}

func (s *InMemoryStorage) Release(ctx context.Context, subjectID string, at time.Time) error {
	at = at.UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := closeOpen(s.intervals[subjectID], at)
	if err != nil {
		return err
	}
	s.intervals[subjectID] = history
	return nil
}

// ImportIntervals загружает готовую историю назначений (выгрузка, реплей).
// Проверяется только removed_at > assigned_at, пересечения сохраняются как есть.
func (s *InMemoryStorage) ImportIntervals(intervals []models.AssignmentInterval) error {
	for i, iv := range intervals {
		if err := iv.Validate(); err != nil {
			return fmt.Errorf("interval %d (%s): %w", i, iv.SubjectID, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, iv := range intervals {
		iv.AssignedAt = iv.AssignedAt.UTC()
		s.intervals[iv.SubjectID] = append(s.intervals[iv.SubjectID], copyInterval(iv))
	}
	for id, history := range s.intervals {
		sort.SliceStable(history, func(i, j int) bool { return history[i].AssignedAt.Before(history[j].AssignedAt) })
		s.intervals[id] = history
	}
	return nil
}

func (s *InMemoryStorage) UpsertMenuItem(ctx context.Context, item models.MenuItem) error {
	if item.ID == "" {
		return errors.New("menu item id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.menu[item.ID] = item
	return nil
}

func (s *InMemoryStorage) FetchMenuItems(ctx context.Context) ([]models.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.MenuItem, 0, len(s.menu))
	for _, it := range s.menu {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStorage) Ping(ctx context.Context) error {
	return nil
}

func (s *InMemoryStorage) Close() error {
	return nil
}

func copyInterval(iv models.AssignmentInterval) models.AssignmentInterval {
	if iv.RemovedAt != nil {
		t := *iv.RemovedAt
		iv.RemovedAt = &t
	}
	return iv
}
