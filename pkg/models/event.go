package models

import "time"

// EventKind тип бизнес-события
type EventKind string

const (
	KindOrderCreated   EventKind = "order_created"
	KindOrderDelivered EventKind = "order_delivered"
	KindOrderCancelled EventKind = "order_cancelled"
	KindTabPaid        EventKind = "tab_paid"
)

// Valid сообщает, известен ли тип события
func (k EventKind) Valid() bool {
	switch k {
	case KindOrderCreated, KindOrderDelivered, KindOrderCancelled, KindTabPaid:
		return true
	}
	return false
}

// Event неизменяемое бизнес-событие, привязанное к субъекту (счёту).
//
// Amount зависит от типа: сумма позиции для order_created/order_cancelled,
// длительность приготовления в секундах для order_delivered, оплаченная
// сумма для tab_paid. GroupKey - id блюда или способ оплаты.
type Event struct {
	ID        string    `json:"id" yaml:"id" db:"id"`
	SubjectID string    `json:"subject_id" yaml:"subject_id" db:"subject_id"`
	Kind      EventKind `json:"kind" yaml:"kind" db:"kind"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp" db:"-"`
	Amount    float64   `json:"amount" yaml:"amount" db:"amount"`
	GroupKey  string    `json:"group_key,omitempty" yaml:"group_key,omitempty" db:"group_key"`
}

// AttributedEvent событие вместе с ответственным на момент события.
// Attributed=false означает, что ни один интервал не покрывает событие.
type AttributedEvent struct {
	Event
	ResolvedEntityID string `json:"resolved_entity_id,omitempty"`
	Attributed       bool   `json:"attributed"`
}
