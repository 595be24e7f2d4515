package models

// Domain область правил алертов
type Domain string

const (
	DomainFinance    Domain = "finance"
	DomainKitchen    Domain = "kitchen"
	DomainWaiters    Domain = "waiters"
	DomainMenu       Domain = "menu"
	DomainOperations Domain = "operations"
)

// Domains в порядке вывода
var Domains = []Domain{DomainFinance, DomainKitchen, DomainWaiters, DomainMenu, DomainOperations}

func (d Domain) Valid() bool {
	for _, known := range Domains {
		if d == known {
			return true
		}
	}
	return false
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank для сортировки: high > medium > low
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

type AlertType string

// Alert операционный алерт
type Alert struct {
	Domain   Domain         `json:"domain"`
	Type     AlertType      `json:"type"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Metrics  map[string]any `json:"metrics,omitempty"`
}
