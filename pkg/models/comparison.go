package models

// ChangeStatus направление изменения относительно прошлого периода
type ChangeStatus string

const (
	ChangeUp   ChangeStatus = "up"
	ChangeDown ChangeStatus = "down"
	ChangeFlat ChangeStatus = "flat"
	// ChangeNew: прошлый период нулевой, текущий нет - процент не определён
	ChangeNew ChangeStatus = "new"
)

// ComparisonResult сравнение метрики с предыдущим периодом.
// PercentChange == nil только при Status == ChangeNew.
type ComparisonResult struct {
	Current       float64      `json:"current"`
	Previous      float64      `json:"previous"`
	PercentChange *float64     `json:"percent_change"`
	Status        ChangeStatus `json:"status"`
}

// Percent возвращает процент изменения и false для ChangeNew
func (c ComparisonResult) Percent() (float64, bool) {
	if c.PercentChange == nil {
		return 0, false
	}
	return *c.PercentChange, true
}
