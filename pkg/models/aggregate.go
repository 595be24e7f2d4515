package models

import "time"

// GroupStat агрегат по официанту или group_key внутри бакета
type GroupStat struct {
	Key   string  `json:"key"`
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
}

// AggregateBucket один бакет окна. Avg == 0 при Count == 0,
// поэтому смотреть нужно сначала на Count.
type AggregateBucket struct {
	Key       string      `json:"key"`
	Start     time.Time   `json:"start"`
	End       time.Time   `json:"end"`
	Hour      *int        `json:"hour,omitempty"`
	Count     int64       `json:"count"`
	Sum       float64     `json:"sum"`
	Avg       float64     `json:"avg"`
	Breakdown []GroupStat `json:"breakdown,omitempty"`
}

// AggregateResult результат агрегации окна
type AggregateResult struct {
	Window            Window            `json:"window"`
	Granularity       Granularity       `json:"granularity,omitempty"`
	GroupBy           GroupBy           `json:"group_by,omitempty"`
	Buckets           []AggregateBucket `json:"buckets,omitempty"`
	Total             AggregateBucket   `json:"total"`
	UnattributedCount int64             `json:"unattributed_count"`
}
