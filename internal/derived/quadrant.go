package derived

import "sort"

type Quadrant string

const (
	QuadrantStar        Quadrant = "star"
	QuadrantPopular     Quadrant = "popular"
	QuadrantPremium     Quadrant = "premium"
	QuadrantProblematic Quadrant = "problematic"
)

// ItemStat объём и цена позиции меню за окно
type ItemStat struct {
	Key    string  `json:"key"`
	Name   string  `json:"name,omitempty"`
	Volume float64 `json:"volume"`
	Price  float64 `json:"price"`
}

type ItemQuadrant struct {
	ItemStat
	Quadrant Quadrant `json:"quadrant"`
}

type QuadrantReport struct {
	MedianVolume float64          `json:"median_volume"`
	MedianPrice  float64          `json:"median_price"`
	Items        []ItemQuadrant   `json:"items"`
	Counts       map[Quadrant]int `json:"counts"`
}

// Median медиана; 0 для пустого набора
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// ClassifyQuadrants делит позиции по медианам объёма и цены текущего набора
func ClassifyQuadrants(items []ItemStat) QuadrantReport {
	volumes := make([]float64, len(items))
	prices := make([]float64, len(items))
	for i, it := range items {
		volumes[i] = it.Volume
		prices[i] = it.Price
	}

	report := QuadrantReport{
		MedianVolume: Median(volumes),
		MedianPrice:  Median(prices),
		Items:        make([]ItemQuadrant, 0, len(items)),
		Counts: map[Quadrant]int{
			QuadrantStar: 0, QuadrantPopular: 0, QuadrantPremium: 0, QuadrantProblematic: 0,
		},
	}
	for _, it := range items {
		q := classify(it, report.MedianVolume, report.MedianPrice)
		report.Items = append(report.Items, ItemQuadrant{ItemStat: it, Quadrant: q})
		report.Counts[q]++
	}
	sort.SliceStable(report.Items, func(i, j int) bool { return report.Items[i].Key < report.Items[j].Key })
	return report
}

func classify(it ItemStat, medVolume, medPrice float64) Quadrant {
	highVolume := it.Volume >= medVolume
	highPrice := it.Price >= medPrice
	switch {
	case highVolume && highPrice:
		return QuadrantStar
	case highVolume:
		return QuadrantPopular
	case highPrice:
		return QuadrantPremium
	default:
		return QuadrantProblematic
	}
}
