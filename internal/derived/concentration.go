package derived

import "sort"

// paretoShare доля выручки, которую должен покрыть префикс
const paretoShare = 0.8

// Concentration результат Парето-анализа
type Concentration struct {
	Ratio       float64  `json:"concentration_ratio"`
	TopGroups   []string `json:"top_groups"`
	TotalGroups int      `json:"total_groups"`
	Total       float64  `json:"total"`
}

// ConcentrationOf находит минимальный префикс групп (по убыванию значения),
// дающий >= 80% суммы. Ratio = размер префикса / число групп * 100.
// Меньше двух групп или неположительная сумма дают 100.
func ConcentrationOf(values map[string]float64) Concentration {
	type entry struct {
		key   string
		value float64
	}
	entries := make([]entry, 0, len(values))
	var total float64
	for k, v := range values {
		entries = append(entries, entry{k, v})
		total += v
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].value != entries[j].value {
			return entries[i].value > entries[j].value
		}
		return entries[i].key < entries[j].key
	})

	c := Concentration{Ratio: 100, TotalGroups: len(entries), Total: total}
	if len(entries) < 2 || total <= 0 {
		for _, e := range entries {
			c.TopGroups = append(c.TopGroups, e.key)
		}
		return c
	}

	var cumulative float64
	for i, e := range entries {
		cumulative += e.value
		c.TopGroups = append(c.TopGroups, e.key)
		if cumulative >= paretoShare*total {
			c.Ratio = float64(i+1) / float64(len(entries)) * 100
			break
		}
	}
	return c
}

// ConcentrationRatio только процент из ConcentrationOf
func ConcentrationRatio(values map[string]float64) float64 {
	return ConcentrationOf(values).Ratio
}
