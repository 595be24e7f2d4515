// Package comparator сравнивает метрики окна с предыдущим окном той же длины.
// Предыдущее окно считает вызывающий (models.Window.Previous + повторная агрегация).
package comparator

import (
	"math"
	"sort"

	"github.com/bashkirian/kpi-engine/pkg/models"
)

// Compare возвращает процент изменения current относительно previous.
//
// 0 и 0 дают 0%. previous == 0 при ненулевом current даёт ChangeNew без
// числового процента. Делитель |previous|: знак процента совпадает со знаком
// current - previous и при отрицательной базе.
func Compare(current, previous float64) models.ComparisonResult {
	res := models.ComparisonResult{Current: current, Previous: previous}

	if previous == 0 {
		if current == 0 {
			zero := 0.0
			res.PercentChange = &zero
			res.Status = models.ChangeFlat
			return res
		}
		res.Status = models.ChangeNew
		return res
	}

	pct := (current - previous) / math.Abs(previous) * 100
	res.PercentChange = &pct
	switch {
	case pct > 0:
		res.Status = models.ChangeUp
	case pct < 0:
		res.Status = models.ChangeDown
	default:
		res.Status = models.ChangeFlat
	}
	return res
}

// CompareAll сравнивает метрики по объединению ключей, отсутствующие считаются нулём
func CompareAll(current, previous map[string]float64) map[string]models.ComparisonResult {
	out := make(map[string]models.ComparisonResult, len(current))
	for _, key := range keys(current, previous) {
		out[key] = Compare(current[key], previous[key])
	}
	return out
}

func keys(maps ...map[string]float64) []string {
	seen := make(map[string]struct{})
	for _, m := range maps {
		for k := range m {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
