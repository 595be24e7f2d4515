package derived

import "sort"

// Share доля ключа в общей сумме, в процентах
type Share struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
	Share float64 `json:"share"`
}

// Shares доли по убыванию; при неположительной сумме доли нулевые
func Shares(values map[string]float64) []Share {
	var total float64
	for _, v := range values {
		total += v
	}
	out := make([]Share, 0, len(values))
	for k, v := range values {
		s := Share{Key: k, Value: v}
		if total > 0 {
			s.Share = v / total * 100
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Share != out[j].Share {
			return out[i].Share > out[j].Share
		}
		return out[i].Key < out[j].Key
	})
	return out
}
