// Package alerts оценивает фиксированный каталог пороговых правил по доменам.
//
// Вход каждого домена - отдельный вариант Input с только теми полями, которые
// читают его правила. Правила чистые и не видят результаты друг друга.
package alerts

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/bashkirian/kpi-engine/pkg/models"
)

// Input закрытая сумма типов: FinanceInput, KitchenInput, WaiterInput, MenuInput, OperationsInput
type Input interface {
	Domain() models.Domain
	sealed()
}

type rule[T Input] struct {
	typ  models.AlertType
	eval func(T) (models.Alert, bool)
}

func run[T Input](in T, rules []rule[T]) []models.Alert {
	out := make([]models.Alert, 0, len(rules))
	for _, r := range rules {
		a, ok := r.eval(in)
		if !ok {
			continue
		}
		a.Domain = in.Domain()
		a.Type = r.typ
		out = append(out, a)
	}
	return out
}

// Evaluate прогоняет каталог домена входа
func Evaluate(in Input) []models.Alert {
	switch v := in.(type) {
	case FinanceInput:
		return run(v, financeRules)
	case KitchenInput:
		return run(v, kitchenRules)
	case WaiterInput:
		return run(v, waiterRules)
	case MenuInput:
		return run(v, menuRules)
	case OperationsInput:
		return run(v, operationsRules)
	}
	return nil
}

// EvaluateAll оценивает домены параллельно. Результат: алерты в порядке
// входов и каталогов, затем стабильно по убыванию severity.
func EvaluateAll(ctx context.Context, inputs ...Input) ([]models.Alert, error) {
	for i, in := range inputs {
		if in == nil {
			return nil, fmt.Errorf("alerts input %d is nil", i)
		}
	}

	results := make([][]models.Alert, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		i, in := i, in
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = Evaluate(in)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []models.Alert
	for _, r := range results {
		out = append(out, r...)
	}
	SortBySeverity(out)
	return out, nil
}

func SortBySeverity(list []models.Alert) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Severity.Rank() > list[j].Severity.Rank()
	})
}

// Catalogue типы алертов домена в порядке оценки
func Catalogue(d models.Domain) []models.AlertType {
	switch d {
	case models.DomainFinance:
		return types(financeRules)
	case models.DomainKitchen:
		return types(kitchenRules)
	case models.DomainWaiters:
		return types(waiterRules)
	case models.DomainMenu:
		return types(menuRules)
	case models.DomainOperations:
		return types(operationsRules)
	}
	return nil
}

func types[T Input](rules []rule[T]) []models.AlertType {
	out := make([]models.AlertType, len(rules))
	for i, r := range rules {
		out[i] = r.typ
	}
	return out
}
