// Package period переводит пресеты дашборда (today, 7d, 30d, custom) в окно [start, end).
// Текущее время передаётся явно.
package period

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bashkirian/kpi-engine/pkg/models"
)

var ErrInvalidPreset = errors.New("invalid range preset")

type Preset string

const (
	PresetToday     Preset = "today"
	PresetYesterday Preset = "yesterday"
	Preset7Days     Preset = "7d"
	Preset30Days    Preset = "30d"
	PresetCustom    Preset = "custom"
)

// Presets поддерживаемые пресеты, кроме custom
var Presets = []Preset{PresetToday, PresetYesterday, Preset7Days, Preset30Days}

func ParsePreset(s string) (Preset, error) {
	p := Preset(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PresetToday, PresetYesterday, Preset7Days, Preset30Days, PresetCustom:
		return p, nil
	case "":
		return Preset7Days, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPreset, s)
}

// Resolve окно пресета относительно now в зоне loc. Окна N дней включают
// сегодняшний день целиком: [полночь - (N-1) дней, следующая полночь).
func Resolve(p Preset, now time.Time, loc *time.Location) (models.Window, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	day := func(offset int) time.Time {
		return time.Date(local.Year(), local.Month(), local.Day()+offset, 0, 0, 0, 0, loc)
	}

	switch p {
	case PresetToday:
		return models.Window{Start: day(0), End: day(1)}, nil
	case PresetYesterday:
		return models.Window{Start: day(-1), End: day(0)}, nil
	case Preset7Days:
		return models.Window{Start: day(-6), End: day(1)}, nil
	case Preset30Days:
		return models.Window{Start: day(-29), End: day(1)}, nil
	case PresetCustom:
		return models.Window{}, fmt.Errorf("%w: custom preset requires explicit start and end", ErrInvalidPreset)
	}
	return models.Window{}, fmt.Errorf("%w: %q", ErrInvalidPreset, p)
}

// Custom проверяет явно заданное окно
func Custom(start, end time.Time) (models.Window, error) {
	w := models.Window{Start: start, End: end}
	if err := w.Validate(); err != nil {
		return models.Window{}, err
	}
	return w, nil
}
