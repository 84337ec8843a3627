// Package alarm сравнивает недавнюю историю цены с порогами и формирует уведомления.
package alarm

import (
	"fmt"
	"sort"
	"time"
)

// Threshold – пороги изменения цены в процентах для одного окна.
type Threshold struct {
	Standard float64 `json:"standardAlarmPercentage"`
	Critical float64 `json:"criticalAlarmPercentage"`
}

// Config – пороги по длине окна в минутах.
type Config map[int]Threshold

// Preset – именованный набор порогов.
type Preset string

const (
	PresetQuieter  Preset = "quieter"
	PresetStandard Preset = "standard"
	PresetNoisier  Preset = "noisier"
)

// baseTable – пороги пресета standard; остальные пресеты получаются масштабированием
var baseTable = Config{
	1:  {Standard: 10, Critical: 20},
	7:  {Standard: 20, Critical: 35},
	15: {Standard: 30, Critical: 50},
	30: {Standard: 40, Critical: 70},
	60: {Standard: 50, Critical: 100},
}

var presetFactors = map[Preset]float64{
	PresetQuieter:  2,
	PresetStandard: 1,
	PresetNoisier:  0.25,
}

// ParsePreset разбирает имя пресета. Пустая строка означает standard.
func ParsePreset(s string) (Preset, error) {
	if s == "" {
		return PresetStandard, nil
	}
	p := Preset(s)
	if _, ok := presetFactors[p]; !ok {
		return "", fmt.Errorf("unknown alarm preset %q", s)
	}
	return p, nil
}

// PresetConfig возвращает пороги пресета.
func PresetConfig(p Preset) (Config, error) {
	factor, ok := presetFactors[p]
	if !ok {
		return nil, fmt.Errorf("unknown alarm preset %q", p)
	}
	return baseTable.Scale(factor), nil
}

// Scale умножает все пороги на factor.
func (c Config) Scale(factor float64) Config {
	scaled := make(Config, len(c))
	for window, th := range c {
		scaled[window] = Threshold{
			Standard: th.Standard * factor,
			Critical: th.Critical * factor,
		}
	}
	return scaled
}

// Windows возвращает окна по возрастанию.
func (c Config) Windows() []int {
	windows := make([]int, 0, len(c))
	for w := range c {
		windows = append(windows, w)
	}
	sort.Ints(windows)
	return windows
}

// MaxWindow – самое длинное окно; история цены должна быть не короче.
func (c Config) MaxWindow() time.Duration {
	windows := c.Windows()
	if len(windows) == 0 {
		return 0
	}
	return time.Duration(windows[len(windows)-1]) * time.Minute
}

// Validate проверяет, что окна положительны, а critical не меньше standard.
func (c Config) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("alarm config has no windows")
	}
	for window, th := range c {
		if window <= 0 {
			return fmt.Errorf("invalid window %d", window)
		}
		if th.Standard <= 0 {
			return fmt.Errorf("window %d: standard threshold must be positive", window)
		}
		if th.Critical < th.Standard {
			return fmt.Errorf("window %d: critical %.2f is below standard %.2f", window, th.Critical, th.Standard)
		}
	}
	return nil
}
