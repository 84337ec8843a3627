package alarm

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/storage"
	"github.com/rovshanmuradov/walletwatch/internal/utils/metrics"
)

// AlertType – уровень уведомления
type AlertType string

const (
	AlertNormal   AlertType = "normal"
	AlertCritical AlertType = "critical"
)

// DefaultCooldown – минимальный интервал между уведомлениями по одной паре (user, mint)
const DefaultCooldown = 5 * time.Minute

// Breach – превышение порога в одном окне.
type Breach struct {
	Type              AlertType
	PercentChange     float64
	WindowMinutes     int
	ThresholdBreached float64
	Price             float64
	BasePrice         float64
}

// Event – уведомление для пользователя.
type Event struct {
	ID                string           `json:"id"`
	UserID            string           `json:"userId"`
	Mint              solana.PublicKey `json:"tokenMint"`
	Symbol            string           `json:"symbol,omitempty"`
	Type              AlertType        `json:"alertType"`
	PercentChange     float64          `json:"percentChange"`
	WindowMinutes     int              `json:"windowMinutes"`
	ThresholdBreached float64          `json:"thresholdBreached"`
	Price             float64          `json:"price"`
	Timestamp         time.Time        `json:"timestamp"`
}

// Message формирует текст уведомления.
func (e *Event) Message() string {
	name := e.Symbol
	if name == "" {
		name = e.Mint.String()
	}
	direction := "up"
	if e.PercentChange < 0 {
		direction = "down"
	}
	return fmt.Sprintf("%s is %s %.1f%% in %d min", name, direction, math.Abs(e.PercentChange), e.WindowMinutes)
}

// Evaluate проверяет окна по возрастанию. Для каждого окна опорная цена – последняя
// выборка не позже now-window. Первое превышение (critical проверяется раньше standard)
// прекращает проверку. samples упорядочены по времени.
func Evaluate(cfg Config, samples []storage.PriceSample, now time.Time) (*Breach, bool) {
	if len(samples) == 0 {
		return nil, false
	}
	latest := samples[len(samples)-1]

	for _, window := range cfg.Windows() {
		base, ok := sampleAtOrBefore(samples, now.Add(-time.Duration(window)*time.Minute))
		if !ok || !(base.Price > 0) {
			continue
		}

		change := (latest.Price - base.Price) / base.Price * 100
		if math.IsNaN(change) || math.IsInf(change, 0) {
			continue
		}

		th := cfg[window]
		breach := &Breach{
			PercentChange: change,
			WindowMinutes: window,
			Price:         latest.Price,
			BasePrice:     base.Price,
		}
		switch abs := math.Abs(change); {
		case abs > th.Critical:
			breach.Type, breach.ThresholdBreached = AlertCritical, th.Critical
			return breach, true
		case abs > th.Standard:
			breach.Type, breach.ThresholdBreached = AlertNormal, th.Standard
			return breach, true
		}
	}
	return nil, false
}

// sampleAtOrBefore возвращает последнюю выборку с временем не позже target.
func sampleAtOrBefore(samples []storage.PriceSample, target time.Time) (storage.PriceSample, bool) {
	ts := target.UnixMilli()
	for i := len(samples) - 1; i >= 0; i-- {
		if samples[i].Timestamp <= ts {
			return samples[i], true
		}
	}
	return storage.PriceSample{}, false
}

// Evaluator применяет Evaluate к парам (user, mint) и подавляет повторы в пределах cooldown.
type Evaluator struct {
	mu       sync.Mutex
	cooldown time.Duration
	logger   *zap.Logger
	now      func() time.Time

	history   map[string]time.Time // user|mint -> last alert time
	alerts    []Event
	maxAlerts int
}

// NewEvaluator создаёт Evaluator.
func NewEvaluator(cooldown time.Duration, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		cooldown:  cooldown,
		logger:    logger.Named("alarm"),
		now:       time.Now,
		history:   make(map[string]time.Time),
		alerts:    make([]Event, 0, 100),
		maxAlerts: 1000,
	}
}

// WithClock подменяет источник текущего времени.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Check возвращает событие для пары (user, mint) или nil.
func (e *Evaluator) Check(userID string, token *storage.Token, cfg Config, samples []storage.PriceSample) *Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	key := userID + "|" + token.Mint.String()
	if last, ok := e.history[key]; ok && now.Sub(last) < e.cooldown {
		return nil
	}

	breach, ok := Evaluate(cfg, samples, now)
	if !ok {
		return nil
	}

	event := Event{
		ID:                uuid.NewString(),
		UserID:            userID,
		Mint:              token.Mint,
		Symbol:            token.Metadata.Symbol,
		Type:              breach.Type,
		PercentChange:     breach.PercentChange,
		WindowMinutes:     breach.WindowMinutes,
		ThresholdBreached: breach.ThresholdBreached,
		Price:             breach.Price,
		Timestamp:         now,
	}
	e.history[key] = now
	e.record(event)
	return &event
}

func (e *Evaluator) record(event Event) {
	if len(e.alerts) >= e.maxAlerts {
		e.alerts = e.alerts[1:]
	}
	e.alerts = append(e.alerts, event)
	metrics.RecordAlert(string(event.Type), event.WindowMinutes)

	fields := []zap.Field{
		zap.String("user_id", event.UserID),
		zap.String("mint", event.Mint.String()),
		zap.Float64("percent_change", event.PercentChange),
		zap.Int("window_minutes", event.WindowMinutes),
	}
	if event.Type == AlertCritical {
		e.logger.Warn("Critical alarm triggered", fields...)
		return
	}
	e.logger.Info("Alarm triggered", fields...)
}

// RecentAlerts возвращает последние limit событий (все при limit <= 0).
func (e *Evaluator) RecentAlerts(limit int) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	if limit <= 0 || limit > len(e.alerts) {
		limit = len(e.alerts)
	}
	result := make([]Event, limit)
	copy(result, e.alerts[len(e.alerts)-limit:])
	return result
}

// ClearHistory сбрасывает cooldown всех пар.
func (e *Evaluator) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = make(map[string]time.Time)
}
