// internal/notify/notify.go
package notify

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/walletwatch/internal/alarm"
	"github.com/rovshanmuradov/walletwatch/internal/events"
)

// Dispatcher доставляет сработавший алерт пользователю.
type Dispatcher interface {
	Dispatch(ctx context.Context, event alarm.Event) error
}

// LogDispatcher пишет алерты в лог.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.Named("notify")}
}

func (d *LogDispatcher) Dispatch(_ context.Context, event alarm.Event) error {
	d.logger.Info(event.Message(),
		zap.String("alert_id", event.ID),
		zap.String("user_id", event.UserID),
		zap.String("mint", event.Mint.String()),
		zap.String("type", string(event.Type)),
		zap.Float64("threshold", event.ThresholdBreached))
	return nil
}

// Multi рассылает алерт во все диспетчеры; ошибки собираются.
type Multi []Dispatcher

func (m Multi) Dispatch(ctx context.Context, event alarm.Event) error {
	var result *multierror.Error
	for _, d := range m {
		if err := d.Dispatch(ctx, event); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Subscribe подписывает диспетчер на AlarmRaised.
func Subscribe(bus *events.Bus, d Dispatcher) events.Subscription {
	return bus.SubscribeFunc(events.AlarmRaised, func(ctx context.Context, e events.Event) error {
		raised, ok := e.(events.AlarmRaisedEvent)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", e)
		}
		return d.Dispatch(ctx, raised.Alarm)
	})
}
