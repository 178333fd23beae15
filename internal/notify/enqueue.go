package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/candle-checkout/internal/events"
	"github.com/noah-isme/candle-checkout/internal/obs"
	"github.com/noah-isme/candle-checkout/internal/order"
)

// TaskEnqueuer is the subset of *asynq.Client used here.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer turns order.paid events into confirmation email tasks. It
// implements events.Notifier.
type Enqueuer struct {
	Client    TaskEnqueuer
	Queue     string
	MaxRetry  int
	Retention time.Duration
	Logger    zerolog.Logger
}

// Notify implements events.Notifier. Other topics are ignored, as are orders
// without a recipient.
func (e Enqueuer) Notify(ctx context.Context, ev events.Event) error {
	if e.Client == nil || ev.Topic != events.TopicOrderPaid {
		return nil
	}
	var o order.Order
	if err := ev.Decode(&o); err != nil {
		return fmt.Errorf("notify: decode %s: %w", ev.Topic, err)
	}
	p := PayloadFromOrder(o)
	if p.Email == "" {
		e.Logger.Debug().Str("order_id", p.OrderID).Msg("confirmation_skipped_no_recipient")
		return nil
	}
	task, err := NewConfirmationTask(p)
	if err != nil {
		return err
	}
	_, err = e.Client.EnqueueContext(ctx, task, e.options(p.OrderID)...)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	obs.CountNotification("order_confirmation_enqueue", err)
	if err != nil {
		return fmt.Errorf("notify: enqueue confirmation: %w", err)
	}
	return nil
}

func (e Enqueuer) options(orderID string) []asynq.Option {
	queue := e.Queue
	if queue == "" {
		queue = "default"
	}
	maxRetry := e.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 5
	}
	retention := e.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(maxRetry),
		asynq.TaskID("confirmation:" + orderID),
		asynq.Retention(retention),
	}
}
