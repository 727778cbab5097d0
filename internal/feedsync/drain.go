package feedsync

import (
	"context"
	"fmt"
	"time"

	"feedbridge/internal/eventbus"
	"feedbridge/internal/post"
	logx "feedbridge/pkg/logx"
)

// DefaultDeliveryDelay is the pause after each successful delivery.
const DefaultDeliveryDelay = 2 * time.Second

// DeliverFunc sends one item downstream.
type DeliverFunc func(ctx context.Context, it post.Item) error

// PersistFunc durably saves the full state.
type PersistFunc func(ctx context.Context, st post.SyncState) error

// DrainResult counts one pass over the pending queue.
type DrainResult struct {
	Sent      int `json:"sent"`
	Attempted int `json:"attempted"`
	Failed    int `json:"failed"`
}

// Driver delivers pending items oldest-first.
//
// Every success is persisted before the next attempt, so a crash costs at
// most one repeated delivery. Failures stay pending for the next cycle.
type Driver struct {
	Persist PersistFunc
	Delay   time.Duration
	// Sleep waits between deliveries. Nil uses a context-aware timer.
	Sleep   func(ctx context.Context, d time.Duration) error
	Log     logx.Logger
	Bus     eventbus.Bus
	Metrics *Metrics
	// Observe, if set, sees every attempt after its outcome is settled.
	Observe func(it post.Item, err error)
}

// Drain delivers st's pending items oldest-first, persisting after each
// success. A failed item stays pending and the rest are still attempted.
func (d Driver) Drain(ctx context.Context, st *post.SyncState, deliver DeliverFunc) (DrainResult, error) {
	var res DrainResult
	if deliver == nil {
		return res, ErrNoDeliverer
	}
	pending := st.Pending()
	for i, it := range pending {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Attempted++
		if err := deliver(ctx, it); err != nil {
			res.Failed++
			err = fmt.Errorf("%w: %s: %w", ErrDeliver, it.ID, err)
			d.Log.Warn("delivery failed; will retry next cycle", logx.String("item", it.ID), logx.Err(err))
			d.Metrics.delivery("failed")
			eventbus.Publish(d.Bus, eventbus.ItemFailed, it.ID)
			d.observe(it, err)
			continue
		}

		st.MarkDelivered(it.ID)
		res.Sent++
		d.Metrics.delivery("sent")
		if d.Persist != nil {
			// The item is already out; its record must land even during shutdown.
			if err := d.Persist(context.WithoutCancel(ctx), *st); err != nil {
				d.Log.Error("state persist failed after delivery", logx.String("item", it.ID), logx.Err(err))
				return res, fmt.Errorf("%w: after %s: %w", ErrPersist, it.ID, err)
			}
		}
		d.Log.Info("item delivered", logx.String("item", it.ID))
		eventbus.Publish(d.Bus, eventbus.ItemDelivered, it.ID)
		it.Delivered = true
		d.observe(it, nil)

		if i < len(pending)-1 && d.Delay > 0 {
			if err := d.sleep(ctx, d.Delay); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

func (d Driver) observe(it post.Item, err error) {
	if d.Observe != nil {
		d.Observe(it, err)
	}
}

func (d Driver) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
