// Package notifytest provides a recording delivery channel for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/farellandr/eventhub/internal/models"
	"github.com/farellandr/eventhub/internal/notify"
)

// Recorder captures every delivery and answers with a fixed result.
type Recorder struct {
	mu        sync.Mutex
	channel   models.NotificationChannel
	fail      bool
	Delivered []notify.Delivery
}

func NewRecorder(channel models.NotificationChannel) *Recorder {
	return &Recorder{channel: channel}
}

// Failing makes every subsequent send unsuccessful.
func (r *Recorder) Failing() *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = true
	return r
}

func (r *Recorder) Name() models.NotificationChannel { return r.channel }

func (r *Recorder) Send(ctx context.Context, delivery notify.Delivery) notify.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Delivered = append(r.Delivered, delivery)
	if r.fail {
		return notify.Result{Error: "provider unavailable"}
	}
	return notify.Result{Success: true}
}

func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Delivered)
}

// To returns the deliveries addressed to the given destination.
func (r *Recorder) To(address string) []notify.Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Delivery
	for _, d := range r.Delivered {
		if d.To == address {
			out = append(out, d)
		}
	}
	return out
}
