// Package notifytest records dispatched intents and alerts for assertions.
package notifytest

import (
	"context"
	"sync"

	"github.com/fatflowers/paydesk/internal/platform/notify"
)

type Recorder struct {
	mu      sync.Mutex
	intents []notify.Intent
	alerts  []notify.Alert
	// Err, when set, is returned from Notify after recording.
	Err error
}

var _ notify.Dispatcher = (*Recorder)(nil)

func (r *Recorder) Notify(ctx context.Context, intent notify.Intent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, intent)
	return r.Err
}

func (r *Recorder) Alert(ctx context.Context, alert notify.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	return nil
}

func (r *Recorder) Intents(typ notify.IntentType) []notify.Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Intent
	for _, in := range r.intents {
		if in.Type == typ {
			out = append(out, in)
		}
	}
	return out
}

func (r *Recorder) Alerts() []notify.Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Alert(nil), r.alerts...)
}
