package observability

import "context"

// MultiObserver fans an event out to several observers at once, e.g. a
// slog sink for operators plus a capturing Observer a test installed to
// assert on emitted events.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver builds a MultiObserver forwarding to every non-nil
// observer given; nil entries are dropped so a caller building the list
// conditionally (an optional metrics sink, say) need not filter it first.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	filtered := make([]Observer, 0, len(observers))
	for _, obs := range observers {
		if obs != nil {
			filtered = append(filtered, obs)
		}
	}
	return &MultiObserver{observers: filtered}
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}
