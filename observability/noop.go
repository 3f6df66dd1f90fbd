package observability

import "context"

// NoOpObserver discards every event with zero overhead. It is registered
// as "noop" in every Registry NewRegistry returns.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(ctx context.Context, event Event) {}
