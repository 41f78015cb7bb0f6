package observability

import "context"

// NoOpObserver discards all events. It is the default for subsystems
// constructed without an observer.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(ctx context.Context, event Event) {}
