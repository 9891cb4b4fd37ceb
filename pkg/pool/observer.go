package pool

import "github.com/tupyy/browser-runner/internal/models"

// Observer receives the events of a pool. Methods are called from the pool's
// event loop, in the order the events are produced. They must not block and
// must not call back into the pool.
type Observer interface {
	OnStatus(models.StatusEvent)
	OnDone(models.RunSummary)
}

// ObserverFuncs adapts plain functions to an Observer. Nil fields are ignored.
type ObserverFuncs struct {
	Status func(models.StatusEvent)
	Done   func(models.RunSummary)
}

func (o ObserverFuncs) OnStatus(e models.StatusEvent) {
	if o.Status != nil {
		o.Status(e)
	}
}

func (o ObserverFuncs) OnDone(s models.RunSummary) {
	if o.Done != nil {
		o.Done(s)
	}
}
