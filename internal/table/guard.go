package table

import (
	"context"
	"errors"
)

// Guarded wraps a Backend with a circuit breaker and traffic counters.
// Outcomes that describe the data (a missing key, a failed condition) pass
// through without counting against the breaker.
type Guarded struct {
	backend Backend
	breaker *Breaker
	metrics *Metrics
}

func NewGuarded(backend Backend, breaker *Breaker, metrics *Metrics) *Guarded {
	if breaker == nil {
		breaker = NewBreaker(nil)
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Guarded{backend: backend, breaker: breaker, metrics: metrics}
}

func (g *Guarded) Breaker() *Breaker { return g.breaker }
func (g *Guarded) Metrics() *Metrics { return g.metrics }

func isDataOutcome(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrConditionFailed) ||
		errors.Is(err, ErrUnknownIndex) ||
		errors.Is(err, ErrInvalidItem)
}

// run executes fn through the breaker, keeping data outcomes out of the
// failure count.
func (g *Guarded) run(fn func() error) error {
	var outcome error
	err := g.breaker.Execute(func() error {
		err := fn()
		if isDataOutcome(err) {
			outcome = err
			return nil
		}
		return err
	})
	switch {
	case errors.Is(err, ErrCircuitOpen):
		g.metrics.RecordRejected()
		return err
	case err != nil:
		g.metrics.RecordError()
		return err
	case errors.Is(outcome, ErrItemNotFound):
		g.metrics.RecordMiss()
	}
	return outcome
}

func (g *Guarded) Get(ctx context.Context, key Key) (Item, error) {
	g.metrics.RecordRead()
	var out Item
	err := g.run(func() (err error) {
		out, err = g.backend.Get(ctx, key)
		return err
	})
	return out, err
}

func (g *Guarded) Put(ctx context.Context, item Item, cond Condition) error {
	g.metrics.RecordWrite()
	return g.run(func() error {
		return g.backend.Put(ctx, item, cond)
	})
}

func (g *Guarded) Update(ctx context.Context, key Key, set Item, remove []string) (Item, error) {
	g.metrics.RecordWrite()
	var out Item
	err := g.run(func() (err error) {
		out, err = g.backend.Update(ctx, key, set, remove)
		return err
	})
	return out, err
}

func (g *Guarded) Delete(ctx context.Context, key Key) (bool, error) {
	g.metrics.RecordWrite()
	var existed bool
	err := g.run(func() (err error) {
		existed, err = g.backend.Delete(ctx, key)
		return err
	})
	return existed, err
}

func (g *Guarded) Query(ctx context.Context, index string, hashValue string, opts QueryOptions) ([]Item, error) {
	g.metrics.RecordRead()
	var out []Item
	err := g.run(func() (err error) {
		out, err = g.backend.Query(ctx, index, hashValue, opts)
		return err
	})
	return out, err
}

func (g *Guarded) Scan(ctx context.Context) ([]Item, error) {
	g.metrics.RecordRead()
	var out []Item
	err := g.run(func() (err error) {
		out, err = g.backend.Scan(ctx)
		return err
	})
	return out, err
}

// Ping bypasses the breaker so health checks see the backend itself.
func (g *Guarded) Ping(ctx context.Context) error {
	return g.backend.Ping(ctx)
}

func (g *Guarded) Close() error {
	return g.backend.Close()
}
