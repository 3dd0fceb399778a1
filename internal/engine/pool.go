package engine

import (
	"context"
	"errors"
	"fmt"
)

// Starter starts the engine for worker id.
type Starter func(ctx context.Context, id int) (Engine, error)

// UCIStarter returns a Starter launching one UCI process per worker.
func UCIStarter(cfg Config) Starter {
	return func(ctx context.Context, id int) (Engine, error) {
		c := cfg
		c.Logger = cfg.Logger.With().Int("worker_id", id).Logger()
		return Start(c)
	}
}

// Pool holds independently owned engines, one per worker. Each engine must
// only be used by a single goroutine at a time.
type Pool struct {
	engines []Engine
}

// NewPool starts n engines. If any of them fails to start, the ones already
// running are closed and the error is returned.
func NewPool(ctx context.Context, n int, start Starter) (*Pool, error) {
	if n < 1 {
		n = 1
	}
	p := &Pool{engines: make([]Engine, 0, n)}
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			p.Close()
			return nil, err
		}
		eng, err := start(ctx, i)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("start engine %d: %w", i, err)
		}
		p.engines = append(p.engines, eng)
	}
	return p, nil
}

// NewPoolOf wraps already running engines.
func NewPoolOf(engines ...Engine) *Pool {
	return &Pool{engines: engines}
}

// Size returns the number of engines.
func (p *Pool) Size() int { return len(p.engines) }

// Engine returns the engine owned by worker i.
func (p *Pool) Engine(i int) Analyzer { return p.engines[i] }

// Close releases every engine.
func (p *Pool) Close() error {
	var errs []error
	for _, eng := range p.engines {
		if err := eng.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.engines = nil
	return errors.Join(errs...)
}
