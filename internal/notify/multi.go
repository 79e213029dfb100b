// Package notify fans alerts out to delivery backends.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Notifier delivers one message body to one destination.
type Notifier interface {
	Send(ctx context.Context, dest, body string) error
}

type backend struct {
	name string
	n    Notifier
}

// Multi sends every alert through all backends at once. Send succeeds only
// if every backend succeeds; a failing backend never stops the others.
type Multi struct {
	backends []backend
}

func NewMulti() *Multi { return &Multi{} }

// Add registers a backend under name, used to label its errors.
func (m *Multi) Add(name string, n Notifier) *Multi {
	if n != nil {
		m.backends = append(m.backends, backend{name: name, n: n})
	}
	return m
}

func (m *Multi) Len() int { return len(m.backends) }

func (m *Multi) Send(ctx context.Context, dest, body string) error {
	if len(m.backends) == 0 {
		return fmt.Errorf("notify: no backends configured")
	}
	errs := make([]error, len(m.backends))
	var wg sync.WaitGroup
	for i, b := range m.backends {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.n.Send(ctx, dest, body); err != nil {
				errs[i] = fmt.Errorf("%s: %w", b.name, err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
