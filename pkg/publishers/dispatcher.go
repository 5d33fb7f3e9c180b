package publishers

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Dispatcher fans an event out to every configured publisher.
type Dispatcher struct {
	pubs []Publisher
	log  Logger
}

// NewDispatcher wraps the given publishers. A dispatcher with no publishers is a
// valid no-op.
func NewDispatcher(pubs []Publisher, log Logger) *Dispatcher {
	out := make([]Publisher, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return &Dispatcher{pubs: out, log: ensureLogger(log)}
}

// Setup loads the publishers file and builds a dispatcher for its enabled
// entries. An empty path yields a no-op dispatcher.
func Setup(ctx context.Context, path string, reg Registry, log Logger) (*Dispatcher, error) {
	log = ensureLogger(log)
	if strings.TrimSpace(path) == "" {
		return NewDispatcher(nil, log), nil
	}

	cfgReg, err := LoadRegistry(path)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		reg = DefaultRegistry()
	}

	pubs, err := BuildAll(ctx, reg, cfgReg.Enabled(), log)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(pubs))
	for _, p := range pubs {
		ids = append(ids, p.ID())
	}
	log.InfoObj("publishers ready", "publishers_ready", map[string]any{
		"count": len(pubs),
		"ids":   ids,
	})
	return NewDispatcher(pubs, log), nil
}

// Len returns the number of publishers.
func (d *Dispatcher) Len() int {
	if d == nil {
		return 0
	}
	return len(d.pubs)
}

// Publish delivers evt to every publisher that accepts it. Failures are logged and
// joined; one failing sink does not stop delivery to the others. The returned
// count is the number of successful deliveries.
func (d *Dispatcher) Publish(ctx context.Context, evt Event) (int, error) {
	if d == nil {
		return 0, nil
	}

	var (
		delivered int
		errs      []error
	)
	for _, p := range d.pubs {
		if f, ok := p.(interface{ Accepts(Event) bool }); ok && !f.Accepts(evt) {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := p.Publish(ctx, evt); err != nil {
			d.log.WarnObj("publish failed", "publish_error", map[string]any{
				"publisher_id": p.ID(),
				"type":         p.Type(),
				"event_id":     evt.ID,
				"url":          evt.Article.URL,
				"error":        err.Error(),
			})
			errs = append(errs, fmt.Errorf("publisher %s: %w", p.ID(), err))
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// Close releases publisher resources.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, p := range d.pubs {
		if c, ok := p.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close publisher %s: %w", p.ID(), err))
			}
		}
	}
	return errors.Join(errs...)
}
