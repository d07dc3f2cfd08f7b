package service

import (
	"context"
	"errors"
	"fmt"
)

// Group starts a set of services in wiring order and stops them in
// reverse, so later services can depend on earlier ones being up.
type Group struct {
	services []*Service
}

// NewGroup creates a group over the given services, in start order.
func NewGroup(services ...*Service) *Group {
	return &Group{services: services}
}

// Add appends a service to the end of the start order.
func (g *Group) Add(s *Service) {
	g.services = append(g.services, s)
}

// Start starts every service in order. On the first failure the
// already-started services are stopped in reverse and the start
// failure is returned with any stop errors joined in.
func (g *Group) Start(ctx context.Context) error {
	for i, s := range g.services {
		if err := s.Start(ctx); err != nil {
			startErr := fmt.Errorf("group start aborted at service %q: %w", s.Name(), err)

			var stopErrs error
			for j := i - 1; j >= 0; j-- {
				if stopErr := g.services[j].Stop(ctx); stopErr != nil {
					stopErrs = errors.Join(stopErrs, stopErr)
				}
			}
			if stopErrs != nil {
				return errors.Join(startErr, stopErrs)
			}
			return startErr
		}
	}
	return nil
}

// Stop stops every service in reverse order, continuing past
// individual failures and returning them joined.
func (g *Group) Stop(ctx context.Context) error {
	var errs error
	for i := len(g.services) - 1; i >= 0; i-- {
		if err := g.services[i].Stop(ctx); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
