package resolver

import (
	"context"
)

// Navigator loads a URL in the host's tab or view controller
type Navigator interface {
	Navigate(ctx context.Context, cmd Command) error
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(ctx context.Context, cmd Command) error

// Navigate calls f
func (f NavigatorFunc) Navigate(ctx context.Context, cmd Command) error {
	return f(ctx, cmd)
}

// Observer is told about every resolution
type Observer interface {
	Resolved(cmd Command)
}

// Trigger connects the command input surface to a navigator
type Trigger struct {
	resolver  *Resolver
	navigator Navigator
	observers []Observer
}

// NewTrigger creates a trigger
func NewTrigger(r *Resolver, nav Navigator, observers ...Observer) *Trigger {
	return &Trigger{
		resolver:  r,
		navigator: nav,
		observers: observers,
	}
}

// Enter handles one submission of text with the given disposition
func (t *Trigger) Enter(ctx context.Context, text string, d Disposition) (Command, error) {
	cmd, err := t.resolver.Resolve(ctx, text, d == CurrentView)
	if err != nil {
		return Command{}, err
	}

	for _, o := range t.observers {
		o.Resolved(cmd)
	}

	if err := t.navigator.Navigate(ctx, cmd); err != nil {
		return cmd, err
	}
	return cmd, nil
}
