// Package tlmt sends anonymous run events.
package tlmt

import (
	"context"
	"maps"
)

type Event struct {
	AnonymousID string
	Name        string
	Properties  map[string]any
}

func NewEvent(name string, props map[string]any) Event {
	ev := Event{
		Name:       name,
		Properties: make(map[string]any, len(props)),
	}

	maps.Copy(ev.Properties, props)

	return ev
}

type Telemetry interface {
	Send(ctx context.Context, event Event) error
	Close() error
}
