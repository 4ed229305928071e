package events

import (
	"context"
	"time"

	"github.com/turbolytics/docket/internal"
)

// Discovery announces the references a committed page added to an index.
type Discovery struct {
	RunID      string               `json:"run_id"`
	Dataset    int                  `json:"dataset"`
	Page       int                  `json:"page"`
	References []internal.Reference `json:"references"`
	At         time.Time            `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, d Discovery) error
	Close() error
}

type Noop struct{}

func (Noop) Publish(ctx context.Context, d Discovery) error {
	return nil
}

func (Noop) Close() error {
	return nil
}
