package broadcast

import (
	"context"
	"errors"

	"github.com/classpoll/livepoll/internal/models"
)

// Publisher mirrors the engine's publisher contract so adapters can be
// composed without importing the session package.
type Publisher interface {
	Publish(ctx context.Context, state models.SessionState) error
}

// Multi fans a snapshot out to several publishers, e.g. the external bus and
// the local WebSocket hub. All publishers are attempted; errors are joined.
func Multi(publishers ...Publisher) Publisher {
	return multiPublisher(publishers)
}

type multiPublisher []Publisher

func (m multiPublisher) Publish(ctx context.Context, state models.SessionState) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, state); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
