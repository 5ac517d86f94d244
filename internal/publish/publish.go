// Package publish delivers finished research runs to their destinations.
package publish

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dossier-cli/internal/model"
	"github.com/sells-group/dossier-cli/internal/store"
)

// Publisher receives a run record once it reaches a terminal state.
type Publisher interface {
	Publish(ctx context.Context, rec *model.RunRecord) error
}

// StorePublisher persists runs to a Store.
type StorePublisher struct {
	store store.Store
}

// NewStorePublisher creates a StorePublisher.
func NewStorePublisher(s store.Store) *StorePublisher {
	return &StorePublisher{store: s}
}

// Publish implements Publisher.
func (p *StorePublisher) Publish(ctx context.Context, rec *model.RunRecord) error {
	if err := p.store.SaveRun(ctx, rec); err != nil {
		return eris.Wrap(err, "publish: store")
	}
	return nil
}

// Multi fans a record out to several publishers. Every publisher is tried;
// the errors are joined.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, rec *model.RunRecord) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, rec); err != nil {
			zap.L().Warn("publish: destination failed",
				zap.String("run_id", rec.ID),
				zap.String("callsign", rec.Callsign),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
