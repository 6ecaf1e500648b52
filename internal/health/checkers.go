package health

import (
	"context"
	"errors"

	"github.com/mise-kitchen/mise/internal/store"
	"github.com/mise-kitchen/mise/internal/usage"
	"github.com/mise-kitchen/mise/pkg/stt"
)

// Database returns a [Checker] that probes the database with a trivial query.
func Database(db store.DB) Checker {
	return Checker{
		Name: "database",
		Check: func(ctx context.Context) error {
			if db == nil {
				return errors.New("database is not configured")
			}
			if _, err := db.Exec(ctx, "SELECT 1"); err != nil {
				return err
			}
			return nil
		},
	}
}

// Usage returns a [Checker] that fetches the current quota status from the
// usage collaborator.
func Usage(client *usage.Client) Checker {
	return Checker{
		Name: "usage",
		Check: func(ctx context.Context) error {
			if client == nil {
				return errors.New("usage client is not configured")
			}
			_, err := client.Fetch(ctx)
			return err
		},
	}
}

// STT returns a [Checker] that verifies a speech-to-text provider is
// configured. Streaming sessions are not dialled from the readiness probe;
// dial failures surface through the pool's reconnection machinery instead.
func STT(provider stt.Provider) Checker {
	return Checker{
		Name: "stt",
		Check: func(context.Context) error {
			if provider == nil {
				return errors.New("stt provider is not configured")
			}
			return nil
		},
	}
}
