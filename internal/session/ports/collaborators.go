package ports

import (
	"context"
	"io"

	"github.com/shopspring/decimal"

	"github.com/huddleworks/livesession/internal/session/model"
)

// PaymentExecutor runs external payment operations. It is assumed
// idempotent on its side; the core only reports success or failure and
// never retries automatically.
type PaymentExecutor interface {
	// Charge moves amount from payer to the platform escrow.
	Charge(ctx context.Context, amount decimal.Decimal, payerID, payeeID string) error
	// Settle releases the session amount to the payee after completion.
	Settle(ctx context.Context, amount decimal.Decimal, payeeID string) error
}

// FileStore uploads and serves the session deliverable.
type FileStore interface {
	Upload(ctx context.Context, name string, r io.Reader) (model.DeliveredFile, error)
	Download(ctx context.Context, file model.DeliveredFile) (io.ReadCloser, error)
}

// ProfileLookup resolves the host's default per-minute rate.
type ProfileLookup interface {
	DefaultRate(ctx context.Context, hostID string) (decimal.Decimal, error)
}

// DurationCache is the local durable store for the last known clock value,
// keyed by session id. It exists only to paint an instant value on reload
// before the first timer sync arrives.
type DurationCache interface {
	Put(sessionID string, seconds int64) error
	Get(sessionID string) (int64, bool, error)
}
