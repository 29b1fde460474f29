// Package adapters provides the built-in collaborator implementations
// sessiond runs with when no external media, payment or storage service
// is attached. They keep the full protocol exercisable on a single box.
package adapters

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/huddleworks/livesession/internal/session/model"
	"github.com/huddleworks/livesession/internal/session/ports"
)

// LoopbackMedia satisfies the media port without a real conferencing
// backend. Track operations always succeed; the events channel carries
// only what the owner injects (tests) and closes on Leave.
type LoopbackMedia struct {
	logger zerolog.Logger
	events chan ports.MediaEvent
}

func NewLoopbackMedia(logger zerolog.Logger) *LoopbackMedia {
	return &LoopbackMedia{
		logger: logger,
		events: make(chan ports.MediaEvent, 16),
	}
}

func (m *LoopbackMedia) Join(_ context.Context, sessionID, user string) error {
	m.logger.Info().Str("session_id", sessionID).Str("user", user).Msg("joined loopback media session")
	return nil
}

func (m *LoopbackMedia) Leave(context.Context) error {
	m.logger.Info().Msg("left loopback media session")
	return nil
}

func (m *LoopbackMedia) PublishTrack(_ context.Context, kind ports.TrackKind) error {
	m.logger.Debug().Str("track", string(kind)).Msg("track published")
	return nil
}

func (m *LoopbackMedia) UnpublishTrack(_ context.Context, kind ports.TrackKind) error {
	m.logger.Debug().Str("track", string(kind)).Msg("track unpublished")
	return nil
}

func (m *LoopbackMedia) Events() <-chan ports.MediaEvent { return m.events }

// Inject feeds one signal into the event stream, for harnesses driving
// the loopback engine from outside.
func (m *LoopbackMedia) Inject(ev ports.MediaEvent) { m.events <- ev }

// LedgerPayments records charges and settlements in the log instead of
// calling a processor. Used for local runs; production wires a real
// executor here.
type LedgerPayments struct {
	logger zerolog.Logger
}

func NewLedgerPayments(logger zerolog.Logger) *LedgerPayments {
	return &LedgerPayments{logger: logger}
}

func (p *LedgerPayments) Charge(_ context.Context, amount decimal.Decimal, payerID, payeeID string) error {
	p.logger.Info().
		Str("amount", amount.String()).
		Str("payer", payerID).
		Str("payee", payeeID).
		Msg("ledger charge")
	return nil
}

func (p *LedgerPayments) Settle(_ context.Context, amount decimal.Decimal, payeeID string) error {
	p.logger.Info().
		Str("amount", amount.String()).
		Str("payee", payeeID).
		Msg("ledger settlement")
	return nil
}

// DirFileStore keeps deliverables as plain files under a directory and
// serves them back by their file:// handle.
type DirFileStore struct {
	dir string
}

func NewDirFileStore(dir string) (*DirFileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create deliverable dir: %w", err)
	}
	return &DirFileStore{dir: dir}, nil
}

func (s *DirFileStore) Upload(_ context.Context, name string, r io.Reader) (model.DeliveredFile, error) {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return model.DeliveredFile{}, fmt.Errorf("invalid deliverable name %q", name)
	}
	path := filepath.Join(s.dir, base)

	f, err := os.Create(path)
	if err != nil {
		return model.DeliveredFile{}, fmt.Errorf("create deliverable: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return model.DeliveredFile{}, fmt.Errorf("write deliverable: %w", err)
	}
	if err := f.Close(); err != nil {
		return model.DeliveredFile{}, fmt.Errorf("close deliverable: %w", err)
	}
	return model.DeliveredFile{URL: "file://" + path, Name: base}, nil
}

func (s *DirFileStore) Download(_ context.Context, file model.DeliveredFile) (io.ReadCloser, error) {
	path := strings.TrimPrefix(file.URL, "file://")
	// Only serve out of the store directory.
	if filepath.Dir(path) != filepath.Clean(s.dir) {
		return nil, fmt.Errorf("deliverable %q outside store", file.URL)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open deliverable: %w", err)
	}
	return f, nil
}

// StaticProfiles answers every rate lookup with one configured value.
type StaticProfiles struct {
	Rate decimal.Decimal
}

func (p StaticProfiles) DefaultRate(context.Context, string) (decimal.Decimal, error) {
	return p.Rate, nil
}

var (
	_ ports.MediaEngine     = (*LoopbackMedia)(nil)
	_ ports.PaymentExecutor = (*LedgerPayments)(nil)
	_ ports.FileStore       = (*DirFileStore)(nil)
	_ ports.ProfileLookup   = StaticProfiles{}
)
