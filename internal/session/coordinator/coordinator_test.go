package coordinator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/huddleworks/livesession/internal/billing"
	"github.com/huddleworks/livesession/internal/bus"
	"github.com/huddleworks/livesession/internal/session/clock"
	"github.com/huddleworks/livesession/internal/session/model"
	"github.com/huddleworks/livesession/internal/session/negotiate"
	"github.com/huddleworks/livesession/internal/session/ports"
	"github.com/huddleworks/livesession/internal/session/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- collaborator doubles ---

type stubMedia struct {
	mu     sync.Mutex
	events chan ports.MediaEvent

	published   map[ports.TrackKind]bool
	failScreen  bool
	leaveCalled bool
}

func newStubMedia() *stubMedia {
	return &stubMedia{
		events:    make(chan ports.MediaEvent, 16),
		published: make(map[ports.TrackKind]bool),
	}
}

func (m *stubMedia) Join(context.Context, string, string) error { return nil }

func (m *stubMedia) Leave(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveCalled = true
	return nil
}

func (m *stubMedia) PublishTrack(_ context.Context, kind ports.TrackKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == ports.TrackScreen && m.failScreen {
		return errors.New("capture denied by user")
	}
	m.published[kind] = true
	return nil
}

func (m *stubMedia) UnpublishTrack(_ context.Context, kind ports.TrackKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.published, kind)
	return nil
}

func (m *stubMedia) Events() <-chan ports.MediaEvent { return m.events }

func (m *stubMedia) screenLive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published[ports.TrackScreen]
}

type stubPayments struct {
	mu          sync.Mutex
	failCharge  bool
	charges     int
	settles     int
	lastCharged decimal.Decimal
}

func (p *stubPayments) Charge(_ context.Context, amount decimal.Decimal, _, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failCharge {
		return errors.New("card declined")
	}
	p.charges++
	p.lastCharged = amount
	return nil
}

func (p *stubPayments) Settle(_ context.Context, _ decimal.Decimal, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settles++
	return nil
}

func (p *stubPayments) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.charges, p.settles
}

type stubFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newStubFiles() *stubFiles {
	return &stubFiles{objects: make(map[string][]byte)}
}

func (f *stubFiles) Upload(_ context.Context, name string, r io.Reader) (model.DeliveredFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.DeliveredFile{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	url := "mem://deliverables/" + name
	f.objects[url] = data
	return model.DeliveredFile{URL: url, Name: name}, nil
}

func (f *stubFiles) Download(_ context.Context, file model.DeliveredFile) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[file.URL]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type stubProfiles struct{ rate decimal.Decimal }

func (p stubProfiles) DefaultRate(context.Context, string) (decimal.Decimal, error) {
	return p.rate, nil
}

// --- harness ---

type peer struct {
	co        *Coordinator
	media     *stubMedia
	approvals store.ApprovalStore
	runErr    chan error
}

type pair struct {
	bus      *bus.MemoryBus
	payments *stubPayments
	files    *stubFiles
	host     *peer
	cust     *peer
	cancel   context.CancelFunc
}

func startPeer(t *testing.T, ctx context.Context, cfg Config, deps Deps) *peer {
	t.Helper()
	co, err := New(cfg, deps)
	require.NoError(t, err)

	p := &peer{
		co:        co,
		media:     deps.Media.(*stubMedia),
		approvals: deps.Approvals,
		runErr:    make(chan error, 1),
	}
	go func() { p.runErr <- co.Run(ctx) }()
	return p
}

func baseConfig(role model.Role) Config {
	self, other := "Dana", "Casey"
	if role == model.RoleParticipant {
		self, other = other, self
	}
	return Config{
		SessionID:     "sess-42",
		Role:          role,
		SelfName:      self,
		PeerName:      other,
		HostID:        "host-1",
		ParticipantID: "cust-1",
		TaxRate:       decimal.NewFromFloat(0.18),
		TickInterval:  5 * time.Millisecond,
	}
}

// startPair brings up a host and a participant on one in-process bus. The
// host goes first so its subscription is live before the participant's
// resync request hits the channel.
func startPair(t *testing.T) *pair {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	pr := &pair{
		bus:      bus.NewMemoryBus(),
		payments: &stubPayments{},
		files:    newStubFiles(),
		cancel:   cancel,
	}

	pr.host = startPeer(t, ctx, baseConfig(model.RoleHost), Deps{
		Bus:       pr.bus,
		Media:     newStubMedia(),
		Payments:  pr.payments,
		Files:     pr.files,
		Profiles:  stubProfiles{rate: decimal.NewFromInt(5)},
		Approvals: store.NewMemoryStore(),
		Durations: clock.NewMemoryCache(),
	})
	require.Eventually(t, func() bool {
		return pr.host.co.Snapshot().RatePerMinute.Equal(decimal.NewFromInt(5))
	}, 2*time.Second, time.Millisecond, "host never loaded its default rate")

	pr.cust = startPeer(t, ctx, baseConfig(model.RoleParticipant), Deps{
		Bus:       pr.bus,
		Media:     newStubMedia(),
		Payments:  pr.payments,
		Files:     pr.files,
		Approvals: store.NewMemoryStore(),
		Durations: clock.NewMemoryCache(),
	})

	t.Cleanup(func() {
		cancel()
		waitRun(t, pr.host)
		waitRun(t, pr.cust)
	})
	return pr
}

// waitRun blocks until the coordinator loop returned. Idempotent: the
// result is put back so the test cleanup can wait again.
func waitRun(t *testing.T, p *peer) {
	t.Helper()
	select {
	case err := <-p.runErr:
		p.runErr <- err
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop")
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond, msg)
}

// --- tests ---

func TestFullSessionHappyPath(t *testing.T) {
	pr := startPair(t)
	ctx := context.Background()

	// The participant resyncs on join and mirrors the host's pricing.
	eventually(t, func() bool {
		return pr.cust.co.Snapshot().RatePerMinute.Equal(decimal.NewFromInt(5))
	}, "participant never adopted the host rate")

	// Host clock ticks flow to the participant as timer syncs.
	eventually(t, func() bool {
		return pr.cust.co.Snapshot().DurationSeconds >= 2
	}, "participant never saw the clock advance")

	// Rate negotiation: host proposes, participant accepts, both apply.
	newRate := decimal.RequireFromString("6.5")
	require.NoError(t, pr.host.co.ProposeRate(ctx, newRate))
	eventually(t, func() bool {
		p := pr.cust.co.Snapshot().PendingRate
		return p != nil && p.Value.Equal(newRate)
	}, "proposal never reached the participant")
	require.NoError(t, pr.cust.co.AcceptProposal(ctx, negotiate.KindRate))
	eventually(t, func() bool {
		return pr.host.co.Snapshot().RatePerMinute.Equal(newRate) &&
			pr.cust.co.Snapshot().RatePerMinute.Equal(newRate)
	}, "accepted rate did not converge")

	// Multiplier negotiation: declined, value stays put.
	require.NoError(t, pr.host.co.ProposeMultiplier(ctx, decimal.NewFromInt(2), "source_file"))
	eventually(t, func() bool {
		return pr.cust.co.Snapshot().PendingMultiplier != nil
	}, "multiplier proposal never arrived")
	require.NoError(t, pr.cust.co.DeclineProposal(ctx, negotiate.KindMultiplier))
	require.True(t, pr.host.co.Snapshot().FormatMultiplier.Equal(decimal.NewFromInt(1)))
	require.True(t, pr.cust.co.Snapshot().FormatMultiplier.Equal(decimal.NewFromInt(1)))

	// Presentation pauses both clocks and resumes on stop.
	require.NoError(t, pr.host.co.StartPresenting(ctx))
	eventually(t, func() bool {
		s := pr.cust.co.Snapshot()
		return s.Presentation == model.PresentationHost && s.ClockState == model.ClockPaused
	}, "participant never saw the host presenting")
	require.True(t, pr.host.media.screenLive())
	require.NoError(t, pr.host.co.StopPresenting(ctx))
	eventually(t, func() bool {
		s := pr.cust.co.Snapshot()
		return s.Presentation == model.PresentationNone && s.ClockState == model.ClockRunning
	}, "clock did not resume after presentation")

	// First end request is declined, the session continues.
	require.NoError(t, pr.host.co.RequestEndSession(ctx))
	eventually(t, func() bool {
		return pr.cust.co.Snapshot().Phase == model.PhaseEndRequested
	}, "end request never reached the participant")
	require.True(t, pr.cust.co.Snapshot().TotalAmount.GreaterThan(decimal.Zero))
	require.NoError(t, pr.cust.co.ContinueSession(ctx))
	eventually(t, func() bool {
		return pr.host.co.Snapshot().Phase == model.PhaseActive &&
			pr.host.co.Snapshot().ClockState == model.ClockRunning
	}, "session did not continue after decline")

	// Second end request goes through payment, delivery and rating.
	require.NoError(t, pr.host.co.RequestEndSession(ctx))
	eventually(t, func() bool {
		return pr.cust.co.Snapshot().Phase == model.PhaseEndRequested
	}, "second end request never arrived")

	custView := pr.cust.co.Snapshot()
	wantTotal := billing.Invoice(custView.FrozenDuration, custView.RatePerMinute,
		custView.FormatMultiplier, decimal.NewFromFloat(0.18)).Total
	require.True(t, custView.TotalAmount.Equal(wantTotal),
		"total %s does not match invoice %s", custView.TotalAmount, wantTotal)

	require.NoError(t, pr.cust.co.AcceptEnd(ctx))
	require.NoError(t, pr.cust.co.Pay(ctx))
	eventually(t, func() bool {
		return pr.host.co.Snapshot().Phase == model.PhaseAwaitingFileUpload
	}, "host never learned about the payment")

	require.NoError(t, pr.host.co.UploadDeliverable(ctx, "logo-final.zip", strings.NewReader("binary design data")))
	eventually(t, func() bool {
		f := pr.cust.co.Snapshot().File
		return f != nil && f.Name == "logo-final.zip"
	}, "deliverable never reached the participant")

	var got bytes.Buffer
	require.NoError(t, pr.cust.co.DownloadDeliverable(ctx, &got))
	require.Equal(t, "binary design data", got.String())
	eventually(t, func() bool {
		return pr.host.co.Snapshot().Phase == model.PhaseAwaitingRating
	}, "host never learned about the download")

	require.NoError(t, pr.cust.co.SubmitRating(ctx))
	waitRun(t, pr.host)
	waitRun(t, pr.cust)

	require.Equal(t, model.PhaseCompleted, pr.host.co.Snapshot().Phase)
	require.Equal(t, model.PhaseCompleted, pr.cust.co.Snapshot().Phase)

	charges, settles := pr.payments.counts()
	require.Equal(t, 1, charges)
	require.Equal(t, 1, settles)

	rec, err := pr.host.approvals.Get(context.Background(), "sess-42")
	require.NoError(t, err)
	require.Equal(t, model.ApprovalCompleted, rec.Status)
	require.True(t, rec.TotalAmount.Equal(wantTotal))
}

func TestPaymentDeclinedKeepsPhase(t *testing.T) {
	pr := startPair(t)
	ctx := context.Background()
	pr.payments.mu.Lock()
	pr.payments.failCharge = true
	pr.payments.mu.Unlock()

	require.NoError(t, pr.host.co.RequestEndSession(ctx))
	eventually(t, func() bool {
		return pr.cust.co.Snapshot().Phase == model.PhaseEndRequested
	}, "end request never arrived")
	require.NoError(t, pr.cust.co.AcceptEnd(ctx))

	err := pr.cust.co.Pay(ctx)
	require.ErrorIs(t, err, ports.ErrPaymentDeclined)
	require.Equal(t, model.PhaseAwaitingPayment, pr.cust.co.Snapshot().Phase)
	require.Equal(t, model.PhaseEndRequested, pr.host.co.Snapshot().Phase)

	// A retry after the processor recovers succeeds.
	pr.payments.mu.Lock()
	pr.payments.failCharge = false
	pr.payments.mu.Unlock()
	require.NoError(t, pr.cust.co.Pay(ctx))
	eventually(t, func() bool {
		return pr.host.co.Snapshot().Phase == model.PhaseAwaitingFileUpload
	}, "retried payment did not advance the host")
}

func TestScreenCaptureDeniedRollsBack(t *testing.T) {
	pr := startPair(t)
	ctx := context.Background()

	pr.host.media.mu.Lock()
	pr.host.media.failScreen = true
	pr.host.media.mu.Unlock()

	err := pr.host.co.StartPresenting(ctx)
	require.ErrorIs(t, err, ports.ErrPermissionDenied)

	s := pr.host.co.Snapshot()
	require.Equal(t, model.PresentationNone, s.Presentation)
	require.Equal(t, model.ClockRunning, s.ClockState)

	// The slot is free again after the rollback.
	pr.host.media.mu.Lock()
	pr.host.media.failScreen = false
	pr.host.media.mu.Unlock()
	require.NoError(t, pr.host.co.StartPresenting(ctx))
}

func TestPeerDisconnectAbandonsBothSides(t *testing.T) {
	pr := startPair(t)

	pr.host.media.events <- ports.MediaEvent{Kind: ports.RemoteLeft, User: "Casey"}

	waitRun(t, pr.host)
	require.Equal(t, model.PhaseAbandoned, pr.host.co.Snapshot().Phase)

	// The teardown broadcast reaches the participant.
	waitRun(t, pr.cust)
	require.Equal(t, model.PhaseAbandoned, pr.cust.co.Snapshot().Phase)
}

func TestWrongRoleIntentsRejected(t *testing.T) {
	pr := startPair(t)
	ctx := context.Background()

	require.ErrorIs(t, pr.cust.co.RequestEndSession(ctx), ErrWrongRole)
	require.ErrorIs(t, pr.cust.co.ProposeRate(ctx, decimal.NewFromInt(9)), ErrWrongRole)
	require.ErrorIs(t, pr.host.co.Pay(ctx), ErrWrongRole)
	require.ErrorIs(t, pr.host.co.AcceptEnd(ctx), ErrWrongRole)
	require.ErrorIs(t, pr.host.co.SetRate(ctx, decimal.NewFromInt(9)), ErrWrongRole)
}

func TestEndRequestRequiresActivePhase(t *testing.T) {
	pr := startPair(t)
	ctx := context.Background()

	require.NoError(t, pr.host.co.RequestEndSession(ctx))

	var phase *PhaseError
	err := pr.host.co.RequestEndSession(ctx)
	require.ErrorAs(t, err, &phase)
	require.Equal(t, model.PhaseEndRequested, phase.Phase)
}

func TestParticipantDirectRateChange(t *testing.T) {
	pr := startPair(t)
	ctx := context.Background()

	v := decimal.RequireFromString("7.25")
	require.NoError(t, pr.cust.co.SetRate(ctx, v))
	eventually(t, func() bool {
		return pr.host.co.Snapshot().RatePerMinute.Equal(v)
	}, "host never adopted the direct rate change")
}
