package negotiate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/huddleworks/livesession/internal/session/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLastProposalWins(t *testing.T) {
	e := NewEngine()

	e.Receive(KindRate, model.Proposal{Value: dec("5"), ProposedBy: "mira"})
	e.Receive(KindRate, model.Proposal{Value: dec("8"), ProposedBy: "mira"})

	p, ok := e.Pending(KindRate)
	require.True(t, ok)
	require.True(t, p.Value.Equal(dec("8")))
}

func TestProposalsAreScopedByKind(t *testing.T) {
	e := NewEngine()

	e.Receive(KindRate, model.Proposal{Value: dec("5")})
	e.Receive(KindMultiplier, model.Proposal{Value: dec("2"), FileFormat: "AI"})

	_, ok := e.Pending(KindRate)
	require.True(t, ok)
	p, ok := e.Pending(KindMultiplier)
	require.True(t, ok)
	require.Equal(t, "AI", p.FileFormat)
}

func TestAcceptResolvesProposal(t *testing.T) {
	e := NewEngine()
	e.Receive(KindMultiplier, model.Proposal{Value: dec("2")})

	p, err := e.Accept(KindMultiplier)
	require.NoError(t, err)
	require.True(t, p.Value.Equal(dec("2")))

	_, ok := e.Pending(KindMultiplier)
	require.False(t, ok)

	_, err = e.Accept(KindMultiplier)
	require.Error(t, err)
}

func TestDeclineResolvesWithoutValue(t *testing.T) {
	e := NewEngine()
	e.Receive(KindRate, model.Proposal{Value: dec("9")})

	_, err := e.Decline(KindRate)
	require.NoError(t, err)

	_, ok := e.Pending(KindRate)
	require.False(t, ok)

	_, err = e.Decline(KindRate)
	require.Error(t, err)
}

func TestValidateValue(t *testing.T) {
	require.NoError(t, ValidateValue(KindRate, dec("0.5")))
	require.Error(t, ValidateValue(KindRate, dec("0")))
	require.Error(t, ValidateValue(KindRate, dec("-1")))

	require.NoError(t, ValidateValue(KindMultiplier, dec("1")))
	require.NoError(t, ValidateValue(KindMultiplier, dec("2.5")))
	require.Error(t, ValidateValue(KindMultiplier, dec("0.5")))
}
