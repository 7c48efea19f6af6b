package docstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_HappyPath(t *testing.T) {
	assert.True(t, CanTransition(StatusIngested, StatusExtracting))
	assert.True(t, CanTransition(StatusExtracting, StatusEmbedding))
	assert.True(t, CanTransition(StatusEmbedding, StatusGraphSync))
	assert.True(t, CanTransition(StatusGraphSync, StatusReady))
}

func TestCanTransition_FailureFromAnyNonTerminalState(t *testing.T) {
	assert.True(t, CanTransition(StatusIngested, StatusFailed))
	assert.True(t, CanTransition(StatusExtracting, StatusFailed))
	assert.True(t, CanTransition(StatusEmbedding, StatusFailed))
	assert.True(t, CanTransition(StatusGraphSync, StatusFailed))
}

func TestCanTransition_RejectsSkipsAndTerminalMoves(t *testing.T) {
	assert.False(t, CanTransition(StatusIngested, StatusEmbedding))
	assert.False(t, CanTransition(StatusIngested, StatusReady))
	assert.False(t, CanTransition(StatusReady, StatusFailed))
	assert.False(t, CanTransition(StatusFailed, StatusIngested))
}

func TestErrInvalidTransition_Message(t *testing.T) {
	err := &ErrInvalidTransition{DocumentID: "doc:1", From: StatusIngested, To: StatusReady}
	assert.Contains(t, err.Error(), "doc:1")
	assert.Contains(t, err.Error(), string(StatusIngested))
	assert.Contains(t, err.Error(), string(StatusReady))
}

func TestStateChangeCodec_RoundTrips(t *testing.T) {
	in := StateChange{TenantID: "t1", DocumentID: "doc:1", From: StatusIngested, To: StatusExtracting, Reason: "started"}
	payload, err := marshalStateChange(in)
	assert.NoError(t, err)

	out, err := unmarshalStateChange(payload)
	assert.NoError(t, err)
	assert.Equal(t, in.TenantID, out.TenantID)
	assert.Equal(t, in.DocumentID, out.DocumentID)
	assert.Equal(t, in.From, out.From)
	assert.Equal(t, in.To, out.To)
	assert.Equal(t, in.Reason, out.Reason)
}
