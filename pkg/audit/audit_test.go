package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2024, time.May, 20, 12, 0, 0, 0, time.UTC)

func seededLog(t *testing.T, n int) *Log {
	t.Helper()
	log := NewLog(fixedClock{now: testNow})
	for i := 0; i < n; i++ {
		_, err := log.Record(context.Background(), "lawyer-7", EventTransition, "plan.approve", "plan-1", map[string]any{"seq": i})
		require.NoError(t, err)
	}
	return log
}

func TestRecord_ChainsEvents(t *testing.T) {
	log := seededLog(t, 3)
	events := log.Events()
	require.Len(t, events, 3)

	assert.Equal(t, genesisHash, events[0].PrevHash)
	assert.Equal(t, events[0].Hash, events[1].PrevHash)
	assert.Equal(t, events[1].Hash, events[2].PrevHash)
	for i, ev := range events {
		assert.Equal(t, i, ev.Seq)
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, testNow, ev.Timestamp)
	}
}

func TestVerify_CleanChain(t *testing.T) {
	assert.NoError(t, seededLog(t, 5).Verify())
	assert.NoError(t, NewLog(nil).Verify(), "empty chain verifies")
}

func TestVerify_DetectsContentTampering(t *testing.T) {
	log := seededLog(t, 3)
	log.events[1].Action = "plan.cancel"

	err := log.Verify()
	require.ErrorIs(t, err, ErrChainBroken)
	assert.Contains(t, err.Error(), "event 1")
}

func TestVerify_DetectsRelinking(t *testing.T) {
	log := seededLog(t, 3)
	log.events[2].PrevHash = log.events[0].Hash

	assert.ErrorIs(t, log.Verify(), ErrChainBroken)
}

func TestEvents_ReturnsCopy(t *testing.T) {
	log := seededLog(t, 1)
	events := log.Events()
	events[0].Action = "mutated"
	assert.NoError(t, log.Verify())
}

func TestExport_CanonicalJSON(t *testing.T) {
	log := seededLog(t, 2)
	raw, err := log.Export()
	require.NoError(t, err)

	var decoded []Event
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, log.Events()[0].Hash, decoded[0].Hash)
}

func TestHashEvent_IgnoresOwnHash(t *testing.T) {
	ev := Event{ID: "x", ActorID: "a", Type: EventDeadline, Action: "compute", Timestamp: testNow, PrevHash: genesisHash}
	h1, err := hashEvent(ev)
	require.NoError(t, err)
	ev.Hash = h1
	h2, err := hashEvent(ev)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
