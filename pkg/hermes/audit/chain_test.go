package audit

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainManager_ComputeHash(t *testing.T) {
	cm := NewChainManager([]byte("secret"))
	event := &Event{
		ID:        "1",
		Timestamp: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		Action:    ActionEvaluate,
		Result:    ResultSuccess,
		Samples:   3,
	}

	hash1, err := cm.ComputeHash(event)
	require.NoError(t, err)
	assert.NotEmpty(t, hash1)

	hash2, err := cm.ComputeHash(event)
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)

	event.Result = ResultGatesFailed
	hash3, err := cm.ComputeHash(event)
	require.NoError(t, err)
	assert.NotEqual(t, hash1, hash3)

	other, err := NewChainManager([]byte("other")).ComputeHash(event)
	require.NoError(t, err)
	assert.NotEqual(t, hash3, other)
}

func TestChainManager_VerifyChain(t *testing.T) {
	cm := NewChainManager([]byte("secret"))

	event1 := Event{
		ID:        "1",
		Timestamp: time.Now(),
		Action:    ActionEvaluate,
	}
	hash1, err := cm.ComputeHash(&event1)
	require.NoError(t, err)
	event1.Hash = hash1

	event2 := Event{
		ID:           "2",
		Timestamp:    time.Now(),
		Action:       ActionGates,
		PreviousHash: hash1,
	}
	hash2, err := cm.ComputeHash(&event2)
	require.NoError(t, err)
	event2.Hash = hash2

	events := []Event{event1, event2}
	assert.NoError(t, cm.VerifyChain(events))

	events[0].Hash = "tampered"
	err = cm.VerifyChain(events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")

	// A re-hashed event with a forged link still breaks the chain.
	events[0].Hash = hash1
	events[1].PreviousHash = "tampered"
	events[1].Hash, _ = cm.ComputeHash(&events[1])

	err = cm.VerifyChain(events)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain broken")
}

func TestTamperEvidentStore_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	cm := NewChainManager([]byte("secret"))
	store := NewTamperEvidentStore(NewLogStore(&buf), cm, "")

	for _, r := range []Result{ResultSuccess, ResultGatesFailed, ResultError} {
		require.NoError(t, store.Write(context.Background(), &Event{
			Action:   ActionEvaluate,
			Result:   r,
			Metadata: map[string]string{"reference": "Random Walk"},
		}))
	}

	events, err := ReadEvents(&buf)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.NotEmpty(t, events[0].ID)
	assert.Empty(t, events[0].PreviousHash)
	assert.Equal(t, events[1].Hash, events[2].PreviousHash)
	assert.NoError(t, cm.VerifyChain(events))
}

func TestOpenLedger_ResumesAndRejectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	key := []byte("secret")

	ledger, closer, err := OpenLedger(path, key)
	require.NoError(t, err)
	require.NoError(t, ledger.Write(context.Background(), &Event{Action: ActionEvaluate, Result: ResultSuccess}))
	require.NoError(t, closer.Close())

	ledger, closer, err = OpenLedger(path, key)
	require.NoError(t, err)
	require.NoError(t, ledger.Write(context.Background(), &Event{Action: ActionEvaluate, Result: ResultError}))
	require.NoError(t, closer.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	events, err := ReadEvents(f)
	f.Close()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, events[0].Hash, events[1].PreviousHash)

	_, _, err = OpenLedger(path, []byte("wrong"))
	assert.Error(t, err)
}

func TestDigest(t *testing.T) {
	a, err := Digest(map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)
	b, err := Digest(map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
}
