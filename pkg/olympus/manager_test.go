package olympus

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minos-eval/minos/pkg/evaluator"
	"github.com/minos-eval/minos/pkg/hermes"
	"github.com/minos-eval/minos/pkg/hermes/audit"
	"github.com/minos-eval/minos/pkg/ingest"
	"github.com/minos-eval/minos/pkg/themis"
)

func testDataset(t *testing.T, n int) *ingest.Dataset {
	t.Helper()
	ds, err := ingest.ObservationsToDataset(testObservations(n), nil)
	require.NoError(t, err)
	return ds
}

func testEngine() *evaluator.Engine {
	opts := evaluator.DefaultOptions()
	opts.RollingWindow = 5
	opts.ErrorWindow = 5
	return evaluator.NewEngine(opts, nil, nil)
}

func TestManager_RunWithoutGates(t *testing.T) {
	m := &Manager{Engine: testEngine()}
	out, err := m.Run(context.Background(), RunRequest{Data: testDataset(t, 30)})
	require.NoError(t, err)
	assert.True(t, out.Passed)
	assert.Empty(t, out.Gates)
	assert.Equal(t, 30, out.Report.Samples)
}

func TestManager_RunOptionsOverride(t *testing.T) {
	m := &Manager{Engine: testEngine()}
	opts := m.Engine.Options()
	opts.RollingWindow = 7

	out, err := m.Run(context.Background(), RunRequest{Data: testDataset(t, 30), Options: &opts})
	require.NoError(t, err)
	assert.Equal(t, 7, out.Report.Options.RollingWindow)
	assert.Equal(t, 5, m.Engine.Options().RollingWindow, "engine options are left alone")
}

func TestManager_RunFailingGate(t *testing.T) {
	gates, err := themis.NewGateEvaluator([]themis.Gate{{Name: "tiny_error", Expression: "mae < 0.001"}})
	require.NoError(t, err)

	m := &Manager{Engine: testEngine(), Gates: gates}
	out, err := m.Run(context.Background(), RunRequest{Data: testDataset(t, 30)})
	require.NoError(t, err)
	assert.False(t, out.Passed)
	require.Len(t, out.Gates, 1)
	assert.False(t, out.Gates[0].Passed)
}

func TestManager_RunRecordsLedger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	key := []byte("ledger-key")
	ledger, closer, err := audit.OpenLedger(path, key)
	require.NoError(t, err)

	gates, err := themis.NewGateEvaluator(themis.DefaultGates())
	require.NoError(t, err)
	m := &Manager{Engine: testEngine(), Gates: gates, Ledger: ledger}

	ctx := hermes.WithRequestID(context.Background(), "req-7")
	first, err := m.Run(ctx, RunRequest{Data: testDataset(t, 30), Source: "api", Dataset: "energy"})
	require.NoError(t, err)
	_, err = m.Run(ctx, RunRequest{Data: testDataset(t, 12), Source: "api", Dataset: "energy"})
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	events, err := audit.ReadEvents(f)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.NoError(t, audit.NewChainManager(key).VerifyChain(events))
	assert.Equal(t, first.Report.RunID, events[0].RunID)
	assert.Equal(t, audit.ActionEvaluate, events[0].Action)
	assert.Equal(t, audit.ResultSuccess, events[0].Result)
	assert.Equal(t, "energy", events[0].Dataset)
	assert.Equal(t, "req-7", events[0].RequestID)
	assert.Equal(t, 30, events[0].Samples)
	assert.Equal(t, "true", events[0].Metadata["gate.coverage"])

	digest, err := audit.Digest(first.Report)
	require.NoError(t, err)
	assert.Equal(t, digest, events[0].ReportDigest)
}

type failingStore struct{}

func (failingStore) Write(ctx context.Context, event *audit.Event) error {
	return errors.New("disk full")
}

func TestManager_LedgerFailureKeepsOutcome(t *testing.T) {
	m := &Manager{Engine: testEngine(), Ledger: failingStore{}}
	out, err := m.Run(context.Background(), RunRequest{Data: testDataset(t, 10)})
	assert.Error(t, err)
	require.NotNil(t, out)
	assert.Equal(t, 10, out.Report.Samples)
}

func TestManager_RunRequiresData(t *testing.T) {
	m := &Manager{Engine: testEngine()}
	_, err := m.Run(context.Background(), RunRequest{})
	assert.Error(t, err)
}
