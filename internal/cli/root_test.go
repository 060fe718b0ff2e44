package cli

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservations/internal/domain/queue"
	"reservations/internal/domain/reservation"
	"reservations/internal/infrastructure/sqlite"
	"reservations/internal/usecase"
)

type staticInspector queue.Depths

func (s staticInspector) Depths(context.Context) (queue.Depths, error) { return queue.Depths(s), nil }

type testBackend struct {
	db  *sql.DB
	err error
}

func (b *testBackend) Ledger(context.Context) (usecase.LedgerReader, error) {
	return sqlite.NewLedgerRepository(b.db), nil
}

func (b *testBackend) Stock(context.Context) (usecase.StockReader, error) {
	return sqlite.NewInventoryRepository(b.db), nil
}

func (b *testBackend) Inspector() (usecase.DepthInspector, error) {
	if b.err != nil {
		return nil, b.err
	}
	return staticInspector{Transport: "kafka", Live: 5, DeadLetter: 1}, nil
}

func (b *testBackend) Close() {}

func newBackend(t *testing.T) *testBackend {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.NewClient(ctx, sqlite.Config{Path: filepath.Join(t.TempDir(), "inventory.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, sqlite.NewInventoryRepository(db).Seed(ctx, map[string]int{"pizza": 100, "salad": 99}))
	_, err = sqlite.NewLedgerRepository(db).Append(ctx, reservation.LedgerRecord{
		EventID: "ORD-1", Item: "salad", Quantity: 1, Outcome: reservation.OutcomeApplied,
		ReservationID: "RES-ORD-1", Remaining: 99, CommittedAt: time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return &testBackend{db: db}
}

func execute(t *testing.T, b Backend, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(func(string) (Backend, error) { return b, nil })
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand(nil)
	for _, name := range []string{"ledger", "stock", "queues"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestLedgerCommand(t *testing.T) {
	b := newBackend(t)

	out, err := execute(t, b, "ledger")
	require.NoError(t, err)
	assert.Contains(t, out, "records")
	assert.Contains(t, out, "1")

	out, err = execute(t, b, "ledger", "ORD-1")
	require.NoError(t, err)
	assert.Contains(t, out, "RES-ORD-1")
	assert.Contains(t, out, "2026-10-18T10:00:00Z")

	out, err = execute(t, b, "ledger", "ORD-1", "--format", "json")
	require.NoError(t, err)
	var rec reservation.LedgerRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, reservation.OutcomeApplied, rec.Outcome)

	_, err = execute(t, b, "ledger", "ORD-404")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestStockCommand(t *testing.T) {
	b := newBackend(t)

	out, err := execute(t, b, "stock")
	require.NoError(t, err)
	assert.Contains(t, out, "pizza")
	assert.Contains(t, out, "99")

	out, err = execute(t, b, "stock", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"item":"pizza","quantity_available":100},{"item":"salad","quantity_available":99}]`, out)

	_, err = execute(t, b, "stock", "caviar")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestQueuesCommand(t *testing.T) {
	b := newBackend(t)

	out, err := execute(t, b, "queues", "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"transport":"kafka","live":5,"in_flight":0,"dead_letter":1}`, out)

	b.err = errors.New("no brokers")
	_, err = execute(t, b, "queues")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, newBackend(t), "stock", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
