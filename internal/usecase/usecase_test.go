package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reservations/internal/domain/inventory"
	"reservations/internal/domain/queue"
	"reservations/internal/domain/reservation"
	infraredis "reservations/internal/infrastructure/redis"
)

type mockStock struct {
	mock.Mock
}

func (m *mockStock) Get(ctx context.Context, item string) (*inventory.Stock, error) {
	args := m.Called(ctx, item)
	s, _ := args.Get(0).(*inventory.Stock)
	return s, args.Error(1)
}

func (m *mockStock) List(ctx context.Context) ([]*inventory.Stock, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).([]*inventory.Stock)
	return s, args.Error(1)
}

func TestGetStock_CachesForTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := infraredis.NewClient(ctx, infraredis.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	repo := &mockStock{}
	repo.On("Get", mock.Anything, "salad").Return(&inventory.Stock{Item: "salad", QuantityAvailable: 99}, nil).Twice()

	uc := NewGetStock(infraredis.NewStockCache(client, time.Second), repo)

	for i := 0; i < 3; i++ {
		s, err := uc.Execute(ctx, "salad")
		require.NoError(t, err)
		assert.Equal(t, 99, s.QuantityAvailable)
	}
	repo.AssertNumberOfCalls(t, "Get", 1)

	mr.FastForward(2 * time.Second)
	_, err = uc.Execute(ctx, "salad")
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "Get", 2)
}

func TestGetStock_WithoutCache(t *testing.T) {
	repo := &mockStock{}
	repo.On("Get", mock.Anything, "caviar").Return(nil, inventory.ErrItemNotFound)

	_, err := NewGetStock(nil, repo).Execute(context.Background(), "caviar")
	assert.ErrorIs(t, err, inventory.ErrItemNotFound)
}

func TestGetStock_CacheDownFallsBackToStore(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()
	client, err := infraredis.NewClient(ctx, infraredis.Config{Addr: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()
	mr.Close()

	repo := &mockStock{}
	repo.On("Get", mock.Anything, "taco").Return(&inventory.Stock{Item: "taco", QuantityAvailable: 7}, nil)

	s, err := NewGetStock(infraredis.NewStockCache(client, time.Second), repo).Execute(ctx, "taco")
	require.NoError(t, err)
	assert.Equal(t, 7, s.QuantityAvailable)
}

func TestListStock(t *testing.T) {
	repo := &mockStock{}
	repo.On("List", mock.Anything).Return([]*inventory.Stock{{Item: "burger", QuantityAvailable: 1}}, nil)

	items, err := NewListStock(repo).Execute(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

type fakeLedger struct {
	rec *reservation.LedgerRecord
	n   int64
}

func (f fakeLedger) Get(_ context.Context, eventID string) (*reservation.LedgerRecord, error) {
	if f.rec == nil || f.rec.EventID != eventID {
		return nil, reservation.ErrRecordNotFound
	}
	return f.rec, nil
}

func (f fakeLedger) Count(context.Context) (int64, error) { return f.n, nil }

func TestGetLedger(t *testing.T) {
	uc := NewGetLedger(fakeLedger{rec: &reservation.LedgerRecord{EventID: "ORD-1"}, n: 1})

	rec, err := uc.Record(context.Background(), "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", rec.EventID)

	_, err = uc.Record(context.Background(), "ORD-2")
	assert.ErrorIs(t, err, reservation.ErrRecordNotFound)

	sum, err := uc.Summary(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, sum.Records)
}

type inspectorFunc func(ctx context.Context) (queue.Depths, error)

func (f inspectorFunc) Depths(ctx context.Context) (queue.Depths, error) { return f(ctx) }

func TestGetQueues(t *testing.T) {
	uc := NewGetQueues(inspectorFunc(func(context.Context) (queue.Depths, error) {
		return queue.Depths{Transport: "kafka", Live: 3, DeadLetter: 1}, nil
	}))
	d, err := uc.Execute(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 3, d.Live)

	broken := NewGetQueues(inspectorFunc(func(context.Context) (queue.Depths, error) {
		return queue.Depths{}, errors.New("broker unreachable")
	}))
	_, err = broken.Execute(context.Background())
	assert.Error(t, err)
}
