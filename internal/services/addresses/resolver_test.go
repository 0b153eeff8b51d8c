package addresses

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artem12345-png/tkfulfill/internal/models"
)

type fakeCleaner struct {
	addr  models.NormalizedAddress
	err   error
	calls int
}

func (f *fakeCleaner) Clean(ctx context.Context, query string) (models.NormalizedAddress, error) {
	f.calls++
	return f.addr, f.err
}

type memStore struct {
	data map[string]json.RawMessage
}

func newMemStore() *memStore { return &memStore{data: map[string]json.RawMessage{}} }

func (m *memStore) GetCachedAddress(ctx context.Context, kind, query string, ttl time.Duration) (json.RawMessage, bool, error) {
	p, ok := m.data[kind+"|"+query]
	return p, ok, nil
}

func (m *memStore) PutCachedAddress(ctx context.Context, kind, query string, payload json.RawMessage) error {
	m.data[kind+"|"+query] = payload
	return nil
}

func TestResolver_CacheMissThenHit(t *testing.T) {
	cl := &fakeCleaner{addr: models.NormalizedAddress{Result: "г Москва", City: "Москва"}}
	st := newMemStore()
	r := NewResolver(cl, st, 0, nil)

	a1 := r.Resolve(context.Background(), KindAddress, "москва")
	require.Equal(t, "Москва", a1.City)
	require.Equal(t, 1, cl.calls)

	// повторный запрос идёт из кэша
	a2 := r.Resolve(context.Background(), KindAddress, "москва")
	require.Equal(t, "Москва", a2.City)
	require.Equal(t, 1, cl.calls)
}

func TestResolver_KindsCachedSeparately(t *testing.T) {
	cl := &fakeCleaner{addr: models.NormalizedAddress{Result: "г Москва", City: "Москва"}}
	st := newMemStore()
	r := NewResolver(cl, st, 0, nil)

	_ = r.Resolve(context.Background(), KindAddress, "москва")
	_ = r.Resolve(context.Background(), KindDelivery, "москва")
	require.Equal(t, 2, cl.calls)
	require.Contains(t, st.data, "address|москва")
	require.Contains(t, st.data, "delivery|москва")
}

func TestResolver_EmptyQuery(t *testing.T) {
	cl := &fakeCleaner{}
	r := NewResolver(cl, newMemStore(), 0, nil)

	addr := r.Resolve(context.Background(), KindAddress, "   ")
	require.True(t, addr.IsEmpty())
	require.Zero(t, cl.calls)
}

func TestResolver_CleanerFailureIsNotFatal(t *testing.T) {
	cl := &fakeCleaner{err: errors.New("dadata недоступна")}
	r := NewResolver(cl, newMemStore(), 0, nil)

	addr := r.Resolve(context.Background(), KindAddress, "пермь ленина 1")
	require.True(t, addr.IsEmpty())
}

func TestResolver_EmptyAnswerNotCached(t *testing.T) {
	cl := &fakeCleaner{addr: models.NormalizedAddress{}}
	st := newMemStore()
	r := NewResolver(cl, st, 0, nil)

	_ = r.Resolve(context.Background(), KindAddress, "мусор")
	_ = r.Resolve(context.Background(), KindAddress, "мусор")
	require.Equal(t, 2, cl.calls)
	require.Empty(t, st.data)
}
