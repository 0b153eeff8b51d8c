package statuspoll

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artem12345-png/tkfulfill/internal/broker/messages"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier/fake"
	"github.com/artem12345-png/tkfulfill/internal/models"
)

type fakeRepo struct {
	apps map[string][]models.StatusApplication
}

func (r *fakeRepo) ListOpenApplications(ctx context.Context, carrierCode string, finished []string) ([]models.StatusApplication, error) {
	return r.apps[carrierCode], nil
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []messages.StatusChanged
}

func (p *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	var msg messages.StatusChanged
	if err := json.Unmarshal(value, &msg); err != nil {
		return err
	}
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()
	return nil
}

func (p *fakeProducer) published() []messages.StatusChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]messages.StatusChanged, len(p.messages))
	copy(out, p.messages)
	return out
}

func TestPoller_PublishesOnlyChanges(t *testing.T) {
	fc := fake.New("pek")
	fc.StatusByNum["PK-1"] = "Груз принят к перевозке"
	fc.StatusByNum["PK-2"] = "Оформлено"

	repo := &fakeRepo{apps: map[string][]models.StatusApplication{
		"pek": {
			{OrderID: 1, TkNum: "PK-1", Status: "Оформлено"},
			{OrderID: 2, TkNum: "PK-2", Status: "Оформлено"}, // без изменений
		},
	}}
	prod := &fakeProducer{}

	p := New(repo, map[string]carrier.Client{"pek": fc}, prod, nil, "tk.status_changed", nil)
	p.RunOnce(context.Background())

	msgs := prod.published()
	require.Len(t, msgs, 1)
	require.Equal(t, int64(1), msgs[0].OrderID)
	require.Equal(t, "Груз принят к перевозке", msgs[0].Status)
	require.Equal(t, "Оформлено", msgs[0].PrevStatus)
	require.Equal(t, "pek", msgs[0].CarrierCode)
	require.Equal(t, "PK-1", msgs[0].TkNum)
	require.False(t, msgs[0].Test)

	st := p.Stats()
	require.Equal(t, int64(2), st.TotalChecked)
	require.Equal(t, int64(1), st.TotalChanged)
	require.Equal(t, int64(0), st.TotalErrors)
}

func TestPoller_TestMode(t *testing.T) {
	fc := fake.New("kit")
	fc.StatusByNum["KT-1"] = "Новый заказ"

	repo := &fakeRepo{apps: map[string][]models.StatusApplication{
		"kit": {{OrderID: 7, TkNum: "KT-1", Status: "Новый заказ"}},
	}}
	prod := &fakeProducer{}

	p := New(repo, map[string]carrier.Client{"kit": fc}, prod, nil, "tk.status_changed", nil).
		WithTestMode(true)
	p.RunOnce(context.Background())

	// статус не менялся, но тестовый прогон публикует всё,
	// а событие помечает test=true — персиста и СМС не будет
	msgs := prod.published()
	require.Len(t, msgs, 1)
	require.True(t, msgs[0].Test)
}

func TestPoller_SkipsCarrierWithoutClient(t *testing.T) {
	repo := &fakeRepo{apps: map[string][]models.StatusApplication{
		"pek": {{OrderID: 1, TkNum: "PK-1", Status: ""}},
	}}
	prod := &fakeProducer{}

	p := New(repo, map[string]carrier.Client{}, prod, nil, "tk.status_changed", nil)
	p.RunOnce(context.Background())

	require.Empty(t, prod.published())
	require.Equal(t, int64(0), p.Stats().TotalChecked)
}

func TestPoller_Window(t *testing.T) {
	p := New(&fakeRepo{}, nil, &fakeProducer{}, nil, "t", nil).
		WithSettings(time.Minute, 9, 21, 0)

	require.True(t, p.inWindow(time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)))
	require.False(t, p.inWindow(time.Date(2026, 2, 2, 3, 0, 0, 0, time.UTC)))
	require.False(t, p.inWindow(time.Date(2026, 2, 2, 21, 0, 0, 0, time.UTC)))

	// нулевое окно — опрос круглосуточно
	p2 := New(&fakeRepo{}, nil, &fakeProducer{}, nil, "t", nil)
	require.True(t, p2.inWindow(time.Date(2026, 2, 2, 3, 0, 0, 0, time.UTC)))
}
