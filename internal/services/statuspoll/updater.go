// Package statuspoll опрашивает ТК по открытым заявкам и публикует
// события смены статуса.
package statuspoll

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artem12345-png/tkfulfill/internal/broker/messages"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier"
	"github.com/artem12345-png/tkfulfill/internal/models"
	"github.com/artem12345-png/tkfulfill/internal/services/fulfill"
)

type Repository interface {
	ListOpenApplications(ctx context.Context, carrierCode string, finished []string) ([]models.StatusApplication, error)
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

var (
	checkedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tkfulfill_status_checked_total",
		Help: "Заявки, по которым запрошен статус у ТК.",
	}, []string{"carrier"})
	changedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tkfulfill_status_changed_total",
		Help: "Опубликованные события смены статуса.",
	}, []string{"carrier"})
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tkfulfill_status_errors_total",
		Help: "Ошибки опроса статусов.",
	}, []string{"carrier"})
)

// Poller обходит все включённые ТК: открытые заявки пачками уходят
// в API ТК, изменившиеся статусы публикуются в kafka.
type Poller struct {
	repo     Repository
	clients  map[string]carrier.Client
	producer Producer
	rl       RateLimiter

	topic string

	cycle    time.Duration
	fromHour int // окно опроса по часам, [from, to)
	toHour   int
	rlPerMin int64
	// в тестовом режиме событие публикуется и без смены статуса
	// и помечается test=true, чтобы потребитель не слал СМС
	testMode bool

	triggerCh chan struct{}

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalChecked        atomic.Int64
	totalChanged        atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string

	log *slog.Logger
}

func New(repo Repository, clients map[string]carrier.Client, producer Producer,
	rl RateLimiter, topic string, log *slog.Logger) *Poller {
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		repo:              repo,
		clients:           clients,
		producer:          producer,
		rl:                rl,
		topic:             topic,
		cycle:             10 * time.Minute,
		rlPerMin:          60,
		triggerCh:         make(chan struct{}, 1),
		startedAtUnixNano: time.Now().UTC().UnixNano(),
		log:               log,
	}
}

func (p *Poller) WithSettings(cycle time.Duration, fromHour, toHour int, rlPerMin int64) *Poller {
	if cycle > 0 {
		p.cycle = cycle
	}
	p.fromHour = fromHour
	p.toHour = toHour
	if rlPerMin > 0 {
		p.rlPerMin = rlPerMin
	}
	return p
}

func (p *Poller) WithTestMode(on bool) *Poller {
	p.testMode = on
	return p
}

// Trigger запускает цикл немедленно, минуя окно по часам (ручной запуск).
func (p *Poller) Trigger() {
	p.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt     time.Time  `json:"startedAt"`
	LastCycleAt   *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
	TotalChecked  int64      `json:"totalChecked"`
	TotalChanged  int64      `json:"totalChanged"`
	TotalErrors   int64      `json:"totalErrors"`
	InFlight      int64      `json:"inFlight"`
	LastError     string     `json:"lastError,omitempty"`
}

func (p *Poller) Stats() Stats {
	st := Stats{
		StartedAt:    time.Unix(0, p.startedAtUnixNano).UTC(),
		TotalChecked: p.totalChecked.Load(),
		TotalChanged: p.totalChanged.Load(),
		TotalErrors:  p.totalErrors.Load(),
		InFlight:     p.inFlight.Load(),
	}
	if n := p.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := p.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	p.lastErrorMu.Lock()
	st.LastError = p.lastError
	p.lastErrorMu.Unlock()
	return st
}

func (p *Poller) Run(ctx context.Context) error {
	t := time.NewTicker(p.cycle)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if !p.inWindow(time.Now()) {
				continue
			}
			p.RunOnce(ctx)
		case <-p.triggerCh:
			p.RunOnce(ctx)
		}
	}
}

// inWindow — ТК обновляют статусы людьми в рабочее время; ночью их
// дёргать бессмысленно. Нулевое окно выключает ограничение.
func (p *Poller) inWindow(now time.Time) bool {
	if p.fromHour == 0 && p.toHour == 0 {
		return true
	}
	h := now.Hour()
	return h >= p.fromHour && h < p.toHour
}

// RunOnce обходит все ТК последовательно; внутри одной ТК пачки
// обрабатываются с её собственной конкурентностью.
func (p *Poller) RunOnce(ctx context.Context) {
	p.lastCycleUnixNano.Store(time.Now().UTC().UnixNano())

	for code, spec := range fulfill.Specs {
		if _, ok := p.clients[code]; !ok {
			continue
		}
		if err := p.pollCarrier(ctx, spec); err != nil {
			p.totalErrors.Add(1)
			errorsTotal.WithLabelValues(code).Inc()
			p.lastErrorMu.Lock()
			p.lastError = err.Error()
			p.lastErrorMu.Unlock()
			p.log.Error("опрос статусов ТК", "carrier", code, "err", err)
		}
	}
}

func (p *Poller) pollCarrier(ctx context.Context, spec *fulfill.Spec) error {
	apps, err := p.repo.ListOpenApplications(ctx, spec.Code, spec.FinishedStatuses)
	if err != nil {
		return errors.Wrap(err, "list open applications")
	}
	if len(apps) == 0 {
		return nil
	}

	batchSize := spec.StatusBatchSize
	if batchSize <= 0 {
		batchSize = 1
	}
	concurrency := spec.StatusConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for start := 0; start < len(apps); start += batchSize {
		end := start + batchSize
		if end > len(apps) {
			end = len(apps)
		}
		batch := apps[start:end]

		sem <- struct{}{}
		wg.Add(1)
		p.inFlight.Add(1)
		go func() {
			defer func() {
				p.inFlight.Add(-1)
				<-sem
				wg.Done()
			}()
			if err := p.processBatch(ctx, spec, batch); err != nil {
				p.totalErrors.Add(1)
				errorsTotal.WithLabelValues(spec.Code).Inc()
				p.lastErrorMu.Lock()
				p.lastError = err.Error()
				p.lastErrorMu.Unlock()
				p.log.Error("обработка пачки статусов", "carrier", spec.Code, "err", err)
			}
		}()
	}
	wg.Wait()
	return nil
}

func (p *Poller) processBatch(ctx context.Context, spec *fulfill.Spec, batch []models.StatusApplication) error {
	now := time.Now().UTC()

	if p.rl != nil && p.rlPerMin > 0 {
		minuteKey := fmt.Sprintf("rl:status:%s:%s", spec.Code, now.Format("200601021504"))
		allowed, n, err := p.rl.Allow(ctx, minuteKey, p.rlPerMin, 70*time.Second)
		if err != nil {
			return errors.Wrap(err, "rate limiter")
		}
		if !allowed {
			// Слишком часто: притормозим, чтобы ТК нас не забанила.
			p.log.Warn("rate limit превышен", "carrier", spec.Code, "count", n)
			time.Sleep(500 * time.Millisecond)
		}
	}

	client := p.clients[spec.Code]
	updated, err := client.Statuses(ctx, batch)
	if err != nil {
		return errors.Wrap(err, "statuses")
	}
	p.totalChecked.Add(int64(len(batch)))
	checkedTotal.WithLabelValues(spec.Code).Add(float64(len(batch)))

	prev := make(map[int64]string, len(batch))
	for _, a := range batch {
		prev[a.OrderID] = a.Status
	}

	for _, a := range updated {
		old, known := prev[a.OrderID]
		if a.Status == "" || (known && a.Status == old && !p.testMode) {
			continue
		}
		if err := p.publish(ctx, spec, a, old, now); err != nil {
			return err
		}
		p.totalChanged.Add(1)
		changedTotal.WithLabelValues(spec.Code).Inc()
	}
	return nil
}

func (p *Poller) publish(ctx context.Context, spec *fulfill.Spec, a models.StatusApplication, prev string, now time.Time) error {
	msg := messages.StatusChanged{
		OrderID:     a.OrderID,
		CarrierID:   spec.ID,
		CarrierCode: spec.Code,
		TkNum:       a.TkNum,
		Status:      a.Status,
		PrevStatus:  prev,
		CheckedAt:   now,
		Test:        p.testMode,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	key := []byte(fmt.Sprintf("%d", a.OrderID))
	// Kafka может быть недоступна короткое время (рестарт брокера),
	// событие терять нельзя — ретраим с нарастающей паузой.
	var pubErr error
	for i := 0; i < 10; i++ {
		if pubErr = p.producer.Publish(ctx, p.topic, key, b); pubErr == nil {
			return nil
		}
		time.Sleep(time.Duration(150*(i+1)) * time.Millisecond)
	}
	return pubErr
}
