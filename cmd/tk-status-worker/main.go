package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/artem12345-png/tkfulfill/config"
	"github.com/artem12345-png/tkfulfill/internal/broker/kafka"
	"github.com/artem12345-png/tkfulfill/internal/cache/rediscache"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier/cdek"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier/kit"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier/pek"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier/skif"
	"github.com/artem12345-png/tkfulfill/internal/services/fulfill"
	"github.com/artem12345-png/tkfulfill/internal/services/statuspoll"
	"github.com/artem12345-png/tkfulfill/internal/storage/pgstore"
	"github.com/artem12345-png/tkfulfill/internal/telemetry"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	log := telemetry.SetupLogger("tk-status-worker")

	if cfg.Fulfill.StatusOff {
		log.Warn("опрос статусов выключен конфигом, воркер не стартует")
		return
	}

	topic := cfg.Kafka.StatusChangedTopicName
	if topic == "" {
		topic = "tk.status_changed"
	}
	cycle := time.Duration(cfg.Fulfill.StatusCycleSeconds) * time.Second
	if cycle <= 0 {
		cycle = 10 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st, err := pgstore.New(connString)
	if err != nil {
		panic(err)
	}
	defer st.Close()

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	producer := kafka.NewProducer(brokers)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rl := rediscache.NewRateLimiter(redisAddr)

	p := statuspoll.New(st, buildCarrierClients(cfg), producer, rl, topic, log).
		WithSettings(cycle, cfg.Fulfill.StatusWindowFromHour, cfg.Fulfill.StatusWindowToHour,
			int64(cfg.Fulfill.StatusRateLimitPerMin)).
		WithTestMode(cfg.Fulfill.TestMode)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Расписание cron, если задано, добавляется к простому циклу: тикер
	// остаётся страховкой раз в cycle, остальное делает cron.
	if expr := cfg.Fulfill.StatusCron; expr != "" {
		c := cron.New()
		if _, err := c.AddFunc(expr, p.Trigger); err != nil {
			panic(fmt.Sprintf("невалидное выражение status_cron %q: %v", expr, err))
		}
		c.Start()
		defer c.Stop()
	}

	go func() {
		if err := runWorkerHTTPServer(ctx, cfg.Fulfill.WorkerAddr, p); err != nil && err != http.ErrServerClosed {
			log.Error("ops http server", "err", err)
		}
	}()

	if err := p.Run(ctx); err != nil && err != context.Canceled {
		panic(err)
	}
}

// buildCarrierClients — клиенты включённых ТК; выключенные просто
// не попадают в цикл опроса.
func buildCarrierClients(cfg *config.Config) map[string]carrier.Client {
	clients := map[string]carrier.Client{}
	for code := range fulfill.Specs {
		ccfg, ok := cfg.Carriers[code]
		if !ok || ccfg.Off || ccfg.BaseURL == "" {
			continue
		}
		timeout := time.Duration(ccfg.TimeoutSeconds) * time.Second
		switch code {
		case "pek":
			clients[code] = pek.New(ccfg.BaseURL, ccfg.Login, ccfg.Pass, timeout)
		case "skif":
			clients[code] = skif.New(ccfg.BaseURL, ccfg.Token, timeout)
		case "cdek":
			clients[code] = cdek.New(ccfg.BaseURL, ccfg.Login, ccfg.Pass, timeout)
		case "kit":
			clients[code] = kit.New(ccfg.BaseURL, ccfg.Token, timeout)
		}
	}
	return clients
}
