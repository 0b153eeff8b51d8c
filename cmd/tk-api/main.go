package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artem12345-png/tkfulfill/config"
	"github.com/artem12345-png/tkfulfill/internal/api/fulfillapi"
	"github.com/artem12345-png/tkfulfill/internal/broker/kafka"
	"github.com/artem12345-png/tkfulfill/internal/cache/rediscache"
	"github.com/artem12345-png/tkfulfill/internal/integrations/calc"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier/cdek"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier/kit"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier/pek"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier/skif"
	"github.com/artem12345-png/tkfulfill/internal/integrations/dadata"
	"github.com/artem12345-png/tkfulfill/internal/integrations/sms"
	"github.com/artem12345-png/tkfulfill/internal/services/addresses"
	"github.com/artem12345-png/tkfulfill/internal/services/fulfill"
	"github.com/artem12345-png/tkfulfill/internal/services/notify"
	"github.com/artem12345-png/tkfulfill/internal/storage/pgstore"
	"github.com/artem12345-png/tkfulfill/internal/telemetry"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	log := telemetry.SetupLogger("tk-api")

	httpAddr := cfg.Fulfill.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	topic := cfg.Kafka.StatusChangedTopicName
	if topic == "" {
		topic = "tk.status_changed"
	}
	consumerGroup := cfg.Kafka.ConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "tk-api"
	}
	publicDir := cfg.Fulfill.PublicDir
	if publicDir == "" {
		publicDir = "public"
	}
	lockTTL := time.Duration(cfg.Fulfill.OrderLockTTLSeconds) * time.Second
	if lockTTL <= 0 {
		lockTTL = 60 * time.Second
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)
	defer st.Close()

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	locker := rediscache.NewOrderLocker(redisAddr, lockTTL)

	resolver := addresses.NewResolver(
		dadata.New(cfg.Dadata.BaseURL, cfg.Dadata.APIKey, cfg.Dadata.Secret),
		st,
		time.Duration(cfg.Fulfill.AddressCacheTTLSeconds)*time.Second,
		log,
	)
	calcClient := calc.New(cfg.Calc.BaseURL, cfg.Calc.TestBaseURL)

	clients, carriersOff := buildCarrierClients(cfg)

	filler := fulfill.NewFiller(st, resolver, calcClient, cfg.Fulfill, cfg.Carriers, log)
	iterator := fulfill.NewIterator(st, locker, filler, clients, cfg.Fulfill.TestMode, log)
	handler := fulfill.NewHandler(iterator, st, publicDir,
		time.Duration(cfg.Fulfill.SyncTimeoutSeconds)*time.Second,
		time.Duration(cfg.Fulfill.AsyncTimeoutSeconds)*time.Second,
		cfg.Fulfill.BatchConcurrency, log)

	api := fulfillapi.New(handler, cfg.Fulfill.AuthToken, carriersOff, cfg.Fulfill.TestMode, log)

	notifier := notify.New(st, sms.New(cfg.SMS.BaseURL, cfg.SMS.Login, cfg.SMS.Pass, cfg.SMS.From), log)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)
	defer func() { _ = consumer.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runAPI(ctx, apiOpts{httpAddr: httpAddr}, api.Router(), consumer, notifier, log); err != nil && err != context.Canceled {
		panic(err)
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgstore.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgstore.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

// buildCarrierClients собирает клиентов включённых ТК. Выключенная или
// несконфигурированная ТК клиента не получает: итератор ответит
// "ТК отключена" на заявки по ней.
func buildCarrierClients(cfg *config.Config) (map[string]carrier.Client, map[string]bool) {
	clients := map[string]carrier.Client{}
	off := map[string]bool{}

	for code := range fulfill.Specs {
		ccfg, ok := cfg.Carriers[code]
		if !ok || ccfg.Off || ccfg.BaseURL == "" {
			off[code] = true
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
	return clients, off
}
