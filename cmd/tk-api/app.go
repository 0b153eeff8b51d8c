package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/artem12345-png/tkfulfill/internal/broker/messages"
	"github.com/artem12345-png/tkfulfill/internal/services/notify"
)

type apiOpts struct {
	httpAddr string
	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

// runAPI поднимает HTTP-сервер и консьюмер событий смены статуса.
// Живёт до отмены ctx.
func runAPI(ctx context.Context, opts apiOpts, router http.Handler,
	consumer kafkaConsumer, notifier *notify.Notifier, log *slog.Logger) error {

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: router}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- srv.Serve(lis)
	}()

	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- consumer.Consume(ctx, func(key, value []byte) error {
			var msg messages.StatusChanged
			if err := json.Unmarshal(value, &msg); err != nil {
				// битое сообщение ретраить бессмысленно
				log.Error("битое событие статуса", "key", string(key), "err", err)
				return nil
			}
			return notifier.Handle(ctx, msg)
		})
	}()

	select {
	case <-ctx.Done():
	case err := <-httpErr:
		return err
	case err := <-consumerErr:
		if err != nil && err != context.Canceled {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	return ctx.Err()
}
