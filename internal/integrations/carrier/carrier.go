package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/artem12345-png/tkfulfill/internal/models"
)

// DocMode — тип запрашиваемого документа.
type DocMode string

const (
	DocInfo  DocMode = "info"  // накладная
	DocCargo DocMode = "cargo" // грузовая наклейка
)

// Client — API одной транспортной компании. Payload и ответ — сырой JSON:
// его форму знает только пакет конкретной ТК, оркестратору она не нужна.
type Client interface {
	// Create отправляет заявку в ТК и возвращает ответ как есть.
	Create(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	// OrderNum достаёт номер накладной из ответа Create.
	OrderNum(resp json.RawMessage) (string, error)
	GetPDF(ctx context.Context, tkNum string, mode DocMode) ([]byte, error)
	// Statuses возвращает свежие статусы для пачки заявок.
	Statuses(ctx context.Context, apps []models.StatusApplication) ([]models.StatusApplication, error)
}

// APIError — ТК ответила, но отказала. Текст показывается менеджеру как есть.
type APIError struct {
	Carrier string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Carrier, e.Message)
}

// TimeoutError — ТК не ответила за отведённое время. Заявка при этом могла
// создаться на той стороне, поэтому такие ошибки не приводят к автоповтору.
type TimeoutError struct {
	Carrier string
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: превышено время ожидания ответа", e.Carrier)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// WrapTransportErr нормализует сетевые ошибки http-клиента в TimeoutError.
func WrapTransportErr(carrierCode string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Carrier: carrierCode, Err: err}
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return &TimeoutError{Carrier: carrierCode, Err: err}
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &TimeoutError{Carrier: carrierCode, Err: err}
	}
	return err
}
