// Package notify применяет события смены статуса: персист + СМС покупателю.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/artem12345-png/tkfulfill/internal/broker/messages"
	"github.com/artem12345-png/tkfulfill/internal/integrations/sms"
	"github.com/artem12345-png/tkfulfill/internal/models"
	"github.com/artem12345-png/tkfulfill/internal/services/fulfill"
)

type Store interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	UpdateApplicationStatus(ctx context.Context, orderID int64, status string) error
	// MarkSMSSent атомарно помечает заказ; false — СМС уже уходила.
	MarkSMSSent(ctx context.Context, orderID int64) (bool, error)
	MarkSMSFailed(ctx context.Context, orderID int64) error
}

type Sender interface {
	Send(ctx context.Context, phone, text string, orderID, zakazID int64) error
}

// Notifier — обработчик событий tk.status_changed на стороне API-сервиса.
type Notifier struct {
	store  Store
	sender Sender
	log    *slog.Logger
}

func New(store Store, sender Sender, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{store: store, sender: sender, log: log}
}

// Handle персистит новый статус и, если статус «уведомительный» для этой ТК,
// шлёт покупателю СМС. Ошибка отправки СМС событие не роняет: статус уже
// сохранён, повторная доставка сообщения продублировала бы СМС.
func (n *Notifier) Handle(ctx context.Context, msg messages.StatusChanged) error {
	log := n.log.With("order_id", msg.OrderID, "carrier", msg.CarrierCode, "status", msg.Status)

	// события тестового прогона не трогают ни базу, ни покупателя
	if msg.Test {
		log.Info("тестовое событие пропущено")
		return nil
	}

	if err := n.store.UpdateApplicationStatus(ctx, msg.OrderID, msg.Status); err != nil {
		return errors.Wrap(err, "update application status")
	}

	spec := fulfill.Specs[msg.CarrierCode]
	if spec == nil {
		log.Warn("событие от неизвестной ТК")
		return nil
	}
	if !spec.NotifyStatuses[msg.Status] {
		return nil
	}

	order, err := n.store.GetOrder(ctx, msg.OrderID)
	if err != nil {
		return errors.Wrap(err, "get order")
	}
	if order == nil {
		log.Warn("заказ не найден, СМС не отправлена")
		return nil
	}

	phone, err := sms.NormalizePhone(order.Phone)
	if err != nil {
		log.Warn("телефон не распознан, СМС не отправлена", "err", err)
		return nil
	}

	// Сначала пометка, потом отправка: лучше не отправить, чем отправить дважды.
	first, err := n.store.MarkSMSSent(ctx, msg.OrderID)
	if err != nil {
		return errors.Wrap(err, "mark sms sent")
	}
	if !first {
		return nil
	}

	text := smsText(msg.OrderID, spec, msg.TkNum)
	if err := n.sender.Send(ctx, phone, text, msg.OrderID, order.ZakazID); err != nil {
		log.Error("отправка СМС", "err", err)
		if ferr := n.store.MarkSMSFailed(ctx, msg.OrderID); ferr != nil {
			log.Error("пометка неудачной СМС", "err", ferr)
		}
		return nil
	}

	log.Info("СМС отправлена", "phone", phone)
	return nil
}

func smsText(orderID int64, spec *fulfill.Spec, tkNum string) string {
	return fmt.Sprintf(
		"Ваш заказ %d передан в компанию %s для отслеживания груза используйте код %s "+
			"Узнать состояние груза %s Телефон 8 800 5552123",
		orderID, spec.Name, tkNum, spec.TrackURL(tkNum))
}
