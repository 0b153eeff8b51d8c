package messages

import "time"

// StatusChanged — событие смены статуса заявки в ТК.
// Публикуется воркером, потребляется API-сервисом (персист + СМС).
type StatusChanged struct {
	OrderID     int64     `json:"order_id"`
	CarrierID   int       `json:"carrier_id"`
	CarrierCode string    `json:"carrier_code"`
	TkNum       string    `json:"tk_num"`
	Status      string    `json:"status"`
	PrevStatus  string    `json:"prev_status,omitempty"`
	CheckedAt   time.Time `json:"checked_at"`
	Test        bool      `json:"test,omitempty"`
}
