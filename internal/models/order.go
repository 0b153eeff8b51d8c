package models

import (
	"encoding/json"
	"time"
)

// OrderParams — один заказ в запросе на создание заявки.
type OrderParams struct {
	ID          int64 `json:"id"`
	Force       bool  `json:"force"`
	Insurance   bool  `json:"insurance"`
	HardPacking bool  `json:"hardPacking"`
}

type CreateApplicationRequest struct {
	CargoPickup bool          `json:"cargopickup"`
	Arr         []OrderParams `json:"arr"`
	Test        bool          `json:"test"`
}

// ApplicationInfo — результат по одному заказу: либо tk_num, либо error.
type ApplicationInfo struct {
	ID    int64  `json:"id"`
	TkNum string `json:"tk_num,omitempty"`
	Error string `json:"error,omitempty"`
}

type CreateApplicationResponse struct {
	Info      []ApplicationInfo `json:"info"`
	File      string            `json:"file,omitempty"`
	FileCargo string            `json:"file_cargo,omitempty"`
	Error     string            `json:"error,omitempty"`
}

type AsyncToken struct {
	Token string `json:"token"`
}

// BatchTask — отложенная пакетная заявка. Response == nil, пока обработка
// не завершилась.
type BatchTask struct {
	Token     string
	Request   json.RawMessage
	Response  json.RawMessage
	CreatedAt time.Time
}

// Submission — персистентная запись заявки, ключ идемпотентности.
// Инвариант: не больше одной не-ошибочной записи на заказ.
type Submission struct {
	OrderID     int64
	CarrierCode string
	Request     json.RawMessage
	Payload     json.RawMessage
	Response    json.RawMessage
	IsError     bool
	CreatedAt   time.Time
}

// StatusApplication — заявка в цикле обновления статусов.
type StatusApplication struct {
	OrderID int64
	TkNum   string
	Status  string
}

// Order — строка заказа из базы (read model).
type Order struct {
	ID            int64
	CarrierID     int
	WarehouseNum  int
	TK            string // свободное поле "тк": может содержать код терминала в скобках
	Address       string
	Receiver      string
	PayerName     string
	Phone         string
	INN           string
	Email         string
	Passport      string
	CommentAsSite string
	BuyerID       int64
	ZakazID       int64
}

// OrderGood — товар заказа с каталожными габаритами.
type OrderGood struct {
	IDGood int64
	Title  string
	Price  int64
	Amount int
	Weight float64
	Volume float64
	Length float64
	Width  float64
	Height float64

	Fragile   bool
	Oversized bool
	WarmCar   bool
}

// Warehouse — склад отправителя.
type Warehouse struct {
	Num     int
	Title   string
	City    string
	Address string
	Phone   string
	INN     string
	Email   string
	Person  string
}

// Terminal — терминал ТК в городе.
type Terminal struct {
	CarrierID int
	Code      string
	City      string
	Address   string
}
