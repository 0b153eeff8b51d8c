package fulfill

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier/cdek"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier/kit"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier/pek"
	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier/skif"
)

// Spec — всё, чем одна ТК отличается от другой. Набор ТК закрыт,
// добавление новой — новая запись здесь плюс пакет клиента.
type Spec struct {
	ID       int
	Code     string
	Name     string
	CalcName string

	TerminalCodePattern *regexp.Regexp
	// Поиск терминала по городу при неточном адресе. ПЭК — исключение:
	// возит до двери в любом городе.
	CityOnlyTerminalSearch bool
	AviaSupported          bool

	// Статусы, после которых покупателю уходит SMS.
	NotifyStatuses map[string]bool
	// Финальные статусы: заявка выпадает из цикла опроса.
	FinishedStatuses []string

	StatusBatchSize   int
	StatusConcurrency int

	// TrackURL — ссылка отслеживания для SMS.
	TrackURL func(tkNum string) string

	BuildPayload func(ctx context.Context, d *FillData) (json.RawMessage, error)
}

var terminalCodeRe = regexp.MustCompile(`\[([0-9A-Za-zА-Яа-я_-]+)\]`)

// Specs — закрытый набор ТК с идентификаторами из общего справочника.
var Specs = map[string]*Spec{
	"pek": {
		ID:                     3,
		Code:                   "pek",
		Name:                   "ПЭК",
		CalcName:               "pek",
		TerminalCodePattern:    terminalCodeRe,
		CityOnlyTerminalSearch: false,
		AviaSupported:          true,
		NotifyStatuses: map[string]bool{
			"Груз принят к перевозке": true,
		},
		FinishedStatuses:  []string{"Груз выдан", "Заявка отменена"},
		StatusBatchSize:   100,
		StatusConcurrency: 1,
		TrackURL: func(tkNum string) string {
			return "https://pecom.ru/services-are/order-status/?code=" + tkNum
		},
		BuildPayload: buildPekPayload,
	},
	"skif": {
		ID:                     5,
		Code:                   "skif",
		Name:                   "Скиф-Карго",
		CalcName:               "skif",
		TerminalCodePattern:    terminalCodeRe,
		CityOnlyTerminalSearch: true,
		AviaSupported:          false,
		NotifyStatuses: map[string]bool{
			"Принят на склад": true,
		},
		FinishedStatuses:  []string{"Выдано получателю", "Отменено"},
		StatusBatchSize:   1,
		StatusConcurrency: 1,
		TrackURL: func(tkNum string) string {
			return "https://skif-cargo.ru/tracking/?number=" + tkNum
		},
		BuildPayload: buildSkifPayload,
	},
	"cdek": {
		ID:                     6,
		Code:                   "cdek",
		Name:                   "СДЭК",
		CalcName:               "cdek",
		TerminalCodePattern:    terminalCodeRe,
		CityOnlyTerminalSearch: true,
		AviaSupported:          false,
		NotifyStatuses: map[string]bool{
			"Принят на склад отправителя": true,
		},
		FinishedStatuses:  []string{"Вручен", "Не вручен"},
		StatusBatchSize:   1,
		StatusConcurrency: 2,
		TrackURL: func(tkNum string) string {
			return "https://www.cdek.ru/ru/tracking?order_id=" + tkNum
		},
		BuildPayload: buildCdekPayload,
	},
	"kit": {
		ID:                     7,
		Code:                   "kit",
		Name:                   "КИТ",
		CalcName:               "kit",
		TerminalCodePattern:    terminalCodeRe,
		CityOnlyTerminalSearch: true,
		AviaSupported:          false,
		NotifyStatuses: map[string]bool{
			"Новый заказ": true,
		},
		FinishedStatuses:  []string{"Выдан", "Отменён"},
		StatusBatchSize:   1,
		StatusConcurrency: 1,
		TrackURL: func(tkNum string) string {
			return "https://tk-kit.ru/tracking?number=" + tkNum
		},
		BuildPayload: buildKitPayload,
	},
}

// SpecByID нужен там, где в данных заказа ТК задана числом.
func SpecByID(id int) *Spec {
	for _, s := range Specs {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Кто платит: явная пометка "доставка за наш счёт" побеждает настройки ТК.
func senderPays(d *FillData, customerPays bool) bool {
	return d.IsSenderPay || !customerPays
}

func buildPekPayload(ctx context.Context, d *FillData) (json.RawMessage, error) {
	payerPickup, payerArrival := 2, 2
	if senderPays(d, d.CustomerPaysForPickup) {
		payerPickup = 1
	}
	if senderPays(d, d.CustomerPaysForDelivery) {
		payerArrival = 1
	}

	req := pek.CreateRequest{
		Sender: pek.Party{
			Title:   d.Warehouse.Title,
			Person:  d.Warehouse.Person,
			Phone:   d.Warehouse.Phone,
			City:    d.Warehouse.City,
			Address: d.Warehouse.Address,
			INN:     d.Warehouse.INN,
		},
		Receiver: pek.Party{
			Title:     d.ReceiverTitle,
			Person:    d.ReceiverPerson,
			Phone:     d.Order.Phone,
			City:      d.ReceiverCity,
			Address:   d.ReceiverAddress,
			Warehouse: d.TerminalCode,
			INN:       receiverINN(d),
		},
		Cargo: pek.Cargo{
			Places:        d.Places,
			Weight:        d.SumWeight,
			Volume:        d.SumVolume,
			Length:        d.MaxLength,
			Width:         d.MaxWidth,
			Height:        d.MaxHeight,
			DeclaredValue: declaredValue(d),
			Oversized:     d.Oversized,
		},
		Insurance:    d.Insurance,
		HardPacking:  d.HardPacking || d.Fragile,
		Avia:         d.IsAvia,
		WarmCar:      d.WarmCar,
		PayerPickup:  payerPickup,
		PayerArrival: payerArrival,
		Comment:      d.Order.CommentAsSite,
	}
	return json.Marshal(req)
}

func buildSkifPayload(ctx context.Context, d *FillData) (json.RawMessage, error) {
	payer := func(customerPays bool) string {
		if senderPays(d, customerPays) {
			return "sender"
		}
		return "receiver"
	}

	req := skif.CreateRequest{
		CityFrom:      d.Warehouse.City,
		CityTo:        d.ReceiverCity,
		SenderCompany: d.Warehouse.Title,
		SenderPhone:   d.Warehouse.Phone,
		SenderAddress: d.Warehouse.Address,

		ReceiverName:    d.ReceiverTitle,
		ReceiverPhone:   d.Order.Phone,
		ReceiverAddress: d.ReceiverAddress,
		TerminalCode:    d.TerminalCode,
		ReceiverINN:     receiverINN(d),

		Places:        d.Places,
		Weight:        d.SumWeight,
		Volume:        d.SumVolume,
		DeclaredValue: declaredValue(d),
		Insurance:     d.Insurance,
		Crate:         d.HardPacking || d.Fragile,

		PayerDelivery: payer(d.CustomerPaysForDelivery),
		PayerPickup:   payer(d.CustomerPaysForPickup),
		Comment:       d.Order.CommentAsSite,
	}
	return json.Marshal(req)
}

func buildKitPayload(ctx context.Context, d *FillData) (json.RawMessage, error) {
	req := kit.CreateRequest{
		CityPickup:   d.Warehouse.City,
		CityDelivery: d.ReceiverCity,

		SenderName:    d.Warehouse.Title,
		SenderPhone:   d.Warehouse.Phone,
		SenderAddress: d.Warehouse.Address,
		SenderINN:     d.Warehouse.INN,

		ReceiverName:     d.ReceiverTitle,
		ReceiverPhone:    d.Order.Phone,
		ReceiverAddress:  d.ReceiverAddress,
		ReceiverTerminal: d.TerminalCode,
		ReceiverINN:      receiverINN(d),
		ReceiverPassport: d.Order.Passport,
		ReceiverType:     int(d.Legal),

		Places:        d.Places,
		Weight:        d.SumWeight,
		Volume:        d.SumVolume,
		DeclaredValue: declaredValue(d),
		Insurance:     d.Insurance,
		HardPacking:   d.HardPacking || d.Fragile,

		PickupPaidBySender:   senderPays(d, d.CustomerPaysForPickup),
		DeliveryPaidBySender: senderPays(d, d.CustomerPaysForDelivery),
		Comment:              d.Order.CommentAsSite,
	}
	return json.Marshal(req)
}

// тарифы СДЭК: 136 склад-склад, 137 склад-дверь
const (
	cdekTariffToTerminal = 136
	cdekTariffToDoor     = 137
)

func buildCdekPayload(ctx context.Context, d *FillData) (json.RawMessage, error) {
	tariff := cdekTariffToTerminal
	if d.IsDelivery {
		tariff = cdekTariffToDoor
	}
	// тариф из калькулятора точнее захардкоженного
	if resp, err := d.CalcDelivery(ctx); err == nil {
		if code, cerr := strconv.Atoi(resp.TariffCodeString()); cerr == nil && code > 0 {
			tariff = code
		}
	}

	items := make([]cdek.Item, 0, len(d.Goods))
	totalGrams := 0
	for _, g := range d.Goods {
		grams := int(g.Weight * 1000)
		totalGrams += grams * g.Amount
		items = append(items, cdek.Item{
			Name:    g.Title,
			WareKey: strconv.FormatInt(g.IDGood, 10),
			Cost:    float64(g.Price),
			Weight:  grams,
			Amount:  g.Amount,
		})
	}

	req := cdek.CreateRequest{
		TariffCode: tariff,
		Number:     fmt.Sprintf("%d", d.Order.ID),
		Comment:    d.Order.CommentAsSite,
		Sender:     cdek.MakeContact(d.Warehouse.Person, d.Warehouse.Phone),
		Recipient:  cdek.MakeContact(d.ReceiverTitle, d.Order.Phone),
		FromLoc: &cdek.Location{
			City:    d.Warehouse.City,
			Address: d.Warehouse.Address,
		},
		Packages: []cdek.Package{{
			Number: "1",
			Weight: totalGrams,
			Length: cm(d.MaxLength),
			Width:  cm(d.MaxWidth),
			Height: cm(d.MaxHeight),
			Items:  items,
		}},
	}
	if d.IsDelivery {
		req.ToLoc = &cdek.Location{City: d.ReceiverCity, Address: d.ReceiverAddress}
	} else if d.TerminalCode != "" {
		req.DeliveryPoint = d.TerminalCode
	} else {
		req.ToLoc = &cdek.Location{City: d.ReceiverCity, Address: d.ReceiverAddress}
	}
	return json.Marshal(req)
}

// receiverINN — ИНН указывается только юрлицам и ИП.
func receiverINN(d *FillData) string {
	if d.Legal == LegalPrivate {
		return ""
	}
	return d.Order.INN
}

// declaredValue — объявленная стоимость: сумма заказа, без страховки — ноль
// не ставим, ТК требуют положительное значение.
func declaredValue(d *FillData) float64 {
	if d.SumPrice > 0 {
		return d.SumPrice
	}
	return 1
}

func cm(m float64) int {
	v := int(m * 100)
	if v < 1 {
		v = 1
	}
	return v
}
