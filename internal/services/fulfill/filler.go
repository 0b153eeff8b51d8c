package fulfill

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"github.com/artem12345-png/tkfulfill/config"
	"github.com/artem12345-png/tkfulfill/internal/integrations/calc"
	"github.com/artem12345-png/tkfulfill/internal/models"
	"github.com/artem12345-png/tkfulfill/internal/services/addresses"
)

// Классификация получателя по свободному тексту имени плательщика.
type LegalForm int

const (
	LegalPrivate        LegalForm = 1 // физлицо
	LegalSoleProprietor LegalForm = 2 // ИП
	LegalEntity         LegalForm = 3 // юрлицо
)

var (
	aviaPattern    = regexp.MustCompile(`(^|\s|\W)(авиа|авиадоставка|авиаперевозка)($|\s|\W)`)
	ourCostPattern = regexp.MustCompile(`(^|\s|\W)доставка за наш сч[её]т($|\s|\W)`)
	soleProprietor = regexp.MustCompile(`(^|\s)ип(\s|$)`)
)

// fragileMarkers — слова в комментарии к основанию, после которых груз
// оформляется как хрупкий независимо от свойств товара.
var fragileMarkers = []string{"обрешетка", "хрупкий груз"}

// FillData — всё, что филлер собрал по заказу. Из него билдер конкретной ТК
// строит payload.
type FillData struct {
	Order     *models.Order
	Goods     []models.OrderGood
	Warehouse *models.Warehouse

	SumWeight float64
	SumVolume float64
	SumPrice  float64
	MaxLength float64
	MaxWidth  float64
	MaxHeight float64
	Places    int
	Fragile   bool
	Oversized bool
	WarmCar   bool

	ReceiverTitle  string
	ReceiverPerson string
	ReceiverCity   string
	// Адрес двери; пуст при доставке до терминала.
	ReceiverAddress string
	TerminalCode    string
	IsDelivery      bool
	Legal           LegalForm

	SenderCity string

	IsAvia      bool
	IsSenderPay bool

	Insurance   bool
	HardPacking bool
	Test        bool

	CustomerPaysForPickup   bool
	CustomerPaysForDelivery bool

	calcClient *calc.Client
	calcName   string
	calcResp   *calc.Response
	calcErr    error
	calcDone   bool
}

type addressResolver interface {
	Resolve(ctx context.Context, kind, query string) models.NormalizedAddress
}

type fillerStore interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	ListOrderGoods(ctx context.Context, orderID int64) ([]models.OrderGood, error)
	GetWarehouse(ctx context.Context, num int) (*models.Warehouse, error)
	ListTerminals(ctx context.Context, carrierID int, city string) ([]models.Terminal, error)
	GetTerminalByCode(ctx context.Context, carrierID int, code string) (*models.Terminal, error)
}

// Filler собирает заявку для любой ТК; различия между ТК живут в Spec.
type Filler struct {
	store      fillerStore
	resolver   addressResolver
	calcClient *calc.Client
	cfg        config.FulfillConfig
	carriers   map[string]config.CarrierConfig
	log        *slog.Logger
}

func NewFiller(store fillerStore, resolver addressResolver, calcClient *calc.Client,
	cfg config.FulfillConfig, carriers map[string]config.CarrierConfig, log *slog.Logger) *Filler {
	if log == nil {
		log = slog.Default()
	}
	return &Filler{
		store:      store,
		resolver:   resolver,
		calcClient: calcClient,
		cfg:        cfg,
		carriers:   carriers,
		log:        log,
	}
}

// Fill собирает payload для ТК spec. Все причины невозможности оформить
// заявку выражаются FillerError / CountTerminalsError.
func (f *Filler) Fill(ctx context.Context, spec *Spec, params models.OrderParams, test bool) (json.RawMessage, error) {
	d, err := f.load(ctx, spec, params, test)
	if err != nil {
		return nil, err
	}
	return spec.BuildPayload(ctx, d)
}

func (f *Filler) load(ctx context.Context, spec *Spec, params models.OrderParams, test bool) (*FillData, error) {
	order, err := f.store.GetOrder(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fillerErrorf("Нет заказа с id=%d", params.ID)
	}
	if order.CarrierID == 0 {
		return nil, fillerErrorf("У заказа не указана ТК, id=%d", params.ID)
	}

	goods, err := f.store.ListOrderGoods(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if len(goods) == 0 {
		return nil, fillerErrorf("У заказа id=%d не найдены товары.", params.ID)
	}

	wh, err := f.store.GetWarehouse(ctx, order.WarehouseNum)
	if err != nil {
		return nil, err
	}
	if wh == nil {
		return nil, fillerErrorf("Нет склада с num=%d, id=%d", order.WarehouseNum, params.ID)
	}

	ccfg := f.carriers[spec.Code]
	d := &FillData{
		Order:     order,
		Warehouse: wh,

		SenderCity: f.cfg.SenderCity,

		Insurance:   params.Insurance,
		HardPacking: params.HardPacking,
		Test:        test,

		CustomerPaysForPickup:   ccfg.PaysForPickup(),
		CustomerPaysForDelivery: ccfg.PaysForDelivery(),

		calcClient: f.calcClient,
		calcName:   spec.CalcName,
	}

	f.fillCargo(d, goods)
	f.fillDeliveryParams(d, order)
	if err := f.fillReceiver(ctx, spec, d); err != nil {
		return nil, err
	}

	if d.IsAvia && !spec.AviaSupported {
		return nil, fillerErrorf("ТК %s не поддерживает авиадоставку", spec.Name)
	}
	return d, nil
}

// fillCargo нормализует габариты товаров и сводит итоговые параметры груза.
// Минимальные значения — требование ТК: нулевой вес или габарит они
// не принимают.
func (f *Filler) fillCargo(d *FillData, goods []models.OrderGood) {
	clamped := make([]models.OrderGood, 0, len(goods))
	for _, g := range goods {
		g.Weight = maxf(0.1, g.Weight)
		g.Volume = maxf(0.01, g.Volume)
		g.Length = maxf(0.01, g.Length)
		g.Width = maxf(0.01, g.Width)
		g.Height = maxf(0.01, g.Height)
		g.Title = strings.TrimSpace(g.Title)
		clamped = append(clamped, g)

		d.SumWeight += g.Weight * float64(g.Amount)
		d.SumVolume += g.Volume * float64(g.Amount)
		d.SumPrice += float64(g.Price) * float64(g.Amount)
		d.MaxLength = maxf(d.MaxLength, g.Length)
		d.MaxWidth = maxf(d.MaxWidth, g.Width)
		d.MaxHeight = maxf(d.MaxHeight, g.Height)
		d.Places += g.Amount

		d.Fragile = d.Fragile || g.Fragile
		d.Oversized = d.Oversized || g.Oversized
		d.WarmCar = d.WarmCar || g.WarmCar
	}
	d.Goods = clamped

	comment := strings.ToLower(d.Order.CommentAsSite)
	for _, marker := range fragileMarkers {
		if strings.Contains(comment, marker) {
			d.Fragile = true
			break
		}
	}
}

// fillDeliveryParams распознаёт пометки менеджера в свободном тексте.
// Правило выбора плательщика по tk_settings в исходной системе было
// закомментировано; сознательно не додумываем его — только явная пометка.
func (f *Filler) fillDeliveryParams(d *FillData, order *models.Order) {
	fields := strings.ToLower(order.TK) + " " + strings.ToLower(order.CommentAsSite)
	d.IsAvia = aviaPattern.MatchString(fields)
	d.IsSenderPay = ourCostPattern.MatchString(fields)
}

func (f *Filler) fillReceiver(ctx context.Context, spec *Spec, d *FillData) error {
	order := d.Order

	// код терминала в скобках в свободном поле "тк"
	if m := spec.TerminalCodePattern.FindStringSubmatch(order.TK); m != nil {
		code := m[1]
		term, err := f.store.GetTerminalByCode(ctx, spec.ID, code)
		if err != nil {
			return err
		}
		if term == nil {
			return fillerErrorf("Терминал с кодом [%s] не найден для ТК %s", code, spec.Name)
		}
		d.IsDelivery = false
		d.TerminalCode = term.Code
		d.ReceiverCity = term.City
	} else if strings.Contains(strings.ToLower(order.TK), "терминал") {
		// адрес терминала — всё, что стоит после слова "терминал"
		raw := terminalQuery(order.TK)
		addr := f.resolver.Resolve(ctx, addresses.KindDelivery, raw)
		city := addr.CityName()
		if city == "" {
			return fillerErrorf(
				"Для заказа id=%d не смог определиться город доставки. "+
					"Попробуйте указать код терминала ТК в формате '[<КОД>]'. "+
					"Распознанный адрес доставки '%s'.", order.ID, addr.Result)
		}
		d.IsDelivery = false
		d.ReceiverCity = city
		d.ReceiverAddress = addr.Result
	} else {
		addr := f.resolver.Resolve(ctx, addresses.KindAddress, order.Address)
		if addr.IsEmpty() {
			return fillerErrorf(
				"Недостаточно точный адрес для доставки. "+
					"Попробуйте добавить название города/области в строку адреса. "+
					"Введенный адрес получателя \"%s\".", order.Address)
		}

		d.IsDelivery = true
		d.ReceiverCity = addr.CityName()
		d.ReceiverAddress = addr.Result

		// Адрес определился только до города. Ищем терминал в этом городе:
		// ровно один — едем до него, иначе пусть менеджер выбирает.
		if addr.CityOnly() && spec.CityOnlyTerminalSearch {
			terms, err := f.store.ListTerminals(ctx, spec.ID, addr.CityName())
			if err != nil {
				return err
			}
			if len(terms) != 1 {
				return &CountTerminalsError{Count: len(terms)}
			}
			d.IsDelivery = false
			d.TerminalCode = terms[0].Code
			d.ReceiverAddress = terms[0].Address
		}

		if d.ReceiverCity == "" {
			return fillerErrorf(
				"Для заказа id=%d не смог определиться город доставки. "+
					"Попробуйте указать код терминала ТК в формате '[<КОД>]'. "+
					"Распознанный адрес доставки '%s'.", order.ID, addr.Result)
		}
	}

	title := order.Receiver
	if order.PayerName != "" && order.PayerName != "Частное лицо" {
		title = order.PayerName
	}
	if strings.TrimSpace(title) == "" {
		return fillerErrorf("Не заполнено имя получателя для id=%d", order.ID)
	}
	d.ReceiverTitle = title

	if order.Receiver != "" {
		d.ReceiverPerson = order.Receiver
	} else if order.PayerName != "Частное лицо" {
		d.ReceiverPerson = order.PayerName
	}

	d.Legal = classifyLegalForm(d.ReceiverTitle)
	return nil
}

// CalcDelivery считает стоимость доставки, мемоизируя результат: не больше
// одного похода в калькулятор на заказ за один проход филлера.
func (d *FillData) CalcDelivery(ctx context.Context) (*calc.Response, error) {
	if d.calcDone {
		return d.calcResp, d.calcErr
	}
	d.calcDone = true

	need := calc.ToBoth
	if !d.IsDelivery {
		need = calc.ToTerm
	}
	goods := make([]calc.Good, 0, len(d.Goods))
	for _, g := range d.Goods {
		goods = append(goods, calc.Good{
			GID:       g.IDGood,
			Amount:    g.Amount,
			Weight:    g.Weight,
			Volume:    g.Volume,
			Length:    g.Length,
			Width:     g.Width,
			Height:    g.Height,
			Oversized: d.Oversized,
		})
	}

	resp, err := d.calcClient.CalcTK(ctx, d.calcName, calc.Request{
		From:     d.SenderCity,
		ToCity:   d.ReceiverCity,
		Cost:     d.SumPrice,
		NeedCalc: need,
		Goods:    goods,
	}, d.Test)
	if err != nil {
		d.calcErr = &FillerError{Reason: err.Error()}
		return nil, d.calcErr
	}
	d.calcResp = &resp
	return d.calcResp, nil
}

// classifyLegalForm — эвристика по свободному тексту: кавычки или «ооо» —
// юрлицо, «ип» — ИП, иначе частное лицо.
func classifyLegalForm(title string) LegalForm {
	low := strings.ToLower(title)
	if strings.ContainsAny(title, `"«»`) || strings.Contains(low, "ооо") {
		return LegalEntity
	}
	if soleProprietor.MatchString(low) {
		return LegalSoleProprietor
	}
	return LegalPrivate
}

// terminalQuery вырезает из поля "тк" адрес, идущий после слова "терминал".
func terminalQuery(tk string) string {
	low := strings.ToLower(tk)
	idx := strings.Index(low, "терминал")
	if idx < 0 {
		return tk
	}
	rest := tk[idx+len("терминал"):]
	return strings.TrimLeft(rest, " :,.-")
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
