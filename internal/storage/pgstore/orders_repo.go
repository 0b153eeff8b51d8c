package pgstore

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/artem12345-png/tkfulfill/internal/models"
)

// GetOrder возвращает nil, nil если заказа нет.
func (s *Storage) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	o := &models.Order{}
	err := s.db.QueryRow(ctx, `
SELECT id, carrier_id, warehouse_num, tk, address, receiver, payer_name,
       phone, inn, email, passport, comment_as_site, buyer_id, zakaz_id
FROM orders WHERE id = $1
`, orderID).Scan(
		&o.ID, &o.CarrierID, &o.WarehouseNum, &o.TK, &o.Address, &o.Receiver, &o.PayerName,
		&o.Phone, &o.INN, &o.Email, &o.Passport, &o.CommentAsSite, &o.BuyerID, &o.ZakazID,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select order")
	}
	return o, nil
}

func (s *Storage) ListOrderGoods(ctx context.Context, orderID int64) ([]models.OrderGood, error) {
	rows, err := s.db.Query(ctx, `
SELECT idgood, title, price, amount, weight, volume, length, width, height,
       fragile, oversized, warm_car
FROM order_goods WHERE order_id = $1 ORDER BY id
`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "select order goods")
	}
	defer rows.Close()

	var goods []models.OrderGood
	for rows.Next() {
		var g models.OrderGood
		if err := rows.Scan(
			&g.IDGood, &g.Title, &g.Price, &g.Amount, &g.Weight, &g.Volume,
			&g.Length, &g.Width, &g.Height, &g.Fragile, &g.Oversized, &g.WarmCar,
		); err != nil {
			return nil, errors.Wrap(err, "scan order good")
		}
		goods = append(goods, g)
	}
	return goods, errors.Wrap(rows.Err(), "iterate order goods")
}

func (s *Storage) GetWarehouse(ctx context.Context, num int) (*models.Warehouse, error) {
	w := &models.Warehouse{}
	err := s.db.QueryRow(ctx, `
SELECT num, title, city, address, phone, inn, email, person
FROM warehouses WHERE num = $1
`, num).Scan(&w.Num, &w.Title, &w.City, &w.Address, &w.Phone, &w.INN, &w.Email, &w.Person)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select warehouse")
	}
	return w, nil
}

// ListTerminals ищет терминалы ТК в городе. Сравнение города регистронезависимое.
func (s *Storage) ListTerminals(ctx context.Context, carrierID int, city string) ([]models.Terminal, error) {
	rows, err := s.db.Query(ctx, `
SELECT carrier_id, code, city, address
FROM terminals WHERE carrier_id = $1 AND lower(city) = lower($2)
ORDER BY code
`, carrierID, city)
	if err != nil {
		return nil, errors.Wrap(err, "select terminals")
	}
	defer rows.Close()

	var terms []models.Terminal
	for rows.Next() {
		var t models.Terminal
		if err := rows.Scan(&t.CarrierID, &t.Code, &t.City, &t.Address); err != nil {
			return nil, errors.Wrap(err, "scan terminal")
		}
		terms = append(terms, t)
	}
	return terms, errors.Wrap(rows.Err(), "iterate terminals")
}

// GetTerminalByCode ищет терминал по явному коду из поля "тк" заказа.
func (s *Storage) GetTerminalByCode(ctx context.Context, carrierID int, code string) (*models.Terminal, error) {
	t := &models.Terminal{}
	err := s.db.QueryRow(ctx, `
SELECT carrier_id, code, city, address
FROM terminals WHERE carrier_id = $1 AND code = $2
`, carrierID, code).Scan(&t.CarrierID, &t.Code, &t.City, &t.Address)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select terminal by code")
	}
	return t, nil
}
