package pgstore

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/artem12345-png/tkfulfill/internal/models"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPGStore_RepoFlow(t *testing.T) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "tkfulfill_test",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/tkfulfill_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	reqJSON := json.RawMessage(`{"id":100,"force":false}`)

	// Первая вставка выигрывает, вторая получает чужую запись.
	sub, inserted, err := st.InsertSubmissionIfAbsent(ctx, models.Submission{
		OrderID: 100, CarrierCode: "pek", Request: reqJSON,
		Payload: json.RawMessage(`{"p":1}`), Response: json.RawMessage(`{"num":"PK-1"}`),
	})
	require.NoError(t, err)
	require.True(t, inserted)
	require.Equal(t, "pek", sub.CarrierCode)

	sub2, inserted2, err := st.InsertSubmissionIfAbsent(ctx, models.Submission{
		OrderID: 100, CarrierCode: "pek", Request: reqJSON,
		Payload: json.RawMessage(`{"p":2}`), Response: json.RawMessage(`{"num":"PK-2"}`),
	})
	require.NoError(t, err)
	require.False(t, inserted2)
	require.JSONEq(t, `{"num":"PK-1"}`, string(sub2.Response))

	// Ошибочная запись не блокирует успешную повторную отправку.
	require.NoError(t, st.SaveSubmissionError(ctx, models.Submission{
		OrderID: 101, CarrierCode: "pek", Request: reqJSON, Response: json.RawMessage(`"таймаут"`),
	}))
	got, err := st.GetSubmission(ctx, 101)
	require.NoError(t, err)
	require.True(t, got.IsError)

	sub3, inserted3, err := st.InsertSubmissionIfAbsent(ctx, models.Submission{
		OrderID: 101, CarrierCode: "pek", Request: reqJSON, Response: json.RawMessage(`{"num":"PK-3"}`),
	})
	require.NoError(t, err)
	require.True(t, inserted3)
	require.False(t, sub3.IsError)

	// Но ошибка не затирает успех.
	require.NoError(t, st.SaveSubmissionError(ctx, models.Submission{
		OrderID: 101, CarrierCode: "pek", Request: reqJSON, Response: json.RawMessage(`"повтор"`),
	}))
	got, err = st.GetSubmission(ctx, 101)
	require.NoError(t, err)
	require.False(t, got.IsError)

	// force: удалить и создать заново
	require.NoError(t, st.DeleteSubmission(ctx, 100))
	got, err = st.GetSubmission(ctx, 100)
	require.NoError(t, err)
	require.Nil(t, got)

	// кэш адресов
	_, ok, err := st.GetCachedAddress(ctx, "dadata", "Москва, Тверская 1", 0)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, st.PutCachedAddress(ctx, "dadata", "Москва, Тверская 1", json.RawMessage(`{"city":"Москва"}`)))
	payload, ok, err := st.GetCachedAddress(ctx, "dadata", "Москва, Тверская 1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"city":"Москва"}`, string(payload))

	// протухание по TTL
	_, err = st.db.Exec(ctx, `UPDATE address_cache SET fetched_at = now() - interval '2 hours'`)
	require.NoError(t, err)
	_, ok, err = st.GetCachedAddress(ctx, "dadata", "Москва, Тверская 1", time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	// заявки для опроса статусов
	require.NoError(t, st.UpsertApplication(ctx, 100, 3, "pek", "PK-1"))
	require.NoError(t, st.UpsertApplication(ctx, 102, 3, "pek", "PK-4"))
	require.NoError(t, st.UpdateApplicationStatus(ctx, 102, "Доставлено"))

	open, err := st.ListOpenApplications(ctx, "pek", []string{"Доставлено"})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, int64(100), open[0].OrderID)

	// не больше одной СМС на заказ
	first, err := st.MarkSMSSent(ctx, 100)
	require.NoError(t, err)
	require.True(t, first)
	second, err := st.MarkSMSSent(ctx, 100)
	require.NoError(t, err)
	require.False(t, second)
	require.NoError(t, st.MarkSMSFailed(ctx, 100))

	// пакетные задачи
	token := "0e8dd2a4-9c2c-4a6e-9b59-6a2f0c3bbf11"
	require.NoError(t, st.CreateTask(ctx, token, reqJSON))
	task, err := st.GetTask(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, task)
	require.Nil(t, task.Response)
	require.NoError(t, st.SaveTaskResult(ctx, token, json.RawMessage(`{"info":[]}`)))
	task, err = st.GetTask(ctx, token)
	require.NoError(t, err)
	require.JSONEq(t, `{"info":[]}`, string(task.Response))

	missing, err := st.GetTask(ctx, "11111111-2222-3333-4444-555555555555")
	require.NoError(t, err)
	require.Nil(t, missing)

	// терминалы
	_, err = st.db.Exec(ctx, `INSERT INTO terminals (carrier_id, code, city, address) VALUES
        (3, 'MSK1', 'Москва', 'ул. Складская, 1'),
        (3, 'MSK2', 'Москва', 'ул. Складская, 2'),
        (3, 'SPB1', 'Санкт-Петербург', 'пр. Обуховской Обороны, 10')`)
	require.NoError(t, err)

	terms, err := st.ListTerminals(ctx, 3, "москва")
	require.NoError(t, err)
	require.Len(t, terms, 2)

	term, err := st.GetTerminalByCode(ctx, 3, "SPB1")
	require.NoError(t, err)
	require.NotNil(t, term)
	require.Equal(t, "Санкт-Петербург", term.City)

	// read model заказа
	_, err = st.db.Exec(ctx, `INSERT INTO orders (id, carrier_id, warehouse_num, tk, address, receiver, phone)
        VALUES (555, 3, 1, '', 'г. Москва, ул. Тверская, 1', 'Иванов Иван Иванович', '+79001112233')`)
	require.NoError(t, err)
	_, err = st.db.Exec(ctx, `INSERT INTO order_goods (order_id, idgood, title, price, amount, weight, volume)
        VALUES (555, 7, 'Котёл газовый', 35000, 1, 2.0, 0.05)`)
	require.NoError(t, err)
	_, err = st.db.Exec(ctx, `INSERT INTO warehouses (num, city, address, phone) VALUES (1, 'Москва', 'ул. Складская, 1', '+74950000000')`)
	require.NoError(t, err)

	order, err := st.GetOrder(ctx, 555)
	require.NoError(t, err)
	require.NotNil(t, order)
	require.Equal(t, 3, order.CarrierID)

	goods, err := st.ListOrderGoods(ctx, 555)
	require.NoError(t, err)
	require.Len(t, goods, 1)
	require.Equal(t, "Котёл газовый", goods[0].Title)

	wh, err := st.GetWarehouse(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, wh)
	require.Equal(t, "Москва", wh.City)
}
