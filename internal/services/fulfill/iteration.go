package fulfill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/artem12345-png/tkfulfill/internal/integrations/carrier"
	"github.com/artem12345-png/tkfulfill/internal/models"
	"github.com/artem12345-png/tkfulfill/internal/pdf"
)

// Iteration — результат обработки одного заказа. Живёт в рамках одного
// батча, персистентна только запись submissions.
type Iteration struct {
	Info     models.ApplicationInfo
	Success  bool
	PDFInfo  []byte
	PDFCargo []byte
}

type iterStore interface {
	GetSubmission(ctx context.Context, orderID int64) (*models.Submission, error)
	InsertSubmissionIfAbsent(ctx context.Context, sub models.Submission) (*models.Submission, bool, error)
	SaveSubmissionError(ctx context.Context, sub models.Submission) error
	DeleteSubmission(ctx context.Context, orderID int64) error
	UpsertApplication(ctx context.Context, orderID int64, carrierID int, carrierCode, tkNum string) error
}

type orderLocker interface {
	Acquire(ctx context.Context, orderID int64) (release func(), ok bool, err error)
}

// Iterator проводит заказ через fill → submit → persist → pdf.
type Iterator struct {
	store   iterStore
	locker  orderLocker
	filler  *Filler
	clients map[string]carrier.Client

	pdfTries int
	pdfDelay time.Duration
	// в тестовом прогоне неожиданные ошибки роняют весь батч
	strictErrors bool

	log *slog.Logger
}

func NewIterator(store iterStore, locker orderLocker, filler *Filler,
	clients map[string]carrier.Client, strictErrors bool, log *slog.Logger) *Iterator {
	if log == nil {
		log = slog.Default()
	}
	return &Iterator{
		store:        store,
		locker:       locker,
		filler:       filler,
		clients:      clients,
		pdfTries:     3,
		pdfDelay:     time.Second,
		strictErrors: strictErrors,
		log:          log,
	}
}

// Iterate обрабатывает один заказ. Ошибка возвращается только в строгом
// (тестовом) режиме; в остальных случаях любая проблема оседает в Info.Error.
func (it *Iterator) Iterate(ctx context.Context, spec *Spec, params models.OrderParams, test bool) (Iteration, error) {
	iter := Iteration{Info: models.ApplicationInfo{ID: params.ID}}
	log := it.log.With("order_id", params.ID, "carrier", spec.Code)

	// Замок на заказ: конкурентные запросы по одному id выстраиваются
	// в очередь, второй после захвата найдёт готовую запись и не пойдёт в ТК.
	release, err := it.acquireLock(ctx, params.ID)
	if err != nil {
		return it.fail(&iter, log, "Ошибка сервиса", err)
	}
	defer release()

	if params.Force {
		if err := it.store.DeleteSubmission(ctx, params.ID); err != nil {
			return it.fail(&iter, log, "Ошибка сервиса", err)
		}
	}

	client, ok := it.clients[spec.Code]
	if !ok {
		iter.Info.Error = fmt.Sprintf("ТК %s отключена", spec.Name)
		return iter, nil
	}
	app := NewApplication(client)

	sub, err := it.store.GetSubmission(ctx, params.ID)
	if err != nil {
		return it.fail(&iter, log, "Ошибка сервиса", err)
	}
	if sub != nil && !sub.IsError {
		log.Info("параметры заявки загружены из БД")
		app.Load(sub.Response)
	}

	if !app.IsLoaded() {
		payload, err := it.filler.Fill(ctx, spec, params, test)
		if err != nil {
			var fe *FillerError
			var cte *CountTerminalsError
			switch {
			case errors.As(err, &fe):
				iter.Info.Error = fe.Reason
			case errors.As(err, &cte):
				iter.Info.Error = cte.Error()
			default:
				return it.fail(&iter, log, "Ошибка сервиса", err)
			}
			log.Warn("заявка не собрана", "err", iter.Info.Error)
			return iter, nil
		}

		log.Info("заказ отправлен на создание в ТК")
		requestRaw, _ := json.Marshal(params)
		resp, err := app.Create(ctx, payload)
		if err != nil {
			return it.submitError(ctx, &iter, log, spec, requestRaw, payload, err)
		}

		winner, inserted, err := it.store.InsertSubmissionIfAbsent(ctx, models.Submission{
			OrderID:     params.ID,
			CarrierCode: spec.Code,
			Request:     requestRaw,
			Payload:     payload,
			Response:    resp,
		})
		if err != nil {
			return it.fail(&iter, log, "Ошибка сервиса", err)
		}
		if !inserted {
			// конкурент успел раньше: работаем с его ответом ТК
			log.Info("заявка уже создана конкурентным запросом")
			app.Load(winner.Response)
		}
	}

	num, err := app.OrderNum()
	if err != nil {
		return it.fail(&iter, log, "Ошибка сервиса", err)
	}
	iter.Info.TkNum = num
	iter.Success = true

	if !test {
		if err := it.store.UpsertApplication(ctx, params.ID, spec.ID, spec.Code, num); err != nil {
			log.Warn("регистрация заявки для опроса статусов", "err", err)
		}
	}

	it.fetchPDFs(ctx, &iter, log, app, params.ID)
	return iter, nil
}

func (it *Iterator) acquireLock(ctx context.Context, orderID int64) (func(), error) {
	for {
		release, ok, err := it.locker.Acquire(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if ok {
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (it *Iterator) submitError(ctx context.Context, iter *Iteration, log *slog.Logger,
	spec *Spec, requestRaw, payload json.RawMessage, err error) (Iteration, error) {

	var apiErr *carrier.APIError
	var toErr *carrier.TimeoutError
	var msg string
	switch {
	case errors.As(err, &apiErr):
		msg = fmt.Sprintf("не создан по причине ошибки ТК. Ошибка: %s", apiErr.Message)
	case errors.As(err, &toErr):
		msg = fmt.Sprintf("отправлен на обработку, но информацию не удалось получить: %s", toErr.Error())
	default:
		return it.fail(iter, log, "Ошибка сервиса", err)
	}

	log.Error("создание заявки в ТК", "err", err)
	iter.Info.Error = msg

	errResp, _ := json.Marshal(map[string]string{"error": msg})
	if serr := it.store.SaveSubmissionError(ctx, models.Submission{
		OrderID:     iter.Info.ID,
		CarrierCode: spec.Code,
		Request:     requestRaw,
		Payload:     payload,
		Response:    errResp,
	}); serr != nil {
		log.Warn("сохранение ошибочной заявки", "err", serr)
	}
	return *iter, nil
}

// fail — неожиданная ошибка: в строгом режиме пробрасывается и роняет батч,
// в боевом превращается в обезличенное сообщение.
func (it *Iterator) fail(iter *Iteration, log *slog.Logger, msg string, err error) (Iteration, error) {
	log.Error("внутренняя ошибка", "err", err)
	if it.strictErrors {
		return *iter, err
	}
	iter.Info.Error = msg
	return *iter, nil
}

// fetchPDFs забирает накладную и наклейку. Неудача не отменяет успех
// создания заявки, только дописывает ошибку в ответ.
func (it *Iterator) fetchPDFs(ctx context.Context, iter *Iteration, log *slog.Logger, app *Application, orderID int64) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := pdf.WithRetry(it.pdfTries, it.pdfDelay, func() ([]byte, error) {
			return app.GetPDF(gctx, carrier.DocInfo)
		})
		iter.PDFInfo = doc
		return err
	})
	g.Go(func() error {
		doc, err := pdf.WithRetry(it.pdfTries, it.pdfDelay, func() ([]byte, error) {
			return app.GetPDF(gctx, carrier.DocCargo)
		})
		if err != nil {
			return err
		}
		stamped, err := pdf.StampOrderID(doc, orderID)
		if err != nil {
			// наклейка без штампа лучше, чем никакой
			log.Warn("штамп на наклейку", "err", err)
			stamped = doc
		}
		iter.PDFCargo = stamped
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error("получение pdf", "err", err)
		iter.PDFInfo, iter.PDFCargo = nil, nil
		iter.Info.Error = "Не успели создаться pdf, попробуйте позже."
	}
}
