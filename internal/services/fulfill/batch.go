package fulfill

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/artem12345-png/tkfulfill/internal/models"
	"github.com/artem12345-png/tkfulfill/internal/pdf"
)

type taskStore interface {
	CreateTask(ctx context.Context, token string, request json.RawMessage) error
	SaveTaskResult(ctx context.Context, token string, response json.RawMessage) error
	GetTask(ctx context.Context, token string) (*models.BatchTask, error)
}

// TaskState — состояние отложенной пакетной заявки.
type TaskState int

const (
	TaskNotFound TaskState = iota
	TaskPending
	TaskDone
)

// Handler обрабатывает пакет заказов одной ТК.
type Handler struct {
	iterator *Iterator
	tasks    taskStore

	publicDir    string
	syncTimeout  time.Duration
	asyncTimeout time.Duration
	concurrency  int

	log *slog.Logger
}

func NewHandler(iterator *Iterator, tasks taskStore, publicDir string,
	syncTimeout, asyncTimeout time.Duration, concurrency int, log *slog.Logger) *Handler {
	if concurrency <= 0 {
		concurrency = 4
	}
	if syncTimeout <= 0 {
		syncTimeout = 15 * time.Second
	}
	if asyncTimeout <= 0 {
		asyncTimeout = 60 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		iterator:     iterator,
		tasks:        tasks,
		publicDir:    publicDir,
		syncTimeout:  syncTimeout,
		asyncTimeout: asyncTimeout,
		concurrency:  concurrency,
		log:          log,
	}
}

// HandleSync обрабатывает пакет и собирает агрегированный ответ.
// info сохраняет порядок заказов из запроса. Ошибка возвращается только
// в строгом (тестовом) режиме итератора.
func (h *Handler) HandleSync(ctx context.Context, spec *Spec, req models.CreateApplicationRequest, timeout time.Duration) (models.CreateApplicationResponse, error) {
	if timeout <= 0 {
		timeout = h.syncTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]Iteration, len(req.Arr))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.concurrency)
	for i, params := range req.Arr {
		g.Go(func() error {
			iter, err := h.iterator.Iterate(gctx, spec, params, req.Test)
			results[i] = iter
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return models.CreateApplicationResponse{}, err
	}

	var resp models.CreateApplicationResponse
	var pdfInfo, pdfCargo [][]byte
	successes, withPDF := 0, 0
	for i := range results {
		item := results[i]
		// заказ мог не успеть обработаться до батчевого таймаута
		if item.Info.Error == "" && item.Info.TkNum == "" && !item.Success {
			item.Info.Error = "Ошибка сервиса"
		}
		resp.Info = append(resp.Info, item.Info)
		if !item.Success {
			continue
		}
		successes++
		if item.Info.Error == "" && len(item.PDFInfo) > 0 && len(item.PDFCargo) > 0 {
			withPDF++
			pdfInfo = append(pdfInfo, item.PDFInfo)
			pdfCargo = append(pdfCargo, item.PDFCargo)
		}
	}

	if withPDF > 0 {
		if err := h.mergeAndSave(&resp, spec.Code, pdfInfo, pdfCargo); err != nil {
			h.log.Error("склейка pdf", "carrier", spec.Code, "err", err)
			resp.Error = "Заявка создана. " +
				"Сервер по обработке pdf в данный момент недоступен. " +
				"Вы можете посмотреть файлы в личном кабинете "
		}
	}
	if resp.Error == "" && withPDF != successes {
		resp.Error = fmt.Sprintf("PDF созданы для %d заказов из %d успешно созданных. ", withPDF, successes)
	}
	return resp, nil
}

func (h *Handler) mergeAndSave(resp *models.CreateApplicationResponse, carrierCode string, pdfInfo, pdfCargo [][]byte) error {
	merged, err := pdf.Merge(pdfInfo)
	if err != nil {
		return err
	}
	if resp.File, err = pdf.SaveDoc(h.publicDir, carrierCode, "info", merged); err != nil {
		return err
	}

	merged, err = pdf.Merge(pdfCargo)
	if err != nil {
		return err
	}
	resp.FileCargo, err = pdf.SaveDoc(h.publicDir, carrierCode, "cargo", merged)
	return err
}

// HandleAsync откладывает пакет в фон и сразу возвращает токен для опроса.
func (h *Handler) HandleAsync(ctx context.Context, spec *Spec, req models.CreateApplicationRequest) (string, error) {
	token := uuid.NewString()
	reqRaw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	if err := h.tasks.CreateTask(ctx, token, reqRaw); err != nil {
		return "", err
	}

	// обработка переживает исходный http-запрос
	go func() {
		bctx, cancel := context.WithTimeout(context.Background(), h.asyncTimeout+5*time.Second)
		defer cancel()

		resp, err := h.HandleSync(bctx, spec, req, h.asyncTimeout)
		if err != nil {
			resp = models.CreateApplicationResponse{Error: "Ошибка сервиса"}
		}
		respRaw, merr := json.Marshal(resp)
		if merr != nil {
			respRaw = []byte(`{"error":"Ошибка сервиса"}`)
		}
		if err := h.tasks.SaveTaskResult(bctx, token, respRaw); err != nil {
			h.log.Error("сохранение результата фоновой задачи", "token", token, "err", err)
		}
	}()
	return token, nil
}

// CheckAsync возвращает состояние фоновой задачи и, если она завершена,
// её результат.
func (h *Handler) CheckAsync(ctx context.Context, token string) (json.RawMessage, TaskState, error) {
	task, err := h.tasks.GetTask(ctx, token)
	if err != nil {
		return nil, TaskNotFound, err
	}
	if task == nil {
		return nil, TaskNotFound, nil
	}
	if task.Response == nil {
		return nil, TaskPending, nil
	}
	return task.Response, TaskDone, nil
}
