// Package fulfillapi — HTTP-слой создания заявок в ТК.
package fulfillapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/artem12345-png/tkfulfill/internal/models"
	"github.com/artem12345-png/tkfulfill/internal/services/fulfill"
)

type API struct {
	handler *fulfill.Handler

	authToken string
	// выключенные в конфиге ТК; заявки по ним не принимаются
	carriersOff map[string]bool
	testMode    bool

	log *slog.Logger
}

func New(handler *fulfill.Handler, authToken string, carriersOff map[string]bool,
	testMode bool, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	if carriersOff == nil {
		carriersOff = map[string]bool{}
	}
	return &API{
		handler:     handler,
		authToken:   authToken,
		carriersOff: carriersOff,
		testMode:    testMode,
		log:         log,
	}
}

func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/self_check", a.selfCheck)

	r.Group(func(r chi.Router) {
		r.Use(a.auth)
		r.Post("/{carrier}/create_application/", a.createApplication)
		r.Post("/{carrier}/create_application_async/", a.createApplicationAsync)
		r.Post("/{carrier}/check_application_async/", a.checkApplicationAsync)
	})
	return r
}

// auth — статический bearer-токен; интеграция внутренняя, без пользователей.
func (a *API) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if a.authToken == "" || token != a.authToken {
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Not authenticated"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) selfCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "Ok"})
}

func (a *API) createApplication(w http.ResponseWriter, r *http.Request) {
	spec, req, ok := a.parseCreate(w, r)
	if !ok {
		return
	}

	resp, err := a.handler.HandleSync(r.Context(), spec, req, 0)
	if err != nil {
		a.log.Error("создание заявок", "carrier", spec.Code, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Ошибка сервиса"})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) createApplicationAsync(w http.ResponseWriter, r *http.Request) {
	spec, req, ok := a.parseCreate(w, r)
	if !ok {
		return
	}

	token, err := a.handler.HandleAsync(r.Context(), spec, req)
	if err != nil {
		a.log.Error("создание отложенной заявки", "carrier", spec.Code, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Ошибка сервиса"})
		return
	}
	writeJSON(w, http.StatusOK, models.AsyncToken{Token: token})
}

// checkApplicationAsync: 404 — токен неизвестен, 201 — ещё обрабатывается,
// 200 — готовый агрегированный ответ. Токен глобален, сегмент ТК в пути
// только валидируется.
func (a *API) checkApplicationAsync(w http.ResponseWriter, r *http.Request) {
	if _, ok := fulfill.Specs[chi.URLParam(r, "carrier")]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Неизвестная ТК"})
		return
	}

	var body models.AsyncToken
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "token обязателен"})
		return
	}

	raw, state, err := a.handler.CheckAsync(r.Context(), body.Token)
	if err != nil {
		a.log.Error("проверка отложенной заявки", "token", body.Token, "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Ошибка сервиса"})
		return
	}
	switch state {
	case fulfill.TaskNotFound:
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Задача не найдена"})
	case fulfill.TaskPending:
		writeJSON(w, http.StatusCreated, map[string]string{"detail": "Заявки обрабатываются"})
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	}
}

func (a *API) parseCreate(w http.ResponseWriter, r *http.Request) (*fulfill.Spec, models.CreateApplicationRequest, bool) {
	var req models.CreateApplicationRequest

	code := chi.URLParam(r, "carrier")
	spec, ok := fulfill.Specs[code]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Неизвестная ТК " + code})
		return nil, req, false
	}
	if a.carriersOff[code] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "ТК " + spec.Name + " отключена"})
		return nil, req, false
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "невалидный json"})
		return nil, req, false
	}
	if len(req.Arr) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "arr пуст"})
		return nil, req, false
	}
	// предварительные заявки (без забора груза) сервис не оформляет
	if !req.CargoPickup {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Метод не реализован для предварительной заявки"})
		return nil, req, false
	}
	// тестовый режим сервиса заражает все запросы
	req.Test = req.Test || a.testMode
	return spec, req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
