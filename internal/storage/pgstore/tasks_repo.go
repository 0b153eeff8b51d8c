package pgstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/artem12345-png/tkfulfill/internal/models"
)

func (s *Storage) CreateTask(ctx context.Context, token string, request json.RawMessage) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO batch_tasks (token, request, created_at) VALUES ($1,$2,$3)
`, token, request, time.Now().UTC())
	return errors.Wrap(err, "insert batch task")
}

func (s *Storage) SaveTaskResult(ctx context.Context, token string, response json.RawMessage) error {
	_, err := s.db.Exec(ctx, `
UPDATE batch_tasks SET response = $2 WHERE token = $1
`, token, response)
	return errors.Wrap(err, "save batch task result")
}

// GetTask возвращает nil, nil если задачи с таким токеном нет.
func (s *Storage) GetTask(ctx context.Context, token string) (*models.BatchTask, error) {
	t := &models.BatchTask{Token: token}
	err := s.db.QueryRow(ctx, `
SELECT request, response, created_at FROM batch_tasks WHERE token = $1
`, token).Scan(&t.Request, &t.Response, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "select batch task")
	}
	return t, nil
}
