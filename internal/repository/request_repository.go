package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/Freeeeeet/local_services/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const requestColumns = `
	id, user_id, visit_type, service_category, title, address, latitude, longitude,
	model_name, symptom, images, expected_fee, duration, scheduled_date::text, scheduled_time,
	personnel_count, description, is_urgent, status, created_at, updated_at`

type RequestRepository struct {
	*base.Repository
}

func NewRequestRepository(pool *pgxpool.Pool) *RequestRepository {
	return &RequestRepository{Repository: base.NewRepository(pool)}
}

func scanRequest(row pgx.Row) (*model.Request, error) {
	var req model.Request
	err := row.Scan(
		&req.ID,
		&req.UserID,
		&req.VisitType,
		&req.ServiceCategory,
		&req.Title,
		&req.Address,
		&req.Latitude,
		&req.Longitude,
		&req.ModelName,
		&req.Symptom,
		&req.Images,
		&req.ExpectedFee,
		&req.Duration,
		&req.ScheduledDate,
		&req.ScheduledTime,
		&req.PersonnelCount,
		&req.Description,
		&req.IsUrgent,
		&req.Status,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *RequestRepository) list(ctx context.Context, what, query string, args ...interface{}) ([]*model.Request, error) {
	rows, err := r.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	var requests []*model.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}

	return requests, nil
}

// Create создаёт новую заявку
func (r *RequestRepository) Create(ctx context.Context, req *model.Request) error {
	query := `
		INSERT INTO requests (
			user_id, visit_type, service_category, title, address, latitude, longitude,
			model_name, symptom, images, expected_fee, duration, scheduled_date, scheduled_time,
			personnel_count, description, is_urgent, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::date, $14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at
	`

	images := req.Images
	if images == nil {
		images = []string{}
	}

	err := r.QueryRow(
		ctx, query,
		req.UserID,
		req.VisitType,
		req.ServiceCategory,
		req.Title,
		req.Address,
		req.Latitude,
		req.Longitude,
		req.ModelName,
		req.Symptom,
		images,
		req.ExpectedFee,
		req.Duration,
		req.ScheduledDate,
		req.ScheduledTime,
		req.PersonnelCount,
		req.Description,
		req.IsUrgent,
		req.Status,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	return nil
}

// GetByID получает заявку по ID
func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`

	req, err := scanRequest(r.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get request by id: %w", err)
	}

	return req, nil
}

// ListActiveWithLocation заявки в работе, у которых есть координаты
func (r *RequestRepository) ListActiveWithLocation(ctx context.Context) ([]*model.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE status IN ('pending', 'applied', 'accepted')
		  AND latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY created_at DESC
	`
	return r.list(ctx, "list active requests", query)
}

// ListCompletedWithLocationSince выполненные заявки с координатами, обновлённые после since
func (r *RequestRepository) ListCompletedWithLocationSince(ctx context.Context, since time.Time) ([]*model.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE status = 'completed'
		  AND updated_at >= $1
		  AND latitude IS NOT NULL AND longitude IS NOT NULL
		ORDER BY updated_at DESC
	`
	return r.list(ctx, "list completed requests", query, since)
}

// ListByOwner заявки пользователя
func (r *RequestRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, "list requests by owner", query, ownerID)
}

// UpdateStatus обновляет статус заявки
func (r *RequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.RequestStatus) error {
	query := `
		UPDATE requests
		SET status = $1, updated_at = now()
		WHERE id = $2
	`

	affected, err := r.ExecAffected(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("request not found")
	}

	return nil
}
