package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/Freeeeeet/local_services/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ApplicationRepository struct {
	*base.Repository
}

func NewApplicationRepository(pool *pgxpool.Pool) *ApplicationRepository {
	return &ApplicationRepository{Repository: base.NewRepository(pool)}
}

// Create создаёт отклик. Повторный отклик на ту же заявку возвращает base.ErrUniqueViolation
func (r *ApplicationRepository) Create(ctx context.Context, app *model.RequestApplication) error {
	query := `
		INSERT INTO request_applications (request_id, applicant_id, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	err := r.QueryRow(ctx, query, app.RequestID, app.ApplicantID, app.Status).
		Scan(&app.ID, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if base.IsUniqueViolation(err) {
			return fmt.Errorf("create application: %w", base.ErrUniqueViolation)
		}
		return fmt.Errorf("create application: %w", err)
	}

	return nil
}

// GetByID получает отклик по ID
func (r *ApplicationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.RequestApplication, error) {
	query := `
		SELECT id, request_id, applicant_id, status, created_at, updated_at
		FROM request_applications
		WHERE id = $1
	`

	var app model.RequestApplication
	err := r.QueryRow(ctx, query, id).Scan(
		&app.ID,
		&app.RequestID,
		&app.ApplicantID,
		&app.Status,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get application by id: %w", err)
	}

	return &app, nil
}

// UpdateStatus обновляет статус отклика
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ApplicationStatus) error {
	query := `
		UPDATE request_applications
		SET status = $1, updated_at = now()
		WHERE id = $2
	`

	affected, err := r.ExecAffected(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("application not found")
	}

	return nil
}

// DeleteByApplicant удаляет отклик, только если он принадлежит applicantID
func (r *ApplicationRepository) DeleteByApplicant(ctx context.Context, id, applicantID uuid.UUID) (bool, error) {
	query := `DELETE FROM request_applications WHERE id = $1 AND applicant_id = $2`

	affected, err := r.ExecAffected(ctx, query, id, applicantID)
	if err != nil {
		return false, fmt.Errorf("delete application: %w", err)
	}

	return affected > 0, nil
}

// CountByRequest количество откликов на заявку
func (r *ApplicationRepository) CountByRequest(ctx context.Context, requestID uuid.UUID) (int, error) {
	query := `SELECT count(*) FROM request_applications WHERE request_id = $1`

	var count int
	if err := r.QueryRow(ctx, query, requestID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count applications: %w", err)
	}

	return count, nil
}

// ListAcceptedByRequest принятые отклики на заявку
func (r *ApplicationRepository) ListAcceptedByRequest(ctx context.Context, requestID uuid.UUID) ([]*model.RequestApplication, error) {
	query := `
		SELECT id, request_id, applicant_id, status, created_at, updated_at
		FROM request_applications
		WHERE request_id = $1 AND status = 'accepted'
	`

	rows, err := r.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list accepted applications: %w", err)
	}
	defer rows.Close()

	var apps []*model.RequestApplication
	for rows.Next() {
		var app model.RequestApplication
		err := rows.Scan(&app.ID, &app.RequestID, &app.ApplicantID, &app.Status, &app.CreatedAt, &app.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, &app)
	}

	return apps, rows.Err()
}

// ListByApplicant "мои отклики" вместе с заявками
func (r *ApplicationRepository) ListByApplicant(ctx context.Context, applicantID uuid.UUID) ([]*model.RequestApplication, error) {
	query := `
		SELECT a.id, a.request_id, a.applicant_id, a.status, a.created_at, a.updated_at,
		       ` + prefixed("r", requestColumns) + `
		FROM request_applications a
		JOIN requests r ON r.id = a.request_id
		WHERE a.applicant_id = $1
		ORDER BY a.created_at DESC
	`

	rows, err := r.Query(ctx, query, applicantID)
	if err != nil {
		return nil, fmt.Errorf("list applications by applicant: %w", err)
	}
	defer rows.Close()

	var apps []*model.RequestApplication
	for rows.Next() {
		var app model.RequestApplication
		var req model.Request
		err := rows.Scan(
			&app.ID, &app.RequestID, &app.ApplicantID, &app.Status, &app.CreatedAt, &app.UpdatedAt,
			&req.ID, &req.UserID, &req.VisitType, &req.ServiceCategory, &req.Title, &req.Address,
			&req.Latitude, &req.Longitude, &req.ModelName, &req.Symptom, &req.Images, &req.ExpectedFee,
			&req.Duration, &req.ScheduledDate, &req.ScheduledTime, &req.PersonnelCount, &req.Description,
			&req.IsUrgent, &req.Status, &req.CreatedAt, &req.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		app.Request = &req
		apps = append(apps, &app)
	}

	return apps, rows.Err()
}

// ListForOwner отклики на заявки владельца вместе с профилями исполнителей
func (r *ApplicationRepository) ListForOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.RequestApplication, error) {
	query := `
		SELECT a.id, a.request_id, a.applicant_id, a.status, a.created_at, a.updated_at,
		       r.title, r.status,
		       coalesce(p.nickname, ''), p.business_card_url
		FROM request_applications a
		JOIN requests r ON r.id = a.request_id
		LEFT JOIN profiles p ON p.id = a.applicant_id
		WHERE r.user_id = $1
		ORDER BY a.created_at DESC
	`

	rows, err := r.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list applications for owner: %w", err)
	}
	defer rows.Close()

	var apps []*model.RequestApplication
	for rows.Next() {
		var app model.RequestApplication
		req := model.Request{UserID: ownerID}
		var profile model.Profile
		err := rows.Scan(
			&app.ID, &app.RequestID, &app.ApplicantID, &app.Status, &app.CreatedAt, &app.UpdatedAt,
			&req.Title, &req.Status,
			&profile.Nickname, &profile.BusinessCardURL,
		)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		req.ID = app.RequestID
		profile.ID = app.ApplicantID
		app.Request = &req
		app.Applicant = &profile
		apps = append(apps, &app)
	}

	return apps, rows.Err()
}
