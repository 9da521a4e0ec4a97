package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Freeeeeet/local_services/internal/auth"
	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestDraft данные формы создания заявки
type RequestDraft struct {
	VisitType       string
	ServiceCategory string
	Title           string
	Address         string
	Latitude        *float64
	Longitude       *float64
	ModelName       *string
	Symptom         *string
	Images          []string
	ExpectedFee     int64
	Duration        string
	ScheduledDate   string // YYYY-MM-DD
	ScheduledTime   string // HH:MM
	PersonnelCount  int
	Description     string
	IsUrgent        bool
}

// Validate проверяет обязательные поля формы
func (d *RequestDraft) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"visit_type", d.VisitType},
		{"service_category", d.ServiceCategory},
		{"title", d.Title},
		{"address", d.Address},
		{"scheduled_date", d.ScheduledDate},
		{"scheduled_time", d.ScheduledTime},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Reason: "is required"}
		}
	}

	if _, err := time.Parse(time.DateOnly, d.ScheduledDate); err != nil {
		return &ValidationError{Field: "scheduled_date", Reason: "must be YYYY-MM-DD"}
	}
	if _, err := time.Parse("15:04", d.ScheduledTime); err != nil {
		return &ValidationError{Field: "scheduled_time", Reason: "must be HH:MM"}
	}

	if d.ExpectedFee < 0 {
		return &ValidationError{Field: "expected_fee", Reason: "must not be negative"}
	}
	if d.PersonnelCount < 1 {
		return &ValidationError{Field: "personnel_count", Reason: "must be at least 1"}
	}

	if (d.Latitude == nil) != (d.Longitude == nil) {
		return &ValidationError{Field: "location", Reason: "latitude and longitude must be set together"}
	}
	if d.Latitude != nil && (*d.Latitude < -90 || *d.Latitude > 90) {
		return &ValidationError{Field: "latitude", Reason: "out of range"}
	}
	if d.Longitude != nil && (*d.Longitude < -180 || *d.Longitude > 180) {
		return &ValidationError{Field: "longitude", Reason: "out of range"}
	}

	return nil
}

// RequestService создание и завершение заявок
type RequestService struct {
	requests RequestStore
	apps     ApplicationStore
	notifier *NotificationService
	session  *auth.Session
	logger   *zap.Logger
}

func NewRequestService(
	requests RequestStore,
	apps ApplicationStore,
	notifier *NotificationService,
	session *auth.Session,
	logger *zap.Logger,
) *RequestService {
	return &RequestService{
		requests: requests,
		apps:     apps,
		notifier: notifier,
		session:  session,
		logger:   logger,
	}
}

// CreateRequest публикует заявку текущего пользователя
func (s *RequestService) CreateRequest(ctx context.Context, draft RequestDraft) (*model.Request, error) {
	user, err := s.session.RequireUser()
	if err != nil {
		return nil, err
	}

	if err := draft.Validate(); err != nil {
		return nil, err
	}

	req := &model.Request{
		UserID:          user.ID,
		VisitType:       draft.VisitType,
		ServiceCategory: draft.ServiceCategory,
		Title:           strings.TrimSpace(draft.Title),
		Address:         strings.TrimSpace(draft.Address),
		Latitude:        draft.Latitude,
		Longitude:       draft.Longitude,
		ModelName:       draft.ModelName,
		Symptom:         draft.Symptom,
		Images:          draft.Images,
		ExpectedFee:     draft.ExpectedFee,
		Duration:        draft.Duration,
		ScheduledDate:   draft.ScheduledDate,
		ScheduledTime:   draft.ScheduledTime,
		PersonnelCount:  draft.PersonnelCount,
		Description:     draft.Description,
		IsUrgent:        draft.IsUrgent,
		Status:          model.RequestStatusPending,
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.logger.Info("Request created",
		zap.String("request_id", req.ID.String()),
		zap.String("user_id", user.ID.String()),
		zap.String("category", req.ServiceCategory),
		zap.Bool("urgent", req.IsUrgent),
	)

	return req, nil
}

// MyRequests заявки текущего пользователя
func (s *RequestService) MyRequests(ctx context.Context) ([]*model.Request, error) {
	user, err := s.session.RequireUser()
	if err != nil {
		return nil, err
	}
	return s.requests.ListByOwner(ctx, user.ID)
}

// CompleteRequest завершает заявку и уведомляет принятых исполнителей
func (s *RequestService) CompleteRequest(ctx context.Context, requestID uuid.UUID) error {
	user, err := s.session.RequireUser()
	if err != nil {
		return err
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return ErrRequestNotFound
	}
	if req.UserID != user.ID {
		return ErrNotRequestOwner
	}
	if req.Status == model.RequestStatusCompleted {
		return nil
	}

	if err := s.requests.UpdateStatus(ctx, requestID, model.RequestStatusCompleted); err != nil {
		return fmt.Errorf("update request status: %w", err)
	}

	accepted, err := s.apps.ListAcceptedByRequest(ctx, requestID)
	if err != nil {
		// Уведомления best-effort, завершение уже сохранено
		s.logger.Error("Failed to list accepted applications", zap.Error(err))
		return nil
	}

	for _, app := range accepted {
		s.notifier.CreateNotification(ctx, app.ApplicantID, model.NotificationRequestCompleted,
			"Request completed",
			fmt.Sprintf("The request %q was marked as completed", req.Title),
			&req.ID,
		)
	}

	s.logger.Info("Request completed",
		zap.String("request_id", requestID.String()),
		zap.Int("notified", len(accepted)),
	)

	return nil
}
