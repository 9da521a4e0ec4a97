package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Freeeeeet/local_services/internal/auth"
	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/Freeeeeet/local_services/internal/realtime"
	"github.com/Freeeeeet/local_services/internal/repository/base"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ApplicationService жизненный цикл откликов: отклик, принятие, отклонение, отзыв.
// Держит два списка текущего пользователя: "мои отклики" и "отклики на мои заявки"
type ApplicationService struct {
	requests RequestStore
	apps     ApplicationStore
	profiles ProfileStore
	notifier *NotificationService
	session  *auth.Session
	hub      realtime.Subscriber
	logger   *zap.Logger

	mu          sync.Mutex
	generation  uint64
	mine        []*model.RequestApplication
	received    []*model.RequestApplication
	sub         *realtime.Subscription
	unsubscribe func()
}

func NewApplicationService(
	requests RequestStore,
	apps ApplicationStore,
	profiles ProfileStore,
	notifier *NotificationService,
	session *auth.Session,
	hub realtime.Subscriber,
	logger *zap.Logger,
) *ApplicationService {
	return &ApplicationService{
		requests: requests,
		apps:     apps,
		profiles: profiles,
		notifier: notifier,
		session:  session,
		hub:      hub,
		logger:   logger,
	}
}

// Start подписывается на любые изменения откликов и на смену пользователя.
// Любое событие вызывает полную перезагрузку обоих списков
func (s *ApplicationService) Start(ctx context.Context) error {
	sub := s.hub.Subscribe(model.TableApplications, nil, func(model.ChangeEvent) {
		if err := s.Refresh(ctx); err != nil {
			s.logger.Error("Failed to refetch applications after change", zap.Error(err))
		}
	})
	unsubscribe := s.session.Subscribe(func(*auth.User) {
		s.mu.Lock()
		s.generation++
		s.mu.Unlock()

		if err := s.Refresh(ctx); err != nil {
			s.logger.Error("Failed to refetch applications after user change", zap.Error(err))
		}
	})

	s.mu.Lock()
	oldSub, oldUnsubscribe := s.sub, s.unsubscribe
	s.sub, s.unsubscribe = sub, unsubscribe
	s.mu.Unlock()

	oldSub.Unsubscribe()
	if oldUnsubscribe != nil {
		oldUnsubscribe()
	}

	return s.Refresh(ctx)
}

// Close снимает подписки
func (s *ApplicationService) Close() {
	s.mu.Lock()
	sub, unsubscribe := s.sub, s.unsubscribe
	s.sub, s.unsubscribe = nil, nil
	s.mu.Unlock()

	sub.Unsubscribe()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// Refresh полностью перезагружает оба списка. Результат загрузки, начатой
// для прежнего пользователя, отбрасывается
func (s *ApplicationService) Refresh(ctx context.Context) error {
	s.mu.Lock()
	generation := s.generation
	s.mu.Unlock()

	user := s.session.User()
	if user == nil {
		s.mu.Lock()
		if s.generation == generation {
			s.mine, s.received = nil, nil
		}
		s.mu.Unlock()
		return nil
	}

	mine, err := s.apps.ListByApplicant(ctx, user.ID)
	if err != nil {
		s.logger.Error("Failed to load my applications", zap.Error(err))
		return fmt.Errorf("load my applications: %w", err)
	}

	received, err := s.apps.ListForOwner(ctx, user.ID)
	if err != nil {
		s.logger.Error("Failed to load received applications", zap.Error(err))
		return fmt.Errorf("load received applications: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != generation {
		return nil
	}
	if current := s.session.User(); current == nil || current.ID != user.ID {
		return nil
	}
	s.mine, s.received = mine, received

	return nil
}

func (s *ApplicationService) refreshAfterMutation(ctx context.Context) {
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("Failed to refetch applications after mutation", zap.Error(err))
	}
}

// MyApplications отклики текущего пользователя
func (s *ApplicationService) MyApplications() []*model.RequestApplication {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.RequestApplication(nil), s.mine...)
}

// ReceivedApplications отклики на заявки текущего пользователя
func (s *ApplicationService) ReceivedApplications() []*model.RequestApplication {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.RequestApplication(nil), s.received...)
}

// HasApplied откликался ли пользователь на заявку
func (s *ApplicationService) HasApplied(requestID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, app := range s.mine {
		if app.RequestID == requestID {
			return true
		}
	}
	return false
}

// Apply откликается на заявку от имени текущего пользователя
func (s *ApplicationService) Apply(ctx context.Context, requestID uuid.UUID) (*model.RequestApplication, error) {
	user, err := s.session.RequireUser()
	if err != nil {
		return nil, err
	}

	// Без визитки откликаться нельзя
	profile, err := s.profiles.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if !profile.HasBusinessCard() {
		return nil, ErrBusinessCardRequired
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if req.UserID == user.ID {
		return nil, ErrOwnRequest
	}
	if req.Status != model.RequestStatusPending && req.Status != model.RequestStatusApplied {
		return nil, ErrRequestNotOpen
	}

	app := &model.RequestApplication{
		RequestID:   requestID,
		ApplicantID: user.ID,
		Status:      model.ApplicationStatusPending,
	}

	if err := s.apps.Create(ctx, app); err != nil {
		if base.IsUniqueViolation(err) {
			return nil, ErrAlreadyApplied
		}
		return nil, fmt.Errorf("create application: %w", err)
	}

	if err := s.requests.UpdateStatus(ctx, requestID, model.RequestStatusApplied); err != nil {
		s.refreshAfterMutation(ctx)
		return nil, fmt.Errorf("update request status: %w", err)
	}

	s.notifier.CreateNotification(ctx, req.UserID, model.NotificationApplicationReceived,
		"New application",
		fmt.Sprintf("A provider applied to your request %q", req.Title),
		&req.ID,
	)

	s.logger.Info("Applied to request",
		zap.String("application_id", app.ID.String()),
		zap.String("request_id", requestID.String()),
		zap.String("applicant_id", user.ID.String()),
	)

	s.refreshAfterMutation(ctx)

	return app, nil
}

// ownedRequest загружает заявку и проверяет, что текущий пользователь её владелец
func (s *ApplicationService) ownedRequest(ctx context.Context, user *auth.User, requestID uuid.UUID) (*model.Request, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	if req == nil {
		return nil, ErrRequestNotFound
	}
	if req.UserID != user.ID {
		return nil, ErrNotRequestOwner
	}
	return req, nil
}

// AcceptApplication принимает отклик и переводит заявку в accepted
func (s *ApplicationService) AcceptApplication(ctx context.Context, applicationID, requestID uuid.UUID) error {
	user, err := s.session.RequireUser()
	if err != nil {
		return err
	}

	req, err := s.ownedRequest(ctx, user, requestID)
	if err != nil {
		return err
	}

	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return fmt.Errorf("get application: %w", err)
	}
	if app == nil || app.RequestID != requestID {
		return ErrApplicationNotFound
	}

	if err := s.apps.UpdateStatus(ctx, applicationID, model.ApplicationStatusAccepted); err != nil {
		return fmt.Errorf("update application status: %w", err)
	}

	if err := s.requests.UpdateStatus(ctx, requestID, model.RequestStatusAccepted); err != nil {
		s.refreshAfterMutation(ctx)
		return fmt.Errorf("update request status: %w", err)
	}

	s.notifier.CreateNotification(ctx, app.ApplicantID, model.NotificationApplicationAccepted,
		"Application accepted",
		fmt.Sprintf("Your application to %q was accepted", req.Title),
		&req.ID,
	)

	s.logger.Info("Application accepted",
		zap.String("application_id", applicationID.String()),
		zap.String("request_id", requestID.String()),
	)

	s.refreshAfterMutation(ctx)

	return nil
}

// RejectApplication отклоняет отклик. Заявка не меняется, уведомление не создаётся
func (s *ApplicationService) RejectApplication(ctx context.Context, applicationID uuid.UUID) error {
	user, err := s.session.RequireUser()
	if err != nil {
		return err
	}

	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return fmt.Errorf("get application: %w", err)
	}
	if app == nil {
		return ErrApplicationNotFound
	}

	if _, err := s.ownedRequest(ctx, user, app.RequestID); err != nil {
		return err
	}

	if err := s.apps.UpdateStatus(ctx, applicationID, model.ApplicationStatusRejected); err != nil {
		return fmt.Errorf("update application status: %w", err)
	}

	s.logger.Info("Application rejected", zap.String("application_id", applicationID.String()))

	s.refreshAfterMutation(ctx)

	return nil
}

// CancelApplication отзывает свой отклик. Если откликов на заявку не осталось,
// заявка возвращается в pending
func (s *ApplicationService) CancelApplication(ctx context.Context, applicationID, requestID uuid.UUID) error {
	user, err := s.session.RequireUser()
	if err != nil {
		return err
	}

	// Заявку берём из строки отклика: чужой requestID не должен сбросить чужую заявку
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return fmt.Errorf("get application: %w", err)
	}
	if app == nil || app.ApplicantID != user.ID || app.RequestID != requestID {
		return ErrApplicationNotFound
	}

	deleted, err := s.apps.DeleteByApplicant(ctx, applicationID, user.ID)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	if !deleted {
		return ErrApplicationNotFound
	}

	remaining, err := s.apps.CountByRequest(ctx, requestID)
	if err != nil {
		s.refreshAfterMutation(ctx)
		return fmt.Errorf("count applications: %w", err)
	}

	if remaining == 0 {
		if err := s.requests.UpdateStatus(ctx, requestID, model.RequestStatusPending); err != nil {
			s.refreshAfterMutation(ctx)
			return fmt.Errorf("reset request status: %w", err)
		}
	}

	s.logger.Info("Application cancelled",
		zap.String("application_id", applicationID.String()),
		zap.String("request_id", requestID.String()),
		zap.Int("remaining", remaining),
	)

	s.refreshAfterMutation(ctx)

	return nil
}
