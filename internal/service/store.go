package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/google/uuid"
)

// RequestStore заявки в хранилище (реализация: repository.RequestRepository)
type RequestStore interface {
	Create(ctx context.Context, req *model.Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Request, error)
	ListActiveWithLocation(ctx context.Context) ([]*model.Request, error)
	ListCompletedWithLocationSince(ctx context.Context, since time.Time) ([]*model.Request, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.Request, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.RequestStatus) error
}

// ApplicationStore отклики в хранилище (реализация: repository.ApplicationRepository)
type ApplicationStore interface {
	Create(ctx context.Context, app *model.RequestApplication) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.RequestApplication, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ApplicationStatus) error
	DeleteByApplicant(ctx context.Context, id, applicantID uuid.UUID) (bool, error)
	CountByRequest(ctx context.Context, requestID uuid.UUID) (int, error)
	ListAcceptedByRequest(ctx context.Context, requestID uuid.UUID) ([]*model.RequestApplication, error)
	ListByApplicant(ctx context.Context, applicantID uuid.UUID) ([]*model.RequestApplication, error)
	ListForOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.RequestApplication, error)
}

// NotificationStore уведомления в хранилище (реализация: repository.NotificationRepository)
type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) error
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	ListPage(ctx context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*model.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

// ProfileStore профили в хранилище (реализация: repository.ProfileRepository)
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	UpsertBusinessCard(ctx context.Context, userID uuid.UUID, url string) error
	UpsertNickname(ctx context.Context, userID uuid.UUID, nickname string) error
}
