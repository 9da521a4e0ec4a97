package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/Freeeeeet/local_services/internal/realtime"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestFeed держит в памяти заявки для карты и обновляет их по realtime-событиям
type RequestFeed struct {
	store  RequestStore
	hub    realtime.Subscriber
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	requests []*model.Request
	sub      *realtime.Subscription
}

func NewRequestFeed(store RequestStore, hub realtime.Subscriber, logger *zap.Logger) *RequestFeed {
	return &RequestFeed{
		store:  store,
		hub:    hub,
		logger: logger,
		now:    time.Now,
	}
}

// Start подписывается на изменения заявок (старая подписка снимается) и загружает ленту
func (f *RequestFeed) Start(ctx context.Context) error {
	sub := f.hub.Subscribe(model.TableRequests, nil, f.handleEvent)

	f.mu.Lock()
	old := f.sub
	f.sub = sub
	f.mu.Unlock()
	old.Unsubscribe()

	return f.Load(ctx)
}

// Close снимает подписку
func (f *RequestFeed) Close() {
	f.mu.Lock()
	sub := f.sub
	f.sub = nil
	f.mu.Unlock()
	sub.Unsubscribe()
}

// Load загружает активные заявки и выполненные за последние сутки.
// При ошибке прежний список сохраняется, повторить можно вызовом Load
func (f *RequestFeed) Load(ctx context.Context) error {
	active, err := f.store.ListActiveWithLocation(ctx)
	if err != nil {
		f.logger.Error("Failed to load active requests", zap.Error(err))
		return fmt.Errorf("load active requests: %w", err)
	}

	since := f.now().Add(-model.CompletedVisibilityWindow)
	completed, err := f.store.ListCompletedWithLocationSince(ctx, since)
	if err != nil {
		f.logger.Error("Failed to load completed requests", zap.Error(err))
		return fmt.Errorf("load completed requests: %w", err)
	}

	requests := make([]*model.Request, 0, len(active)+len(completed))
	requests = append(requests, active...)
	requests = append(requests, completed...)

	f.mu.Lock()
	f.requests = requests
	f.mu.Unlock()

	f.logger.Debug("Request feed loaded",
		zap.Int("active", len(active)),
		zap.Int("completed", len(completed)),
	)

	return nil
}

// Refresh перезагружает ленту (для режима опроса)
func (f *RequestFeed) Refresh(ctx context.Context) error {
	return f.Load(ctx)
}

// Requests снимок видимых заявок. Выполненные старше суток не возвращаются
func (f *RequestFeed) Requests() []*model.Request {
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	result := make([]*model.Request, 0, len(f.requests))
	for _, req := range f.requests {
		if req.Status == model.RequestStatusCompleted && !req.VisibleAt(now) {
			continue
		}
		result = append(result, req.Clone())
	}
	return result
}

// PruneExpired удаляет выполненные заявки, вышедшие из суточного окна
func (f *RequestFeed) PruneExpired() int {
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	kept := f.requests[:0]
	removed := 0
	for _, req := range f.requests {
		if req.Status == model.RequestStatusCompleted && now.Sub(req.UpdatedAt) > model.CompletedVisibilityWindow {
			removed++
			continue
		}
		kept = append(kept, req)
	}
	for i := len(kept); i < len(f.requests); i++ {
		f.requests[i] = nil
	}
	f.requests = kept

	return removed
}

func (f *RequestFeed) handleEvent(event model.ChangeEvent) {
	change, err := model.DecodeChange[model.Request](event)
	if err != nil {
		f.logger.Warn("Dropping invalid request change", zap.Error(err))
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch change.Type {
	case model.ChangeInsert:
		f.applyInsert(change.New)
	case model.ChangeUpdate:
		f.applyUpdate(change.New, event.Truncated)
	case model.ChangeDelete:
		f.remove(change.Old.ID)
	}
}

func (f *RequestFeed) indexOf(req *model.Request) int {
	for i, r := range f.requests {
		if r.ID == req.ID {
			return i
		}
	}
	return -1
}

func (f *RequestFeed) applyInsert(req *model.Request) {
	if !req.Status.IsActive() || !req.HasLocation() {
		return
	}
	if f.indexOf(req) >= 0 {
		return
	}
	f.requests = append(f.requests, req)
}

func (f *RequestFeed) applyUpdate(req *model.Request, truncated bool) {
	if !req.Status.IsListed() {
		f.remove(req.ID)
		return
	}

	if i := f.indexOf(req); i >= 0 {
		merged := req
		// Координаты из события приоритетнее, но null их не затирает
		if !req.HasLocation() {
			merged.Latitude = f.requests[i].Latitude
			merged.Longitude = f.requests[i].Longitude
		}
		// Урезанный payload (триггер notify_market_change) приходит без тяжёлых полей
		if truncated {
			merged.Description = f.requests[i].Description
			merged.Symptom = f.requests[i].Symptom
		}
		if truncated || req.Images == nil {
			merged.Images = f.requests[i].Images
		}
		f.requests[i] = merged
		return
	}

	if req.HasLocation() {
		f.requests = append(f.requests, req)
	}
}

func (f *RequestFeed) remove(id uuid.UUID) {
	for i, r := range f.requests {
		if r.ID == id {
			f.requests = append(f.requests[:i], f.requests[i+1:]...)
			return
		}
	}
}
