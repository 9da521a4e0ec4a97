package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/Freeeeeet/local_services/internal/auth"
	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/Freeeeeet/local_services/internal/realtime"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationPageSize размер страницы уведомлений
const NotificationPageSize = 20

// NotificationCenter уведомления текущего пользователя: постраничная загрузка,
// счётчик непрочитанных, оптимистичная пометка прочитанным и realtime-обновления.
//
// Пока запись "прочитано" в полёте, realtime-события не меняют is_read элемента;
// is_read=true из события подтверждает запись. Откат при ошибке происходит,
// только если метка ожидания ещё стоит.
type NotificationCenter struct {
	store   NotificationStore
	hub     realtime.Subscriber
	session *auth.Session
	logger  *zap.Logger

	mu          sync.Mutex
	userID      uuid.UUID
	generation  uint64
	items       []*model.Notification
	pendingRead map[uuid.UUID]bool
	unread      int
	hasMore     bool
	loading     bool
	sub         *realtime.Subscription
	unsubscribe func()
}

func NewNotificationCenter(store NotificationStore, hub realtime.Subscriber, session *auth.Session, logger *zap.Logger) *NotificationCenter {
	return &NotificationCenter{
		store:       store,
		hub:         hub,
		session:     session,
		logger:      logger,
		pendingRead: make(map[uuid.UUID]bool),
	}
}

// Start привязывает центр к сессии: при смене пользователя подписка пересоздаётся
// и уведомления перезагружаются
func (c *NotificationCenter) Start(ctx context.Context) error {
	unsubscribe := c.session.Subscribe(func(user *auth.User) {
		if err := c.bind(ctx, user); err != nil {
			c.logger.Error("Failed to reload notifications after user change", zap.Error(err))
		}
	})

	c.mu.Lock()
	old := c.unsubscribe
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
	if old != nil {
		old()
	}

	return c.bind(ctx, c.session.User())
}

// Close снимает подписки
func (c *NotificationCenter) Close() {
	c.mu.Lock()
	sub := c.sub
	unsubscribe := c.unsubscribe
	c.sub = nil
	c.unsubscribe = nil
	c.mu.Unlock()

	sub.Unsubscribe()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (c *NotificationCenter) bind(ctx context.Context, user *auth.User) error {
	c.mu.Lock()
	old := c.sub
	c.sub = nil
	c.generation++
	c.items = nil
	c.pendingRead = make(map[uuid.UUID]bool)
	c.unread = 0
	c.hasMore = false
	c.loading = false
	c.userID = uuid.Nil
	if user != nil {
		c.userID = user.ID
	}
	userID := c.userID
	c.mu.Unlock()

	old.Unsubscribe()

	if userID == uuid.Nil {
		return nil
	}

	sub := c.hub.Subscribe(model.TableNotifications, realtime.UserFilter("user_id", userID), c.handleEvent)

	c.mu.Lock()
	if c.userID != userID {
		// Пока подписывались, пользователь сменился
		c.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	c.sub = sub
	c.mu.Unlock()

	return c.Refresh(ctx)
}

// Refresh загружает счётчик непрочитанных и первую страницу
func (c *NotificationCenter) Refresh(ctx context.Context) error {
	c.mu.Lock()
	userID := c.userID
	generation := c.generation
	c.mu.Unlock()

	if userID == uuid.Nil {
		return nil
	}

	unread, err := c.store.CountUnread(ctx, userID)
	if err != nil {
		c.logger.Error("Failed to count unread notifications", zap.Error(err))
		return fmt.Errorf("count unread notifications: %w", err)
	}

	page, err := c.store.ListPage(ctx, userID, nil, NotificationPageSize)
	if err != nil {
		c.logger.Error("Failed to load notifications", zap.Error(err))
		return fmt.Errorf("load notifications: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != generation {
		return nil
	}

	c.items = page
	c.unread = unread
	c.hasMore = len(page) >= NotificationPageSize
	c.pendingRead = make(map[uuid.UUID]bool)

	return nil
}

// LoadMore подгружает следующую страницу по курсору created_at последнего элемента.
// Ничего не делает, если загрузка уже идёт или страниц больше нет
func (c *NotificationCenter) LoadMore(ctx context.Context) error {
	c.mu.Lock()
	if c.loading || !c.hasMore || c.userID == uuid.Nil || len(c.items) == 0 {
		c.mu.Unlock()
		return nil
	}
	c.loading = true
	userID := c.userID
	generation := c.generation
	before := c.items[len(c.items)-1].CreatedAt
	c.mu.Unlock()

	page, err := c.store.ListPage(ctx, userID, &before, NotificationPageSize)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != generation {
		return nil
	}
	c.loading = false

	if err != nil {
		c.logger.Error("Failed to load more notifications", zap.Error(err))
		return fmt.Errorf("load more notifications: %w", err)
	}

	for _, n := range page {
		if c.indexOf(n.ID) < 0 {
			c.items = append(c.items, n)
		}
	}
	c.hasMore = len(page) >= NotificationPageSize

	return nil
}

// MarkAsRead оптимистично помечает уведомление прочитанным, при ошибке откатывает
func (c *NotificationCenter) MarkAsRead(ctx context.Context, id uuid.UUID) error {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 || c.items[i].IsRead {
		c.mu.Unlock()
		return nil
	}
	c.items[i].IsRead = true
	c.unread = max(c.unread-1, 0)
	c.pendingRead[id] = true
	generation := c.generation
	c.mu.Unlock()

	err := c.store.MarkRead(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != generation {
		return err
	}

	pending := c.pendingRead[id]
	delete(c.pendingRead, id)

	if err != nil {
		c.logger.Error("Failed to mark notification read", zap.Error(err), zap.String("id", id.String()))
		if pending {
			if i := c.indexOf(id); i >= 0 {
				c.items[i].IsRead = false
				c.unread++
			}
		}
		return fmt.Errorf("mark notification read: %w", err)
	}

	return nil
}

// MarkAllAsRead оптимистично помечает всё прочитанным; при ошибке перезагружает список
func (c *NotificationCenter) MarkAllAsRead(ctx context.Context) error {
	c.mu.Lock()
	userID := c.userID
	if userID == uuid.Nil {
		c.mu.Unlock()
		return auth.ErrNotAuthenticated
	}
	generation := c.generation
	var marked []uuid.UUID
	for _, n := range c.items {
		if !n.IsRead {
			n.IsRead = true
			c.pendingRead[n.ID] = true
			marked = append(marked, n.ID)
		}
	}
	c.unread = 0
	c.mu.Unlock()

	if err := c.store.MarkAllRead(ctx, userID); err != nil {
		c.logger.Error("Failed to mark all notifications read", zap.Error(err))
		if refreshErr := c.Refresh(ctx); refreshErr != nil {
			c.logger.Error("Failed to refetch notifications", zap.Error(refreshErr))
		}
		return fmt.Errorf("mark all notifications read: %w", err)
	}

	c.mu.Lock()
	if c.generation == generation {
		for _, id := range marked {
			delete(c.pendingRead, id)
		}
	}
	c.mu.Unlock()

	return nil
}

// Notifications снимок загруженных уведомлений
func (c *NotificationCenter) Notifications() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]model.Notification, len(c.items))
	for i, n := range c.items {
		result[i] = *n
	}
	return result
}

// UnreadCount количество непрочитанных
func (c *NotificationCenter) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unread
}

// HasMore есть ли ещё страницы
func (c *NotificationCenter) HasMore() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasMore
}

func (c *NotificationCenter) indexOf(id uuid.UUID) int {
	for i, n := range c.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (c *NotificationCenter) handleEvent(event model.ChangeEvent) {
	change, err := model.DecodeChange[model.Notification](event)
	if err != nil {
		c.logger.Warn("Dropping invalid notification change", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch change.Type {
	case model.ChangeInsert:
		n := change.New
		if n.UserID != c.userID || c.indexOf(n.ID) >= 0 {
			return
		}
		c.items = append([]*model.Notification{n}, c.items...)
		if !n.IsRead {
			c.unread++
		}

	case model.ChangeUpdate:
		n := change.New
		i := c.indexOf(n.ID)
		if i < 0 {
			return
		}
		current := c.items[i]
		wasRead := current.IsRead

		patched := *n
		if c.pendingRead[n.ID] {
			patched.IsRead = wasRead
			if n.IsRead {
				delete(c.pendingRead, n.ID)
			}
		}
		*current = patched

		if !wasRead && current.IsRead {
			c.unread = max(c.unread-1, 0)
		}

	case model.ChangeDelete:
		i := c.indexOf(change.Old.ID)
		if i < 0 {
			return
		}
		removed := c.items[i]
		c.items = append(c.items[:i], c.items[i+1:]...)
		delete(c.pendingRead, removed.ID)
		if !removed.IsRead {
			c.unread = max(c.unread-1, 0)
		}
	}
}
