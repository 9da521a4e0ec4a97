// Package realtime доставляет события изменения строк хранилища подписчикам.
package realtime

import (
	"sync"

	"github.com/Freeeeeet/local_services/internal/model"
)

// Handler обрабатывает событие изменения
type Handler func(event model.ChangeEvent)

// Filter отбирает события для подписки; nil пропускает все
type Filter func(event model.ChangeEvent) bool

// Subscriber то, на что подписываются сервисы
type Subscriber interface {
	Subscribe(table model.Table, filter Filter, handler Handler) *Subscription
}

// Subscription активная подписка на таблицу
type Subscription struct {
	hub     *Hub
	id      uint64
	table   model.Table
	filter  Filter
	handler Handler
}

// Unsubscribe снимает подписку. Повторный вызов ничего не делает
func (s *Subscription) Unsubscribe() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.remove(s)
}

// Hub раздаёт события от источника (LISTEN/NOTIFY, Supabase, тесты) подписчикам
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[model.Table][]*Subscription
}

// NewHub создаёт пустой хаб
func NewHub() *Hub {
	return &Hub{subs: make(map[model.Table][]*Subscription)}
}

// Subscribe подписывает handler на изменения таблицы
func (h *Hub) Subscribe(table model.Table, filter Filter, handler Handler) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	sub := &Subscription{
		hub:     h,
		id:      h.nextID,
		table:   table,
		filter:  filter,
		handler: handler,
	}
	h.subs[table] = append(h.subs[table], sub)

	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.subs[sub.table]
	for i, s := range list {
		if s.id == sub.id {
			h.subs[sub.table] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Publish синхронно вызывает подходящих подписчиков в порядке подписки
func (h *Hub) Publish(event model.ChangeEvent) {
	h.mu.RLock()
	subs := append([]*Subscription(nil), h.subs[event.Table]...)
	h.mu.RUnlock()

	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		sub.handler(event)
	}
}

// Count количество подписок на таблицу
func (h *Hub) Count(table model.Table) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[table])
}
