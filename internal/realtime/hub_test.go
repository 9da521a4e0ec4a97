package realtime

import (
	"encoding/json"
	"testing"

	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishRoutesByTable(t *testing.T) {
	hub := NewHub()
	var requests, notifications int

	hub.Subscribe(model.TableRequests, nil, func(model.ChangeEvent) { requests++ })
	hub.Subscribe(model.TableNotifications, nil, func(model.ChangeEvent) { notifications++ })

	hub.Publish(model.ChangeEvent{Table: model.TableRequests, Type: model.ChangeInsert})
	hub.Publish(model.ChangeEvent{Table: model.TableRequests, Type: model.ChangeDelete})
	hub.Publish(model.ChangeEvent{Table: model.TableNotifications, Type: model.ChangeInsert})

	assert.Equal(t, 2, requests)
	assert.Equal(t, 1, notifications)
}

func TestHub_UnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub()
	calls := 0

	sub := hub.Subscribe(model.TableApplications, nil, func(model.ChangeEvent) { calls++ })
	other := hub.Subscribe(model.TableApplications, nil, func(model.ChangeEvent) {})
	require.Equal(t, 2, hub.Count(model.TableApplications))

	sub.Unsubscribe()
	sub.Unsubscribe()
	(*Subscription)(nil).Unsubscribe()

	hub.Publish(model.ChangeEvent{Table: model.TableApplications, Type: model.ChangeUpdate})
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, hub.Count(model.TableApplications))

	other.Unsubscribe()
	assert.Equal(t, 0, hub.Count(model.TableApplications))
}

func TestHub_HandlerMayUnsubscribeDuringPublish(t *testing.T) {
	hub := NewHub()
	calls := 0

	var sub *Subscription
	sub = hub.Subscribe(model.TableRequests, nil, func(model.ChangeEvent) {
		calls++
		sub.Unsubscribe()
	})

	hub.Publish(model.ChangeEvent{Table: model.TableRequests, Type: model.ChangeInsert})
	hub.Publish(model.ChangeEvent{Table: model.TableRequests, Type: model.ChangeInsert})

	assert.Equal(t, 1, calls)
}

func TestHub_FilterByUser(t *testing.T) {
	hub := NewHub()
	me := uuid.New()
	var got []model.ChangeType

	hub.Subscribe(model.TableNotifications, UserFilter("user_id", me), func(ev model.ChangeEvent) {
		got = append(got, ev.Type)
	})

	mine := json.RawMessage(`{"id":"` + uuid.NewString() + `","user_id":"` + me.String() + `"}`)
	theirs := json.RawMessage(`{"id":"` + uuid.NewString() + `","user_id":"` + uuid.NewString() + `"}`)
	keyOnly := json.RawMessage(`{"id":"` + uuid.NewString() + `"}`)

	hub.Publish(model.ChangeEvent{Table: model.TableNotifications, Type: model.ChangeInsert, Record: mine})
	hub.Publish(model.ChangeEvent{Table: model.TableNotifications, Type: model.ChangeInsert, Record: theirs})
	hub.Publish(model.ChangeEvent{Table: model.TableNotifications, Type: model.ChangeUpdate, Record: mine, OldRecord: keyOnly})
	hub.Publish(model.ChangeEvent{Table: model.TableNotifications, Type: model.ChangeDelete, OldRecord: keyOnly})
	hub.Publish(model.ChangeEvent{Table: model.TableNotifications, Type: model.ChangeDelete, OldRecord: theirs})

	assert.Equal(t, []model.ChangeType{model.ChangeInsert, model.ChangeUpdate, model.ChangeDelete}, got)
}
