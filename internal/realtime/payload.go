package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/google/uuid"
)

// changePayload общий формат изменения: его шлёт триггер notify_market_change
// и он же лежит в payload.data сообщения postgres_changes Supabase Realtime
type changePayload struct {
	Schema          string          `json:"schema"`
	Table           string          `json:"table"`
	Type            string          `json:"type"`
	Record          json.RawMessage `json:"record"`
	OldRecord       json.RawMessage `json:"old_record"`
	CommitTimestamp *time.Time      `json:"commit_timestamp"`
	Truncated       bool            `json:"truncated"`
}

// ParseChange разбирает payload изменения в событие
func ParseChange(raw []byte) (model.ChangeEvent, error) {
	var p changePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return model.ChangeEvent{}, fmt.Errorf("%w: %v", model.ErrInvalidPayload, err)
	}
	return p.toEvent()
}

func (p changePayload) toEvent() (model.ChangeEvent, error) {
	ev := model.ChangeEvent{
		Table:     model.Table(p.Table),
		Type:      model.ChangeType(p.Type),
		Record:    p.Record,
		OldRecord: p.OldRecord,
		Truncated: p.Truncated,
	}
	if p.CommitTimestamp != nil {
		ev.CommitTimestamp = *p.CommitTimestamp
	}

	switch ev.Table {
	case model.TableRequests, model.TableApplications, model.TableNotifications, model.TableProfiles:
	default:
		return ev, fmt.Errorf("%w: unknown table %q", model.ErrInvalidPayload, p.Table)
	}

	if !ev.Type.Valid() {
		return ev, fmt.Errorf("%w: unknown change type %q", model.ErrInvalidPayload, p.Type)
	}

	return ev, nil
}

// UserFilter пропускает события, где столбец column (в новой или старой строке) равен userID.
// Для DELETE без этого столбца событие пропускается: подписчик сам проверит id
func UserFilter(column string, userID uuid.UUID) Filter {
	return func(event model.ChangeEvent) bool {
		for _, raw := range []json.RawMessage{event.Record, event.OldRecord} {
			if len(raw) == 0 {
				continue
			}
			var row map[string]json.RawMessage
			if err := json.Unmarshal(raw, &row); err != nil {
				continue
			}
			value, ok := row[column]
			if !ok {
				continue
			}
			var id uuid.UUID
			if err := json.Unmarshal(value, &id); err != nil {
				return false
			}
			return id == userID
		}
		return event.Type == model.ChangeDelete
	}
}
