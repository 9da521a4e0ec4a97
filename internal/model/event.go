package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Table таблица хранилища, по которой приходят realtime-события
type Table string

const (
	TableRequests      Table = "requests"
	TableApplications  Table = "request_applications"
	TableNotifications Table = "notifications"
	TableProfiles      Table = "profiles"
)

type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// Valid проверяет, что тип изменения известен
func (t ChangeType) Valid() bool {
	return t == ChangeInsert || t == ChangeUpdate || t == ChangeDelete
}

// ErrInvalidPayload строка события не соответствует схеме таблицы
var ErrInvalidPayload = errors.New("invalid change payload")

func errMissing(table, column string) error {
	return fmt.Errorf("%w: %s.%s is required", ErrInvalidPayload, table, column)
}

func errInvalid(table, column, value string) error {
	return fmt.Errorf("%w: %s.%s has unknown value %q", ErrInvalidPayload, table, column, value)
}

// ChangeEvent сырое событие изменения строки, как его прислал источник
type ChangeEvent struct {
	Table           Table
	Type            ChangeType
	Record          json.RawMessage
	OldRecord       json.RawMessage
	CommitTimestamp time.Time
	// Truncated в строке нет images, description и symptom (payload не влез в NOTIFY)
	Truncated bool
}

// Row строка таблицы, умеющая проверить себя
type Row interface {
	Validate() error
	ValidateKey() error
}

// Change типизированное событие: New заполнен для INSERT/UPDATE, Old для DELETE
type Change[T any] struct {
	Type ChangeType
	New  *T
	Old  *T
}

// DecodeChange разбирает событие в строку конкретной таблицы и проверяет её
func DecodeChange[T any, P interface {
	*T
	Row
}](ev ChangeEvent) (Change[T], error) {
	change := Change[T]{Type: ev.Type}

	if !ev.Type.Valid() {
		return change, fmt.Errorf("%w: unknown change type %q", ErrInvalidPayload, ev.Type)
	}

	if ev.Type != ChangeDelete {
		row, err := decodeRow[T](ev.Record)
		if err != nil {
			return change, fmt.Errorf("decode %s record: %w", ev.Table, err)
		}
		if row == nil {
			return change, fmt.Errorf("%w: %s %s without record", ErrInvalidPayload, ev.Table, ev.Type)
		}
		if err := P(row).Validate(); err != nil {
			return change, err
		}
		change.New = row
	}

	old, err := decodeRow[T](ev.OldRecord)
	if err != nil {
		return change, fmt.Errorf("decode %s old record: %w", ev.Table, err)
	}

	if ev.Type == ChangeDelete {
		if old == nil {
			return change, fmt.Errorf("%w: %s DELETE without old record", ErrInvalidPayload, ev.Table)
		}
		if err := P(old).ValidateKey(); err != nil {
			return change, err
		}
	}
	change.Old = old

	return change, nil
}

func decodeRow[T any](raw json.RawMessage) (*T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}")) {
		return nil, nil
	}

	var row T
	if err := json.Unmarshal(trimmed, &row); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &row, nil
}
