package model

import (
	"time"

	"github.com/google/uuid"
)

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "pending"   // Ожидает откликов
	RequestStatusApplied   RequestStatus = "applied"   // Есть отклик исполнителя
	RequestStatusAccepted  RequestStatus = "accepted"  // Исполнитель выбран
	RequestStatusRejected  RequestStatus = "rejected"  // Отклонена
	RequestStatusCompleted RequestStatus = "completed" // Выполнена
)

// CompletedVisibilityWindow сколько выполненная заявка остаётся на карте
const CompletedVisibilityWindow = 24 * time.Hour

// Valid проверяет, что статус известен
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApplied, RequestStatusAccepted,
		RequestStatusRejected, RequestStatusCompleted:
		return true
	}
	return false
}

// IsActive заявка ещё в работе (pending, applied, accepted)
func (s RequestStatus) IsActive() bool {
	return s == RequestStatusPending || s == RequestStatusApplied || s == RequestStatusAccepted
}

// IsListed статус, при котором заявка может оставаться в ленте
func (s RequestStatus) IsListed() bool {
	return s.IsActive() || s == RequestStatusCompleted
}

type Request struct {
	ID              uuid.UUID     `json:"id"`
	UserID          uuid.UUID     `json:"user_id"`
	VisitType       string        `json:"visit_type"`
	ServiceCategory string        `json:"service_category"`
	Title           string        `json:"title"`
	Address         string        `json:"address"`
	Latitude        *float64      `json:"latitude"`
	Longitude       *float64      `json:"longitude"`
	ModelName       *string       `json:"model_name"`
	Symptom         *string       `json:"symptom"`
	Images          []string      `json:"images"`
	ExpectedFee     int64         `json:"expected_fee"`
	Duration        string        `json:"duration"`
	ScheduledDate   string        `json:"scheduled_date"` // YYYY-MM-DD
	ScheduledTime   string        `json:"scheduled_time"` // HH:MM
	PersonnelCount  int           `json:"personnel_count"`
	Description     string        `json:"description"`
	IsUrgent        bool          `json:"is_urgent"`
	Status          RequestStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// HasLocation заданы ли обе координаты
func (r *Request) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// VisibleAt должна ли заявка показываться на карте в момент now
func (r *Request) VisibleAt(now time.Time) bool {
	if !r.HasLocation() {
		return false
	}
	if r.Status.IsActive() {
		return true
	}
	if r.Status == RequestStatusCompleted {
		return now.Sub(r.UpdatedAt) <= CompletedVisibilityWindow
	}
	return false
}

// Clone возвращает копию заявки, не разделяющую срезы и указатели
func (r *Request) Clone() *Request {
	c := *r
	if r.Latitude != nil {
		lat := *r.Latitude
		c.Latitude = &lat
	}
	if r.Longitude != nil {
		lng := *r.Longitude
		c.Longitude = &lng
	}
	if r.Images != nil {
		c.Images = append([]string(nil), r.Images...)
	}
	return &c
}

// Validate проверяет строку, пришедшую из realtime
func (r *Request) Validate() error {
	if r.ID == uuid.Nil {
		return errMissing("requests", "id")
	}
	if !r.Status.Valid() {
		return errInvalid("requests", "status", string(r.Status))
	}
	return nil
}

// ValidateKey проверяет только первичный ключ (для old_record при DELETE)
func (r *Request) ValidateKey() error {
	if r.ID == uuid.Nil {
		return errMissing("requests", "id")
	}
	return nil
}
