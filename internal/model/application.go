package model

import (
	"time"

	"github.com/google/uuid"
)

type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"  // Ожидает решения заказчика
	ApplicationStatusAccepted ApplicationStatus = "accepted" // Принят
	ApplicationStatusRejected ApplicationStatus = "rejected" // Отклонён
)

// Valid проверяет, что статус известен
func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusAccepted, ApplicationStatusRejected:
		return true
	}
	return false
}

// RequestApplication отклик исполнителя на заявку
type RequestApplication struct {
	ID          uuid.UUID         `json:"id"`
	RequestID   uuid.UUID         `json:"request_id"`
	ApplicantID uuid.UUID         `json:"applicant_id"`
	Status      ApplicationStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	// Дополнительные поля для удобства (не из таблицы)
	Request   *Request `json:"request,omitempty"`
	Applicant *Profile `json:"applicant,omitempty"`
}

// Validate проверяет строку, пришедшую из realtime
func (a *RequestApplication) Validate() error {
	if a.ID == uuid.Nil {
		return errMissing("request_applications", "id")
	}
	if a.RequestID == uuid.Nil {
		return errMissing("request_applications", "request_id")
	}
	if a.ApplicantID == uuid.Nil {
		return errMissing("request_applications", "applicant_id")
	}
	if !a.Status.Valid() {
		return errInvalid("request_applications", "status", string(a.Status))
	}
	return nil
}

// ValidateKey проверяет только первичный ключ
func (a *RequestApplication) ValidateKey() error {
	if a.ID == uuid.Nil {
		return errMissing("request_applications", "id")
	}
	return nil
}
