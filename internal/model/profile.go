package model

import (
	"time"

	"github.com/google/uuid"
)

// Profile профиль пользователя, один на пользователя
type Profile struct {
	ID              uuid.UUID `json:"id"`
	Nickname        string    `json:"nickname"`
	BusinessCardURL *string   `json:"business_card_url"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasBusinessCard загружена ли визитка (без неё откликаться нельзя)
func (p *Profile) HasBusinessCard() bool {
	return p != nil && p.BusinessCardURL != nil && *p.BusinessCardURL != ""
}
