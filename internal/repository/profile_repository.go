package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/Freeeeeet/local_services/internal/repository/base"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ProfileRepository struct {
	*base.Repository
}

func NewProfileRepository(pool *pgxpool.Pool) *ProfileRepository {
	return &ProfileRepository{Repository: base.NewRepository(pool)}
}

// GetByUserID получает профиль пользователя
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	query := `
		SELECT id, nickname, business_card_url, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`

	var p model.Profile
	err := r.QueryRow(ctx, query, userID).Scan(&p.ID, &p.Nickname, &p.BusinessCardURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return &p, nil
}

// UpsertBusinessCard сохраняет ссылку на визитку, создавая профиль при необходимости
func (r *ProfileRepository) UpsertBusinessCard(ctx context.Context, userID uuid.UUID, url string) error {
	query := `
		INSERT INTO profiles (id, business_card_url)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET business_card_url = EXCLUDED.business_card_url, updated_at = now()
	`

	if _, err := r.ExecAffected(ctx, query, userID, url); err != nil {
		return fmt.Errorf("upsert business card: %w", err)
	}

	return nil
}

// UpsertNickname сохраняет никнейм
func (r *ProfileRepository) UpsertNickname(ctx context.Context, userID uuid.UUID, nickname string) error {
	query := `
		INSERT INTO profiles (id, nickname)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET nickname = EXCLUDED.nickname, updated_at = now()
	`

	if _, err := r.ExecAffected(ctx, query, userID, nickname); err != nil {
		return fmt.Errorf("upsert nickname: %w", err)
	}

	return nil
}
