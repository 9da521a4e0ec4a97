package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/Freeeeeet/local_services/internal/auth"
	"github.com/Freeeeeet/local_services/internal/model"
	"go.uber.org/zap"
)

const maxNicknameLength = 30

// ProfileService профиль текущего пользователя и визитка исполнителя
type ProfileService struct {
	profiles ProfileStore
	session  *auth.Session
	logger   *zap.Logger
}

func NewProfileService(profiles ProfileStore, session *auth.Session, logger *zap.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, session: session, logger: logger}
}

// GetProfile профиль текущего пользователя (nil, если ещё не создан)
func (s *ProfileService) GetProfile(ctx context.Context) (*model.Profile, error) {
	user, err := s.session.RequireUser()
	if err != nil {
		return nil, err
	}
	return s.profiles.GetByUserID(ctx, user.ID)
}

// HasBusinessCard зарегистрирована ли визитка
func (s *ProfileService) HasBusinessCard(ctx context.Context) (bool, error) {
	profile, err := s.GetProfile(ctx)
	if err != nil {
		return false, err
	}
	return profile.HasBusinessCard(), nil
}

// RegisterBusinessCard сохраняет публичную ссылку на загруженную визитку
func (s *ProfileService) RegisterBusinessCard(ctx context.Context, imageURL string) error {
	user, err := s.session.RequireUser()
	if err != nil {
		return err
	}

	u, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "business_card_url", Reason: "must be an absolute http(s) URL"}
	}

	if err := s.profiles.UpsertBusinessCard(ctx, user.ID, u.String()); err != nil {
		return fmt.Errorf("register business card: %w", err)
	}

	s.logger.Info("Business card registered", zap.String("user_id", user.ID.String()))

	return nil
}

// UpdateNickname меняет никнейм
func (s *ProfileService) UpdateNickname(ctx context.Context, nickname string) error {
	user, err := s.session.RequireUser()
	if err != nil {
		return err
	}

	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return &ValidationError{Field: "nickname", Reason: "is required"}
	}
	if utf8.RuneCountInString(nickname) > maxNicknameLength {
		return &ValidationError{Field: "nickname", Reason: fmt.Sprintf("must be at most %d characters", maxNicknameLength)}
	}

	if err := s.profiles.UpsertNickname(ctx, user.ID, nickname); err != nil {
		return fmt.Errorf("update nickname: %w", err)
	}

	return nil
}
