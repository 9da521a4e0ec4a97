package service

import (
	"context"
	"strings"
	"testing"

	"github.com/Freeeeeet/local_services/internal/auth"
	"github.com/Freeeeeet/local_services/internal/realtime"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileService_BusinessCard(t *testing.T) {
	user := uuid.New()
	db := newMemDB(realtime.NewHub())
	svc := NewProfileService(fakeProfiles{db}, signedInSession(t, user), testLogger)

	has, err := svc.HasBusinessCard(context.Background())
	require.NoError(t, err)
	assert.False(t, has)

	var verr *ValidationError
	require.ErrorAs(t, svc.RegisterBusinessCard(context.Background(), "card.jpg"), &verr)
	require.ErrorAs(t, svc.RegisterBusinessCard(context.Background(), "ftp://host/card.jpg"), &verr)
	assert.Equal(t, "business_card_url", verr.Field)

	require.NoError(t, svc.RegisterBusinessCard(context.Background(), " https://cdn.example.com/cards/1.jpg "))

	has, err = svc.HasBusinessCard(context.Background())
	require.NoError(t, err)
	assert.True(t, has)

	profile, err := svc.GetProfile(context.Background())
	require.NoError(t, err)
	require.NotNil(t, profile.BusinessCardURL)
	assert.Equal(t, "https://cdn.example.com/cards/1.jpg", *profile.BusinessCardURL)
}

func TestProfileService_UpdateNickname(t *testing.T) {
	user := uuid.New()
	db := newMemDB(realtime.NewHub())
	svc := NewProfileService(fakeProfiles{db}, signedInSession(t, user), testLogger)

	var verr *ValidationError
	require.ErrorAs(t, svc.UpdateNickname(context.Background(), "  "), &verr)
	require.ErrorAs(t, svc.UpdateNickname(context.Background(), strings.Repeat("ж", 31)), &verr)

	require.NoError(t, svc.UpdateNickname(context.Background(), strings.Repeat("ж", 30)))
	profile, err := svc.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ж", 30), profile.Nickname)
}

func TestProfileService_RequiresSession(t *testing.T) {
	db := newMemDB(realtime.NewHub())
	svc := NewProfileService(fakeProfiles{db}, auth.NewSession(testJWTSecret), testLogger)

	_, err := svc.GetProfile(context.Background())
	assert.ErrorIs(t, err, auth.ErrNotAuthenticated)
	assert.ErrorIs(t, svc.RegisterBusinessCard(context.Background(), "https://x.io/a.jpg"), auth.ErrNotAuthenticated)
	assert.ErrorIs(t, svc.UpdateNickname(context.Background(), "bob"), auth.ErrNotAuthenticated)
}
