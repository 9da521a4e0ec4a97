// Package auth держит текущую сессию пользователя.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoJWTSecret      = errors.New("jwt secret is not configured")
)

// User авторизованный пользователь из access token
type User struct {
	ID    uuid.UUID
	Email string
	Role  string
}

type claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Listener вызывается при смене пользователя (nil после выхода)
type Listener func(user *User)

// Session хранит текущего пользователя и оповещает подписчиков о смене.
// Передаётся явно во все сервисы.
type Session struct {
	mu        sync.RWMutex
	secret    []byte
	user      *User
	token     string
	listeners map[int]Listener
	nextID    int
}

// NewSession создаёт сессию, проверяющую токены секретом проекта
func NewSession(jwtSecret string) *Session {
	return &Session{
		secret:    []byte(jwtSecret),
		listeners: make(map[int]Listener),
	}
}

// SignIn проверяет access token и делает его владельца текущим пользователем
func (s *Session) SignIn(accessToken string) (*User, error) {
	if len(s.secret) == 0 {
		return nil, ErrNoJWTSecret
	}

	parsed, err := jwt.ParseWithClaims(accessToken, &claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok {
		return nil, fmt.Errorf("verify access token: unexpected claims")
	}

	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("verify access token: subject is not a uuid: %w", err)
	}

	user := &User{ID: id, Email: c.Email, Role: c.Role}
	s.set(user, accessToken)

	return user, nil
}

// SignOut сбрасывает сессию
func (s *Session) SignOut() {
	s.set(nil, "")
}

// User возвращает текущего пользователя или nil
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Token возвращает access token текущей сессии
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// RequireUser возвращает пользователя или ErrNotAuthenticated
func (s *Session) RequireUser() (*User, error) {
	user := s.User()
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	return user, nil
}

// Subscribe регистрирует слушателя смены пользователя и возвращает функцию отписки
func (s *Session) Subscribe(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Session) set(user *User, token string) {
	s.mu.Lock()
	prev := s.user
	s.user = user
	s.token = token

	changed := !sameUser(prev, user)
	listeners := make([]Listener, 0, len(s.listeners))
	if changed {
		for id := 0; id < s.nextID; id++ {
			if fn, ok := s.listeners[id]; ok {
				listeners = append(listeners, fn)
			}
		}
	}
	s.mu.Unlock()

	// Слушатели вызываются без блокировки, они могут читать сессию
	for _, fn := range listeners {
		fn(user)
	}
}

func sameUser(a, b *User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID
}
