package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/local_services/internal/auth"
	"github.com/Freeeeeet/local_services/internal/model"
	"github.com/Freeeeeet/local_services/internal/realtime"
	"github.com/Freeeeeet/local_services/internal/repository/base"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testJWTSecret = "test-secret-test-secret-test-secret-1234"

// memDB хранилище в памяти; как триггеры миграции, публикует изменения в hub
type memDB struct {
	mu            sync.Mutex
	requests      map[uuid.UUID]*model.Request
	apps          map[uuid.UUID]*model.RequestApplication
	notifications map[uuid.UUID]*model.Notification
	profiles      map[uuid.UUID]*model.Profile
	hub           *realtime.Hub
	clock         time.Time
	calls         map[string]int
	failures      map[string]error
}

func newMemDB(hub *realtime.Hub) *memDB {
	return &memDB{
		requests:      make(map[uuid.UUID]*model.Request),
		apps:          make(map[uuid.UUID]*model.RequestApplication),
		notifications: make(map[uuid.UUID]*model.Notification),
		profiles:      make(map[uuid.UUID]*model.Profile),
		hub:           hub,
		clock:         time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
		calls:         make(map[string]int),
		failures:      make(map[string]error),
	}
}

type pendingEvent struct {
	table model.Table
	typ   model.ChangeType
	rec   any
	old   any
}

// call учитывает вызов и возвращает внедрённую ошибку. Вызывать под db.mu
func (db *memDB) call(name string) error {
	db.calls[name]++
	return db.failures[name]
}

func (db *memDB) callCount(name string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.calls[name]
}

func (db *memDB) fail(name string, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err == nil {
		delete(db.failures, name)
		return
	}
	db.failures[name] = err
}

func (db *memDB) tick() time.Time {
	db.clock = db.clock.Add(time.Second)
	return db.clock
}

// publish вызывается без db.mu: обработчики могут читать хранилище
func (db *memDB) publish(events ...pendingEvent) {
	if db.hub == nil {
		return
	}
	for _, e := range events {
		ev := model.ChangeEvent{Table: e.table, Type: e.typ}
		if e.rec != nil {
			ev.Record, _ = json.Marshal(e.rec)
		}
		if e.old != nil {
			ev.OldRecord, _ = json.Marshal(e.old)
		}
		db.hub.Publish(ev)
	}
}

func (db *memDB) addRequest(req *model.Request) *model.Request {
	db.mu.Lock()
	defer db.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	if req.Status == "" {
		req.Status = model.RequestStatusPending
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = db.clock
	}
	db.requests[req.ID] = req.Clone()
	return req
}

func (db *memDB) addProfile(userID uuid.UUID, withCard bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p := &model.Profile{ID: userID, Nickname: "nick"}
	if withCard {
		u := "https://cdn.example.com/business-cards/" + userID.String() + "/card.jpg"
		p.BusinessCardURL = &u
	}
	db.profiles[userID] = p
}

func (db *memDB) addNotification(userID uuid.UUID, read bool) *model.Notification {
	db.mu.Lock()
	defer db.mu.Unlock()
	n := &model.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      model.NotificationApplicationReceived,
		Title:     "t",
		Message:   "m",
		IsRead:    read,
		CreatedAt: db.tick(),
	}
	cp := *n
	db.notifications[n.ID] = &cp
	return n
}

func (db *memDB) request(id uuid.UUID) model.Request {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.requests[id]
}

func (db *memDB) applicationsFor(requestID uuid.UUID) []model.RequestApplication {
	db.mu.Lock()
	defer db.mu.Unlock()
	var result []model.RequestApplication
	for _, a := range db.apps {
		if a.RequestID == requestID {
			result = append(result, *a)
		}
	}
	return result
}

func (db *memDB) notificationsFor(userID uuid.UUID) []model.Notification {
	db.mu.Lock()
	defer db.mu.Unlock()
	var result []model.Notification
	for _, n := range db.notifications {
		if n.UserID == userID {
			result = append(result, *n)
		}
	}
	return result
}

// ---------- requests ----------

type fakeRequests struct{ db *memDB }

func (f fakeRequests) Create(ctx context.Context, req *model.Request) error {
	f.db.mu.Lock()
	if err := f.db.call("requests.Create"); err != nil {
		f.db.mu.Unlock()
		return err
	}
	req.ID = uuid.New()
	req.CreatedAt = f.db.tick()
	req.UpdatedAt = req.CreatedAt
	f.db.requests[req.ID] = req.Clone()
	rec := req.Clone()
	f.db.mu.Unlock()

	f.db.publish(pendingEvent{model.TableRequests, model.ChangeInsert, rec, nil})
	return nil
}

func (f fakeRequests) GetByID(ctx context.Context, id uuid.UUID) (*model.Request, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.call("requests.GetByID"); err != nil {
		return nil, err
	}
	req, ok := f.db.requests[id]
	if !ok {
		return nil, nil
	}
	return req.Clone(), nil
}

func (f fakeRequests) list(name string, match func(*model.Request) bool) ([]*model.Request, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.call(name); err != nil {
		return nil, err
	}
	var result []*model.Request
	for _, r := range f.db.requests {
		if match(r) {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID.String() < result[j].ID.String() })
	return result, nil
}

func (f fakeRequests) ListActiveWithLocation(ctx context.Context) ([]*model.Request, error) {
	return f.list("requests.ListActiveWithLocation", func(r *model.Request) bool {
		return r.Status.IsActive() && r.HasLocation()
	})
}

func (f fakeRequests) ListCompletedWithLocationSince(ctx context.Context, since time.Time) ([]*model.Request, error) {
	return f.list("requests.ListCompletedWithLocationSince", func(r *model.Request) bool {
		return r.Status == model.RequestStatusCompleted && !r.UpdatedAt.Before(since) && r.HasLocation()
	})
}

func (f fakeRequests) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.Request, error) {
	return f.list("requests.ListByOwner", func(r *model.Request) bool { return r.UserID == ownerID })
}

func (f fakeRequests) UpdateStatus(ctx context.Context, id uuid.UUID, status model.RequestStatus) error {
	f.db.mu.Lock()
	if err := f.db.call("requests.UpdateStatus"); err != nil {
		f.db.mu.Unlock()
		return err
	}
	req, ok := f.db.requests[id]
	if !ok {
		f.db.mu.Unlock()
		return fmt.Errorf("request not found")
	}
	req.Status = status
	req.UpdatedAt = f.db.tick()
	rec := req.Clone()
	f.db.mu.Unlock()

	f.db.publish(pendingEvent{model.TableRequests, model.ChangeUpdate, rec, map[string]any{"id": id}})
	return nil
}

// ---------- applications ----------

type fakeApps struct{ db *memDB }

func (f fakeApps) Create(ctx context.Context, app *model.RequestApplication) error {
	f.db.mu.Lock()
	if err := f.db.call("apps.Create"); err != nil {
		f.db.mu.Unlock()
		return err
	}
	for _, a := range f.db.apps {
		if a.RequestID == app.RequestID && a.ApplicantID == app.ApplicantID {
			f.db.mu.Unlock()
			return fmt.Errorf("create application: %w", base.ErrUniqueViolation)
		}
	}
	app.ID = uuid.New()
	app.CreatedAt = f.db.tick()
	app.UpdatedAt = app.CreatedAt
	cp := *app
	f.db.apps[app.ID] = &cp
	f.db.mu.Unlock()

	f.db.publish(pendingEvent{model.TableApplications, model.ChangeInsert, cp, nil})
	return nil
}

func (f fakeApps) GetByID(ctx context.Context, id uuid.UUID) (*model.RequestApplication, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.call("apps.GetByID"); err != nil {
		return nil, err
	}
	a, ok := f.db.apps[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f fakeApps) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ApplicationStatus) error {
	f.db.mu.Lock()
	if err := f.db.call("apps.UpdateStatus"); err != nil {
		f.db.mu.Unlock()
		return err
	}
	a, ok := f.db.apps[id]
	if !ok {
		f.db.mu.Unlock()
		return fmt.Errorf("application not found")
	}
	a.Status = status
	a.UpdatedAt = f.db.tick()
	cp := *a
	f.db.mu.Unlock()

	f.db.publish(pendingEvent{model.TableApplications, model.ChangeUpdate, cp, nil})
	return nil
}

func (f fakeApps) DeleteByApplicant(ctx context.Context, id, applicantID uuid.UUID) (bool, error) {
	f.db.mu.Lock()
	if err := f.db.call("apps.DeleteByApplicant"); err != nil {
		f.db.mu.Unlock()
		return false, err
	}
	a, ok := f.db.apps[id]
	if !ok || a.ApplicantID != applicantID {
		f.db.mu.Unlock()
		return false, nil
	}
	delete(f.db.apps, id)
	f.db.mu.Unlock()

	f.db.publish(pendingEvent{model.TableApplications, model.ChangeDelete, nil, map[string]any{"id": id}})
	return true, nil
}

func (f fakeApps) CountByRequest(ctx context.Context, requestID uuid.UUID) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.call("apps.CountByRequest"); err != nil {
		return 0, err
	}
	count := 0
	for _, a := range f.db.apps {
		if a.RequestID == requestID {
			count++
		}
	}
	return count, nil
}

func (f fakeApps) filter(name string, match func(*model.RequestApplication) bool) ([]*model.RequestApplication, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.call(name); err != nil {
		return nil, err
	}
	var result []*model.RequestApplication
	for _, a := range f.db.apps {
		if match(a) {
			cp := *a
			if req, ok := f.db.requests[a.RequestID]; ok {
				cp.Request = req.Clone()
			}
			if p, ok := f.db.profiles[a.ApplicantID]; ok {
				pc := *p
				cp.Applicant = &pc
			}
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (f fakeApps) ListAcceptedByRequest(ctx context.Context, requestID uuid.UUID) ([]*model.RequestApplication, error) {
	return f.filter("apps.ListAcceptedByRequest", func(a *model.RequestApplication) bool {
		return a.RequestID == requestID && a.Status == model.ApplicationStatusAccepted
	})
}

func (f fakeApps) ListByApplicant(ctx context.Context, applicantID uuid.UUID) ([]*model.RequestApplication, error) {
	return f.filter("apps.ListByApplicant", func(a *model.RequestApplication) bool {
		return a.ApplicantID == applicantID
	})
}

func (f fakeApps) ListForOwner(ctx context.Context, ownerID uuid.UUID) ([]*model.RequestApplication, error) {
	return f.filter("apps.ListForOwner", func(a *model.RequestApplication) bool {
		req, ok := f.db.requests[a.RequestID]
		return ok && req.UserID == ownerID
	})
}

// ---------- notifications ----------

type fakeNotifications struct{ db *memDB }

func (f fakeNotifications) Create(ctx context.Context, n *model.Notification) error {
	f.db.mu.Lock()
	if err := f.db.call("notifications.Create"); err != nil {
		f.db.mu.Unlock()
		return err
	}
	n.ID = uuid.New()
	n.IsRead = false
	n.CreatedAt = f.db.tick()
	cp := *n
	f.db.notifications[n.ID] = &cp
	f.db.mu.Unlock()

	f.db.publish(pendingEvent{model.TableNotifications, model.ChangeInsert, cp, nil})
	return nil
}

func (f fakeNotifications) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.call("notifications.CountUnread"); err != nil {
		return 0, err
	}
	count := 0
	for _, n := range f.db.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (f fakeNotifications) ListPage(ctx context.Context, userID uuid.UUID, before *time.Time, limit int) ([]*model.Notification, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.call("notifications.ListPage"); err != nil {
		return nil, err
	}
	var result []*model.Notification
	for _, n := range f.db.notifications {
		if n.UserID != userID || (before != nil && !n.CreatedAt.Before(*before)) {
			continue
		}
		cp := *n
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f fakeNotifications) MarkRead(ctx context.Context, id uuid.UUID) error {
	f.db.mu.Lock()
	if err := f.db.call("notifications.MarkRead"); err != nil {
		f.db.mu.Unlock()
		return err
	}
	n, ok := f.db.notifications[id]
	if !ok {
		f.db.mu.Unlock()
		return nil
	}
	n.IsRead = true
	cp := *n
	f.db.mu.Unlock()

	f.db.publish(pendingEvent{model.TableNotifications, model.ChangeUpdate, cp, nil})
	return nil
}

func (f fakeNotifications) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	f.db.mu.Lock()
	if err := f.db.call("notifications.MarkAllRead"); err != nil {
		f.db.mu.Unlock()
		return err
	}
	var events []pendingEvent
	for _, n := range f.db.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			events = append(events, pendingEvent{model.TableNotifications, model.ChangeUpdate, *n, nil})
		}
	}
	f.db.mu.Unlock()

	f.db.publish(events...)
	return nil
}

// ---------- profiles ----------

type fakeProfiles struct{ db *memDB }

func (f fakeProfiles) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.call("profiles.GetByUserID"); err != nil {
		return nil, err
	}
	p, ok := f.db.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f fakeProfiles) UpsertBusinessCard(ctx context.Context, userID uuid.UUID, url string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.call("profiles.UpsertBusinessCard"); err != nil {
		return err
	}
	p, ok := f.db.profiles[userID]
	if !ok {
		p = &model.Profile{ID: userID}
		f.db.profiles[userID] = p
	}
	p.BusinessCardURL = &url
	return nil
}

func (f fakeProfiles) UpsertNickname(ctx context.Context, userID uuid.UUID, nickname string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if err := f.db.call("profiles.UpsertNickname"); err != nil {
		return err
	}
	p, ok := f.db.profiles[userID]
	if !ok {
		p = &model.Profile{ID: userID}
		f.db.profiles[userID] = p
	}
	p.Nickname = nickname
	return nil
}

// ---------- helpers ----------

func signedInSession(t *testing.T, userID uuid.UUID) *auth.Session {
	t.Helper()
	s := auth.NewSession(testJWTSecret)
	signIn(t, s, userID)
	return s
}

func signIn(t *testing.T, s *auth.Session, userID uuid.UUID) {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	_, err = s.SignIn(signed)
	require.NoError(t, err)
}

func floatPtr(v float64) *float64 { return &v }

var testLogger = zap.NewNop()
