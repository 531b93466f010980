// Package storetest provides in-memory implementations of the store
// contracts for service and handler tests. They enforce the same unique
// constraints and cascades as the postgres schema.
package storetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/farellandr/eventhub/internal/models"
	"github.com/farellandr/eventhub/internal/store"
)

// DB is the shared in-memory state behind the four stores.
type DB struct {
	mu            sync.Mutex
	users         map[uuid.UUID]models.User
	events        map[uuid.UUID]models.Event
	tiers         map[uuid.UUID]models.TicketTier
	registrations map[uuid.UUID]models.Registration
	notifications map[uuid.UUID]models.Notification
	seq           int64
}

func New() *DB {
	return &DB{
		users:         map[uuid.UUID]models.User{},
		events:        map[uuid.UUID]models.Event{},
		tiers:         map[uuid.UUID]models.TicketTier{},
		registrations: map[uuid.UUID]models.Registration{},
		notifications: map[uuid.UUID]models.Notification{},
	}
}

// Stores bundles the four store implementations over one DB.
type Stores struct {
	DB            *DB
	Users         store.UserStore
	Events        store.EventStore
	Registrations store.RegistrationStore
	Notifications store.NotificationStore
}

func NewStores() *Stores {
	db := New()
	return &Stores{
		DB:            db,
		Users:         &userStore{db},
		Events:        &eventStore{db},
		Registrations: &registrationStore{db},
		Notifications: &notificationStore{db},
	}
}

// tick returns strictly increasing timestamps so ordering by CreatedAt is
// deterministic within a test.
func (d *DB) tick() time.Time {
	d.seq++
	return time.Unix(1_700_000_000, 0).Add(time.Duration(d.seq) * time.Millisecond)
}

// Notifications returns a snapshot of every notification record.
func (d *DB) Notifications() []models.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Notification, 0, len(d.notifications))
	for _, n := range d.notifications {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// NotificationsFor filters the snapshot by user and template.
func (d *DB) NotificationsFor(userID uuid.UUID, template string) []models.Notification {
	var out []models.Notification
	for _, n := range d.Notifications() {
		if n.UserID == userID && (template == "" || n.Template == template) {
			out = append(out, n)
		}
	}
	return out
}

func (d *DB) RegistrationCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.registrations)
}

func (d *DB) TierCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tiers)
}

type userStore struct{ d *DB }

func (s *userStore) Create(ctx context.Context, user *models.User) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, u := range s.d.users {
		if strings.EqualFold(u.Email, user.Email) || strings.EqualFold(u.Username, user.Username) {
			return store.ErrDuplicate
		}
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := s.d.tick()
	user.CreatedAt, user.UpdatedAt = now, now
	s.d.users[user.ID] = *user
	return nil
}

func (s *userStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	u, ok := s.d.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

func (s *userStore) GetByLogin(ctx context.Context, login string) (*models.User, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, u := range s.d.users {
		if strings.EqualFold(u.Email, login) || strings.EqualFold(u.Username, login) {
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *userStore) List(ctx context.Context, filter store.UserFilter) ([]models.User, int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	search := strings.ToLower(filter.Search)
	var out []models.User
	for _, u := range s.d.users {
		if search != "" && !containsAny(search, u.Username, u.Email, u.Name) {
			continue
		}
		if filter.Banned != nil && u.IsBanned != *filter.Banned {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	offset, limit := filter.Window()
	return page(out, offset, limit), int64(len(out)), nil
}

func (s *userStore) Save(ctx context.Context, user *models.User) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	user.UpdatedAt = s.d.tick()
	s.d.users[user.ID] = *user
	return nil
}

type eventStore struct{ d *DB }

func (s *eventStore) Create(ctx context.Context, event *models.Event) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	now := s.d.tick()
	event.CreatedAt, event.UpdatedAt = now, now
	for i := range event.TicketTiers {
		if event.TicketTiers[i].ID == uuid.Nil {
			event.TicketTiers[i].ID = uuid.New()
		}
		event.TicketTiers[i].EventID = event.ID
		s.d.tiers[event.TicketTiers[i].ID] = event.TicketTiers[i]
	}
	stored := *event
	stored.TicketTiers = nil
	stored.Organizer = nil
	s.d.events[event.ID] = stored
	return nil
}

// load assembles an event with its tiers and organizer; mu must be held.
func (s *eventStore) load(e models.Event) models.Event {
	e.TicketTiers = nil
	for _, t := range s.d.tiers {
		if t.EventID == e.ID {
			e.TicketTiers = append(e.TicketTiers, t)
		}
	}
	sort.Slice(e.TicketTiers, func(i, j int) bool { return e.TicketTiers[i].Price < e.TicketTiers[j].Price })
	if u, ok := s.d.users[e.OrganizerID]; ok {
		e.Organizer = &u
	}
	e.SyncApproval()
	return e
}

func (s *eventStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	e, ok := s.d.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	e = s.load(e)
	return &e, nil
}

func (s *eventStore) List(ctx context.Context, filter store.EventFilter) ([]models.Event, int64, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	search := strings.ToLower(filter.Search)
	var out []models.Event
	for _, e := range s.d.events {
		if filter.Approval != nil && e.ApprovalState != *filter.Approval {
			continue
		}
		if filter.OrganizerID != nil && e.OrganizerID != *filter.OrganizerID {
			continue
		}
		if filter.Category != "" && string(e.Category) != filter.Category {
			continue
		}
		if search != "" && !containsAny(search, e.Title, e.ShortDescription, e.Description, e.Address, string(e.Category)) {
			continue
		}
		if filter.From != nil && e.StartTime.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !e.StartTime.Before(*filter.To) {
			continue
		}
		out = append(out, s.load(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	offset, limit := filter.Window()
	return page(out, offset, limit), int64(len(out)), nil
}

func (s *eventStore) Save(ctx context.Context, event *models.Event, tiers []models.TicketTier) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.events[event.ID]; !ok {
		return store.ErrNotFound
	}
	event.UpdatedAt = s.d.tick()
	stored := *event
	stored.TicketTiers = nil
	stored.Organizer = nil
	s.d.events[event.ID] = stored

	if tiers == nil {
		return nil
	}
	for id, t := range s.d.tiers {
		if t.EventID == event.ID {
			delete(s.d.tiers, id)
			s.clearTier(id)
		}
	}
	for i := range tiers {
		tiers[i].ID = uuid.New()
		tiers[i].EventID = event.ID
		s.d.tiers[tiers[i].ID] = tiers[i]
	}
	event.TicketTiers = tiers
	return nil
}

// clearTier mirrors ON DELETE SET NULL on registrations; mu must be held.
func (s *eventStore) clearTier(tierID uuid.UUID) {
	for id, r := range s.d.registrations {
		if r.TicketTierID != nil && *r.TicketTierID == tierID {
			r.TicketTierID = nil
			s.d.registrations[id] = r
		}
	}
}

func (s *eventStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.events[id]; !ok {
		return store.ErrNotFound
	}
	for nid, n := range s.d.notifications {
		if n.EventID != nil && *n.EventID == id && n.Status == models.NotificationPending {
			delete(s.d.notifications, nid)
		}
	}
	for rid, r := range s.d.registrations {
		if r.EventID == id {
			delete(s.d.registrations, rid)
		}
	}
	for tid, t := range s.d.tiers {
		if t.EventID == id {
			delete(s.d.tiers, tid)
		}
	}
	delete(s.d.events, id)
	return nil
}

type registrationStore struct{ d *DB }

func (s *registrationStore) Create(ctx context.Context, registration *models.Registration) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, r := range s.d.registrations {
		if r.EventID == registration.EventID && r.UserID == registration.UserID {
			return store.ErrDuplicate
		}
	}
	if registration.ID == uuid.Nil {
		registration.ID = uuid.New()
	}
	now := s.d.tick()
	registration.CreatedAt, registration.UpdatedAt = now, now
	stored := *registration
	stored.Event = nil
	stored.TicketTier = nil
	s.d.registrations[registration.ID] = stored
	return nil
}

func (s *registrationStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	r, ok := s.d.registrations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (s *registrationStore) GetByEventAndUser(ctx context.Context, eventID, userID uuid.UUID) (*models.Registration, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	for _, r := range s.d.registrations {
		if r.EventID == eventID && r.UserID == userID {
			return &r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *registrationStore) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]models.Registration, error) {
	return s.list(func(r models.Registration) bool { return r.EventID == eventID }, false), nil
}

func (s *registrationStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Registration, error) {
	return s.list(func(r models.Registration) bool { return r.UserID == userID }, true), nil
}

func (s *registrationStore) list(match func(models.Registration) bool, withEvent bool) []models.Registration {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []models.Registration
	for _, r := range s.d.registrations {
		if !match(r) {
			continue
		}
		if withEvent {
			if e, ok := s.d.events[r.EventID]; ok {
				e.SyncApproval()
				r.Event = &e
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *registrationStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.registrations[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.d.registrations, id)
	return nil
}

func (s *registrationStore) MarkCheckedIn(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	r, ok := s.d.registrations[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if r.CheckedInAt != nil {
		return false, nil
	}
	r.CheckedInAt = &at
	s.d.registrations[id] = r
	return true, nil
}

type notificationStore struct{ d *DB }

func (s *notificationStore) Create(ctx context.Context, notification *models.Notification) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if notification.Type == models.NotificationReminder && notification.EventID != nil &&
		s.findReminder(notification.UserID, *notification.EventID) != nil {
		return store.ErrDuplicate
	}
	s.insert(notification)
	return nil
}

// insert stores a new record; mu must be held.
func (s *notificationStore) insert(notification *models.Notification) {
	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}
	now := s.d.tick()
	notification.CreatedAt, notification.UpdatedAt = now, now
	s.d.notifications[notification.ID] = *notification
}

// findReminder returns the reminder for the pair; mu must be held.
func (s *notificationStore) findReminder(userID, eventID uuid.UUID) *models.Notification {
	for _, n := range s.d.notifications {
		if n.Type == models.NotificationReminder && n.UserID == userID && n.EventID != nil && *n.EventID == eventID {
			return &n
		}
	}
	return nil
}

func (s *notificationStore) CreateReminderOnce(ctx context.Context, notification *models.Notification) (bool, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	notification.Type = models.NotificationReminder
	if notification.EventID == nil {
		return false, store.ErrNotFound
	}
	if s.findReminder(notification.UserID, *notification.EventID) != nil {
		return false, nil
	}
	s.insert(notification)
	return true, nil
}

func (s *notificationStore) HasReminder(ctx context.Context, userID, eventID uuid.UUID) (bool, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	return s.findReminder(userID, eventID) != nil, nil
}

func (s *notificationStore) GetReminder(ctx context.Context, userID, eventID uuid.UUID) (*models.Notification, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if n := s.findReminder(userID, eventID); n != nil {
		return n, nil
	}
	return nil, store.ErrNotFound
}

func (s *notificationStore) DeletePendingReminder(ctx context.Context, userID, eventID uuid.UUID) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if n := s.findReminder(userID, eventID); n != nil && n.Status == models.NotificationPending {
		delete(s.d.notifications, n.ID)
	}
	return nil
}

func (s *notificationStore) ListDue(ctx context.Context, now time.Time, limit int) ([]models.Notification, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []models.Notification
	for _, n := range s.d.notifications {
		if n.Status == models.NotificationPending && n.ScheduledAt != nil && !n.ScheduledAt.After(now) {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(*out[j].ScheduledAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *notificationStore) MarkResult(ctx context.Context, notification *models.Notification) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	if _, ok := s.d.notifications[notification.ID]; !ok {
		return store.ErrNotFound
	}
	notification.UpdatedAt = s.d.tick()
	s.d.notifications[notification.ID] = *notification
	return nil
}

func (s *notificationStore) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	var out []models.Notification
	for _, n := range s.d.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func containsAny(needle string, haystacks ...string) bool {
	for _, h := range haystacks {
		if strings.Contains(strings.ToLower(h), needle) {
			return true
		}
	}
	return false
}

func page[T any](items []T, offset, limit int) []T {
	if limit <= 0 {
		return items
	}
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
