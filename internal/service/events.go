package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farellandr/eventhub/internal/access"
	"github.com/farellandr/eventhub/internal/apperr"
	"github.com/farellandr/eventhub/internal/logging"
	"github.com/farellandr/eventhub/internal/models"
	"github.com/farellandr/eventhub/internal/notify"
	"github.com/farellandr/eventhub/internal/store"
)

type TicketTierInput struct {
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Description string `json:"description"`
}

// EventInput is the payload for creating an event. Timestamps are RFC 3339
// strings so parse failures can name the field.
type EventInput struct {
	OrganizerID          *uuid.UUID        `json:"organizer_id"`
	Title                string            `json:"title"`
	ShortDescription     string            `json:"short_description"`
	Description          string            `json:"description"`
	StartTime            string            `json:"start_time"`
	EndTime              string            `json:"end_time"`
	Address              string            `json:"address"`
	Latitude             *float64          `json:"latitude"`
	Longitude            *float64          `json:"longitude"`
	Category             string            `json:"category" binding:"omitempty,event_category"`
	PricingMode          string            `json:"pricing_mode"`
	RegistrationDeadline string            `json:"registration_deadline"`
	TicketTiers          []TicketTierInput `json:"ticket_tiers"`
}

// EventPatch is a partial update; nil fields are left untouched. An empty
// EndTime or RegistrationDeadline clears it.
type EventPatch struct {
	Title                *string            `json:"title"`
	ShortDescription     *string            `json:"short_description"`
	Description          *string            `json:"description"`
	StartTime            *string            `json:"start_time"`
	EndTime              *string            `json:"end_time"`
	Address              *string            `json:"address"`
	Latitude             *float64           `json:"latitude"`
	Longitude            *float64           `json:"longitude"`
	Category             *string            `json:"category" binding:"omitempty,event_category"`
	PricingMode          *string            `json:"pricing_mode"`
	RegistrationDeadline *string            `json:"registration_deadline"`
	TicketTiers          *[]TicketTierInput `json:"ticket_tiers"`
}

type EventFilter struct {
	Search      string
	Category    string
	From        string
	To          string
	OrganizerID *uuid.UUID
	State       string
	Page        int
	Limit       int
}

type EventService struct {
	gate          *access.Gate
	events        store.EventStore
	registrations store.RegistrationStore
	users         store.UserStore
	fanout        *notify.Fanout
	reminders     *notify.Reminders
	removeFile    func(path string) error
}

func NewEventService(gate *access.Gate, events store.EventStore, registrations store.RegistrationStore, users store.UserStore, fanout *notify.Fanout, reminders *notify.Reminders) *EventService {
	return &EventService{
		gate:          gate,
		events:        events,
		registrations: registrations,
		users:         users,
		fanout:        fanout,
		reminders:     reminders,
		removeFile:    func(string) error { return nil },
	}
}

// WithFileRemover sets how replaced or orphaned images are deleted.
func (s *EventService) WithFileRemover(remove func(path string) error) *EventService {
	s.removeFile = remove
	return s
}

func (s *EventService) Create(ctx context.Context, actor *access.Actor, in EventInput) (*models.Event, error) {
	if err := s.gate.Authorize(actor, access.CreateEvent); err != nil {
		return nil, err
	}
	if in.OrganizerID != nil && *in.OrganizerID != actor.UserID {
		return nil, apperr.Forbidden("events can only be created for your own account")
	}

	event := &models.Event{
		Title:            strings.TrimSpace(in.Title),
		ShortDescription: strings.TrimSpace(in.ShortDescription),
		Description:      strings.TrimSpace(in.Description),
		Address:          strings.TrimSpace(in.Address),
		Latitude:         in.Latitude,
		Longitude:        in.Longitude,
		Category:         models.Category(in.Category),
		PricingMode:      models.PricingMode(in.PricingMode),
		OrganizerID:      actor.UserID,
	}
	if event.PricingMode == "" {
		event.PricingMode = models.PricingFree
	}

	var err error
	if event.StartTime, err = parseTime("start_time", in.StartTime); err != nil {
		return nil, err
	}
	if event.EndTime, err = parseOptionalTime("end_time", in.EndTime); err != nil {
		return nil, err
	}
	if event.RegistrationDeadline, err = parseOptionalTime("registration_deadline", in.RegistrationDeadline); err != nil {
		return nil, err
	}
	event.TicketTiers = tiersFromInput(in.TicketTiers)
	if err := validateEvent(event); err != nil {
		return nil, err
	}

	if actor.IsVerifiedOrganizer {
		event.SetApproval(models.ApprovalApproved)
	} else {
		event.SetApproval(models.ApprovalPending)
	}

	if err := s.events.Create(ctx, event); err != nil {
		return nil, apperr.Internal("failed to create event", err)
	}
	logging.Ctx(ctx).Info().Str("event_id", event.ID.String()).
		Str("organizer_id", actor.UserID.String()).
		Str("approval_state", string(event.ApprovalState)).
		Msg("event created")
	return event, nil
}

// Get returns an approved event to anyone; other events only to their
// organizer or an admin.
func (s *EventService) Get(ctx context.Context, actor *access.Actor, id uuid.UUID) (*models.Event, error) {
	if err := s.gate.Authorize(actor, access.GetEvent); err != nil {
		return nil, err
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "event not found")
	}
	if event.ApprovalState != models.ApprovalApproved && !canManage(actor, event) {
		return nil, apperr.NotFound("event not found")
	}
	return event, nil
}

// loadOwned authorizes op by role, loads the event and then checks
// ownership.
func (s *EventService) loadOwned(ctx context.Context, actor *access.Actor, op access.Operation, id uuid.UUID) (*models.Event, error) {
	if err := s.gate.Authorize(actor, op); err != nil {
		return nil, err
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "event not found")
	}
	if err := s.gate.AuthorizeOwner(actor, op, event.OrganizerID); err != nil {
		return nil, err
	}
	return event, nil
}

func canManage(actor *access.Actor, event *models.Event) bool {
	return actor != nil && (actor.IsAdmin || actor.UserID == event.OrganizerID)
}

// List is the public listing: approved events only. Flagged events stay
// listed and carry is_flagged.
func (s *EventService) List(ctx context.Context, actor *access.Actor, filter EventFilter) (Page[models.Event], error) {
	if err := s.gate.Authorize(actor, access.ListEvents); err != nil {
		return Page[models.Event]{}, err
	}
	approved := models.ApprovalApproved
	return s.list(ctx, filter, &approved)
}

func (s *EventService) ListMine(ctx context.Context, actor *access.Actor, filter EventFilter) (Page[models.Event], error) {
	if err := s.gate.Authorize(actor, access.ListOwnEvents); err != nil {
		return Page[models.Event]{}, err
	}
	filter.OrganizerID = uuidPtr(actor.UserID)
	state, err := parseState(filter.State)
	if err != nil {
		return Page[models.Event]{}, err
	}
	return s.list(ctx, filter, state)
}

// ListAll is the moderation listing, optionally narrowed to one state.
func (s *EventService) ListAll(ctx context.Context, actor *access.Actor, filter EventFilter) (Page[models.Event], error) {
	if err := s.gate.Authorize(actor, access.ListAllEvents); err != nil {
		return Page[models.Event]{}, err
	}
	state, err := parseState(filter.State)
	if err != nil {
		return Page[models.Event]{}, err
	}
	return s.list(ctx, filter, state)
}

func parseState(state string) (*models.ApprovalState, error) {
	switch s := models.ApprovalState(strings.ToLower(strings.TrimSpace(state))); s {
	case "":
		return nil, nil
	case models.ApprovalPending, models.ApprovalApproved, models.ApprovalRejected:
		return &s, nil
	}
	return nil, apperr.Validation("state", "must be pending, approved or rejected")
}

func (s *EventService) list(ctx context.Context, filter EventFilter, state *models.ApprovalState) (Page[models.Event], error) {
	if filter.Category != "" && !models.ValidCategory(filter.Category) {
		return Page[models.Event]{}, apperr.Validation("category", "unknown category")
	}
	loc := s.fanout.Location()
	from, err := parseDay("from", filter.From, loc)
	if err != nil {
		return Page[models.Event]{}, err
	}
	to, err := parseDayEnd("to", filter.To, loc)
	if err != nil {
		return Page[models.Event]{}, err
	}
	if from != nil && to != nil && !to.After(*from) {
		return Page[models.Event]{}, apperr.Validation("to", "must be after from")
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	events, total, err := s.events.List(ctx, store.EventFilter{
		Approval:    state,
		OrganizerID: filter.OrganizerID,
		Search:      strings.TrimSpace(filter.Search),
		Category:    filter.Category,
		From:        from,
		To:          to,
		Page:        page,
		Limit:       limit,
	})
	if err != nil {
		return Page[models.Event]{}, apperr.Internal("failed to list events", err)
	}
	return newPage(events, total, page, limit), nil
}

// Update applies a partial edit. A content edit by anyone but an admin
// sends the event back to pending, unless the organizer is verified.
// Existing registrants are told about the change and, when the start time
// moved, their reminders are rescheduled.
func (s *EventService) Update(ctx context.Context, actor *access.Actor, id uuid.UUID, patch EventPatch) (*models.Event, error) {
	event, err := s.loadOwned(ctx, actor, access.UpdateEvent, id)
	if err != nil {
		return nil, err
	}

	updated := *event
	changed, err := applyPatch(&updated, patch)
	if err != nil {
		return nil, err
	}
	startChanged := !updated.StartTime.Equal(event.StartTime)

	var tiers []models.TicketTier
	switch {
	case patch.TicketTiers != nil:
		// Unchanged tiers are left alone so registrations keep their tier.
		if !tiersEqual(event.TicketTiers, *patch.TicketTiers) {
			tiers = tiersFromInput(*patch.TicketTiers)
			updated.TicketTiers = tiers
		}
	case updated.IsFree() && len(event.TicketTiers) > 0:
		tiers = []models.TicketTier{}
		updated.TicketTiers = tiers
	}
	if err := validateEvent(&updated); err != nil {
		return nil, err
	}

	if changed && !actor.IsAdmin {
		if actor.IsVerifiedOrganizer {
			updated.SetApproval(models.ApprovalApproved)
		} else {
			updated.SetApproval(models.ApprovalPending)
		}
	}

	registrants, err := s.registrations.ListByEvent(ctx, event.ID)
	if err != nil {
		return nil, apperr.Internal("failed to load registrations", err)
	}

	if err := s.events.Save(ctx, &updated, tiers); err != nil {
		return nil, storeErr(err, "event not found")
	}

	if len(registrants) > 0 && changed {
		s.fanout.Notify(ctx, notify.Request{
			Event:      &updated,
			Template:   notify.EventUpdated,
			Recipients: registrationRecipients(registrants),
		})
		if startChanged {
			s.reminders.Reschedule(ctx, &updated, registrants)
		}
	}

	logging.Ctx(ctx).Info().Str("event_id", updated.ID.String()).
		Bool("content_changed", changed).Bool("start_changed", startChanged).
		Str("approval_state", string(updated.ApprovalState)).
		Msg("event updated")
	return &updated, nil
}

// applyPatch copies the set fields onto event and reports whether any
// moderated field (content, schedule, location, pricing) changed.
func applyPatch(event *models.Event, patch EventPatch) (bool, error) {
	changed := false
	setString := func(dst *string, src *string) {
		if src == nil {
			return
		}
		v := strings.TrimSpace(*src)
		if v != *dst {
			*dst = v
			changed = true
		}
	}

	setString(&event.Title, patch.Title)
	setString(&event.ShortDescription, patch.ShortDescription)
	setString(&event.Description, patch.Description)
	setString(&event.Address, patch.Address)

	if patch.Category != nil && models.Category(*patch.Category) != event.Category {
		event.Category = models.Category(*patch.Category)
		changed = true
	}
	if patch.PricingMode != nil && models.PricingMode(*patch.PricingMode) != event.PricingMode {
		event.PricingMode = models.PricingMode(*patch.PricingMode)
		changed = true
	}
	if patch.Latitude != nil && !floatPtrEqual(event.Latitude, patch.Latitude) {
		event.Latitude = patch.Latitude
		changed = true
	}
	if patch.Longitude != nil && !floatPtrEqual(event.Longitude, patch.Longitude) {
		event.Longitude = patch.Longitude
		changed = true
	}

	if patch.StartTime != nil {
		start, err := parseTime("start_time", *patch.StartTime)
		if err != nil {
			return false, err
		}
		if !start.Equal(event.StartTime) {
			event.StartTime = start
			changed = true
		}
	}
	if patch.EndTime != nil {
		end, err := parseOptionalTime("end_time", *patch.EndTime)
		if err != nil {
			return false, err
		}
		if !timePtrEqual(event.EndTime, end) {
			event.EndTime = end
			changed = true
		}
	}
	if patch.RegistrationDeadline != nil {
		deadline, err := parseOptionalTime("registration_deadline", *patch.RegistrationDeadline)
		if err != nil {
			return false, err
		}
		if !timePtrEqual(event.RegistrationDeadline, deadline) {
			event.RegistrationDeadline = deadline
			changed = true
		}
	}
	if patch.TicketTiers != nil && !tiersEqual(event.TicketTiers, *patch.TicketTiers) {
		changed = true
	}
	return changed, nil
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func tiersEqual(current []models.TicketTier, next []TicketTierInput) bool {
	if len(current) != len(next) {
		return false
	}
	for i := range current {
		if current[i].Name != strings.TrimSpace(next[i].Name) ||
			current[i].Price != next[i].Price ||
			current[i].Description != strings.TrimSpace(next[i].Description) {
			return false
		}
	}
	return true
}

func tiersFromInput(in []TicketTierInput) []models.TicketTier {
	tiers := make([]models.TicketTier, 0, len(in))
	for _, t := range in {
		tiers = append(tiers, models.TicketTier{
			Name:        strings.TrimSpace(t.Name),
			Price:       t.Price,
			Description: strings.TrimSpace(t.Description),
		})
	}
	return tiers
}

// validateEvent checks the invariants of a complete event.
func validateEvent(event *models.Event) error {
	switch {
	case event.Title == "":
		return apperr.Validation("title", "is required")
	case event.Description == "":
		return apperr.Validation("description", "is required")
	case event.Address == "":
		return apperr.Validation("address", "is required")
	case !models.ValidCategory(string(event.Category)):
		return apperr.Validation("category", "unknown category")
	case event.EndTime != nil && event.EndTime.Before(event.StartTime):
		return apperr.Validation("end_time", "must not be before start_time")
	case event.Latitude != nil && (*event.Latitude < -90 || *event.Latitude > 90):
		return apperr.Validation("latitude", "must be between -90 and 90")
	case event.Longitude != nil && (*event.Longitude < -180 || *event.Longitude > 180):
		return apperr.Validation("longitude", "must be between -180 and 180")
	}

	switch event.PricingMode {
	case models.PricingFree:
		if len(event.TicketTiers) > 0 {
			return apperr.Validation("ticket_tiers", "free events cannot have ticket tiers")
		}
	case models.PricingPaid:
		if len(event.TicketTiers) == 0 {
			return apperr.Validation("ticket_tiers", "paid events require at least one ticket tier")
		}
		for i, tier := range event.TicketTiers {
			if tier.Name == "" {
				return apperr.Validation(fmt.Sprintf("ticket_tiers[%d].name", i), "is required")
			}
			if tier.Price <= 0 {
				return apperr.Validation(fmt.Sprintf("ticket_tiers[%d].price", i), "must be greater than zero")
			}
		}
	default:
		return apperr.Validation("pricing_mode", "must be free or paid")
	}
	return nil
}

// Delete removes the event with its tiers and registrations, then tells
// every former registrant. The registrant list is read before the delete.
func (s *EventService) Delete(ctx context.Context, actor *access.Actor, id uuid.UUID) error {
	event, err := s.loadOwned(ctx, actor, access.DeleteEvent, id)
	if err != nil {
		return err
	}

	registrants, err := s.registrations.ListByEvent(ctx, event.ID)
	if err != nil {
		return apperr.Internal("failed to load registrations", err)
	}
	if err := s.events.Delete(ctx, event.ID); err != nil {
		return storeErr(err, "event not found")
	}
	if event.ImagePath != "" {
		if err := s.removeFile(event.ImagePath); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("path", event.ImagePath).Msg("failed to delete event image")
		}
	}

	s.fanout.Notify(ctx, notify.Request{
		Event:      event,
		Template:   notify.EventCancelled,
		Recipients: registrationRecipients(registrants),
	})
	logging.Ctx(ctx).Info().Str("event_id", event.ID.String()).
		Int("registrants", len(registrants)).Msg("event deleted")
	return nil
}

func (s *EventService) Approve(ctx context.Context, actor *access.Actor, id uuid.UUID) (*models.Event, error) {
	return s.moderate(ctx, actor, access.ApproveEvent, id, func(event *models.Event) (notify.Template, string) {
		event.SetApproval(models.ApprovalApproved)
		return notify.EventUpdated, fmt.Sprintf("Your event %s has been approved and is now publicly listed.", event.Title)
	})
}

func (s *EventService) Reject(ctx context.Context, actor *access.Actor, id uuid.UUID, reason string) (*models.Event, error) {
	return s.moderate(ctx, actor, access.RejectEvent, id, func(event *models.Event) (notify.Template, string) {
		event.SetApproval(models.ApprovalRejected)
		note := fmt.Sprintf("Your event %s has been rejected.", event.Title)
		if reason = strings.TrimSpace(reason); reason != "" {
			note += " Reason: " + reason
		}
		return notify.EventUpdated, note
	})
}

func (s *EventService) Flag(ctx context.Context, actor *access.Actor, id uuid.UUID, reason string) (*models.Event, error) {
	reason = strings.TrimSpace(reason)
	if err := s.gate.Authorize(actor, access.FlagEvent); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, apperr.Validation("reason", "is required")
	}
	return s.transition(ctx, actor, access.FlagEvent, id, func(event *models.Event) (notify.Template, string) {
		event.IsFlagged = true
		event.FlagReason = reason
		return notify.EventFlagged, reason
	})
}

func (s *EventService) Unflag(ctx context.Context, actor *access.Actor, id uuid.UUID) (*models.Event, error) {
	return s.moderate(ctx, actor, access.UnflagEvent, id, func(event *models.Event) (notify.Template, string) {
		event.IsFlagged = false
		event.FlagReason = ""
		return notify.EventUnflagged, ""
	})
}

// moderate runs an admin transition and notifies the organizer only.
func (s *EventService) moderate(ctx context.Context, actor *access.Actor, op access.Operation, id uuid.UUID, apply func(*models.Event) (notify.Template, string)) (*models.Event, error) {
	if err := s.gate.Authorize(actor, op); err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, op, id, apply)
}

// transition is moderate for callers that already authorized op.
func (s *EventService) transition(ctx context.Context, actor *access.Actor, op access.Operation, id uuid.UUID, apply func(*models.Event) (notify.Template, string)) (*models.Event, error) {
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "event not found")
	}

	tmpl, note := apply(event)
	if err := s.events.Save(ctx, event, nil); err != nil {
		return nil, storeErr(err, "event not found")
	}

	if organizer := s.organizer(ctx, event); organizer != nil {
		s.fanout.Notify(ctx, notify.Request{
			Event:      event,
			Template:   tmpl,
			Recipients: []notify.Recipient{notify.RecipientFromUser(organizer)},
			Note:       note,
		})
	}
	logging.Ctx(ctx).Info().Str("event_id", event.ID.String()).Str("operation", string(op)).
		Str("admin_id", actor.UserID.String()).Msg("event moderated")
	return event, nil
}

func (s *EventService) organizer(ctx context.Context, event *models.Event) *models.User {
	if event.Organizer != nil {
		return event.Organizer
	}
	user, err := s.users.GetByID(ctx, event.OrganizerID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event_id", event.ID.String()).Msg("organizer not found")
		return nil
	}
	return user
}

// SetImage stores a new image via upload and replaces the previous one.
func (s *EventService) SetImage(ctx context.Context, actor *access.Actor, id uuid.UUID, upload func() (string, error)) (*models.Event, error) {
	event, err := s.loadOwned(ctx, actor, access.UploadEventImage, id)
	if err != nil {
		return nil, err
	}

	path, err := upload()
	if err != nil {
		return nil, apperr.Validation("image", err.Error())
	}
	previous := event.ImagePath
	event.ImagePath = path
	if err := s.events.Save(ctx, event, nil); err != nil {
		_ = s.removeFile(path)
		return nil, storeErr(err, "event not found")
	}
	if previous != "" {
		if err := s.removeFile(previous); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("path", previous).Msg("failed to delete previous event image")
		}
	}
	return event, nil
}

func registrationRecipients(registrations []models.Registration) []notify.Recipient {
	recipients := make([]notify.Recipient, 0, len(registrations))
	for i := range registrations {
		recipients = append(recipients, notify.RecipientFromRegistration(&registrations[i]))
	}
	return recipients
}
