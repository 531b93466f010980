package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/farellandr/eventhub/internal/access"
	"github.com/farellandr/eventhub/internal/apperr"
	"github.com/farellandr/eventhub/internal/helpers"
	"github.com/farellandr/eventhub/internal/logging"
	"github.com/farellandr/eventhub/internal/models"
	"github.com/farellandr/eventhub/internal/notify"
	"github.com/farellandr/eventhub/internal/store"
)

// RegisterInput holds the registrant's contact snapshot. Empty contact
// fields default to the account's.
type RegisterInput struct {
	Name                string     `json:"name"`
	Email               string     `json:"email" binding:"omitempty,email"`
	Phone               string     `json:"phone"`
	AdditionalAttendees int        `json:"additional_attendees" binding:"min=0"`
	TicketTierID        *uuid.UUID `json:"ticket_tier_id"`
}

type RegistrationService struct {
	gate          *access.Gate
	events        store.EventStore
	registrations store.RegistrationStore
	users         store.UserStore
	fanout        *notify.Fanout
	reminders     *notify.Reminders
	ticketSecret  string
	now           func() time.Time
}

func NewRegistrationService(gate *access.Gate, events store.EventStore, registrations store.RegistrationStore, users store.UserStore, fanout *notify.Fanout, reminders *notify.Reminders, ticketSecret string) *RegistrationService {
	return &RegistrationService{
		gate:          gate,
		events:        events,
		registrations: registrations,
		users:         users,
		fanout:        fanout,
		reminders:     reminders,
		ticketSecret:  ticketSecret,
		now:           time.Now,
	}
}

func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	s.now = now
	return s
}

// Register signs the actor up for an approved event, confirms it and
// schedules the reminder.
func (s *RegistrationService) Register(ctx context.Context, actor *access.Actor, eventID uuid.UUID, in RegisterInput) (*models.Registration, error) {
	if err := s.gate.Authorize(actor, access.RegisterForEvent); err != nil {
		return nil, err
	}
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, storeErr(err, "event not found")
	}
	if event.ApprovalState != models.ApprovalApproved {
		return nil, apperr.NotFound("event not found")
	}
	if event.RegistrationDeadline != nil && s.now().After(*event.RegistrationDeadline) {
		return nil, apperr.RegistrationClosed()
	}
	if in.AdditionalAttendees < 0 {
		return nil, apperr.Validation("additional_attendees", "must not be negative")
	}

	if _, err := s.registrations.GetByEventAndUser(ctx, event.ID, actor.UserID); err == nil {
		return nil, apperr.AlreadyRegistered()
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Internal("failed to check registration", err)
	}

	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, storeErr(err, "user not found")
	}

	registration := &models.Registration{
		EventID:             event.ID,
		UserID:              user.ID,
		Name:                firstNonEmpty(in.Name, user.DisplayName()),
		Email:               firstNonEmpty(in.Email, user.Email),
		Phone:               firstNonEmpty(in.Phone, user.PhoneNumber),
		AdditionalAttendees: in.AdditionalAttendees,
	}
	if in.TicketTierID != nil {
		tier, ok := event.Tier(*in.TicketTierID)
		if !ok {
			return nil, apperr.Validation("ticket_tier_id", "ticket tier does not belong to this event")
		}
		registration.TicketTierID = uuidPtr(tier.ID)
		registration.TicketTierName = tier.Name
		registration.TicketPrice = tier.Price
	}

	if err := s.registrations.Create(ctx, registration); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.AlreadyRegistered()
		}
		return nil, apperr.Internal("failed to create registration", err)
	}

	s.fanout.Notify(ctx, notify.Request{
		Event:      event,
		Template:   notify.RegistrationConfirmation,
		Recipients: []notify.Recipient{notify.RecipientFromRegistration(registration)},
	})
	if err := s.reminders.Schedule(ctx, event, registration); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("registration_id", registration.ID.String()).
			Msg("failed to schedule reminder")
	}

	logging.Ctx(ctx).Info().Str("registration_id", registration.ID.String()).
		Str("event_id", event.ID.String()).Int("party_size", registration.PartySize()).
		Msg("registration created")
	return registration, nil
}

// Cancel removes a registration by id. Only the registrant or an admin may
// cancel it.
func (s *RegistrationService) Cancel(ctx context.Context, actor *access.Actor, registrationID uuid.UUID) error {
	if err := s.gate.Authorize(actor, access.CancelRegistration); err != nil {
		return err
	}
	registration, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return registrationErr(err)
	}
	if err := s.gate.AuthorizeOwner(actor, access.CancelRegistration, registration.UserID); err != nil {
		return err
	}
	return s.cancel(ctx, registration)
}

// CancelForEvent removes the actor's own registration for an event.
func (s *RegistrationService) CancelForEvent(ctx context.Context, actor *access.Actor, eventID uuid.UUID) error {
	if err := s.gate.Authorize(actor, access.CancelRegistration); err != nil {
		return err
	}
	registration, err := s.registrations.GetByEventAndUser(ctx, eventID, actor.UserID)
	if err != nil {
		return registrationErr(err)
	}
	return s.cancel(ctx, registration)
}

func (s *RegistrationService) cancel(ctx context.Context, registration *models.Registration) error {
	if err := s.registrations.Delete(ctx, registration.ID); err != nil {
		return registrationErr(err)
	}
	if err := s.reminders.Cancel(ctx, registration); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("registration_id", registration.ID.String()).
			Msg("failed to drop pending reminder")
	}

	event, err := s.events.GetByID(ctx, registration.EventID)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("event_id", registration.EventID.String()).
			Msg("event missing while cancelling registration")
		event = &models.Event{ID: registration.EventID}
	}
	s.fanout.Notify(ctx, notify.Request{
		Event:      event,
		Template:   notify.RegistrationCancelled,
		Recipients: []notify.Recipient{notify.RecipientFromRegistration(registration)},
	})
	logging.Ctx(ctx).Info().Str("registration_id", registration.ID.String()).Msg("registration cancelled")
	return nil
}

func registrationErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.RegistrationNotFound()
	}
	return apperr.Internal("database error", err)
}

func (s *RegistrationService) ListForEvent(ctx context.Context, actor *access.Actor, eventID uuid.UUID) ([]models.Registration, error) {
	if err := s.gate.Authorize(actor, access.ListEventRegistrations); err != nil {
		return nil, err
	}
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, storeErr(err, "event not found")
	}
	if err := s.gate.AuthorizeOwner(actor, access.ListEventRegistrations, event.OrganizerID); err != nil {
		return nil, err
	}
	registrations, err := s.registrations.ListByEvent(ctx, event.ID)
	if err != nil {
		return nil, apperr.Internal("failed to list registrations", err)
	}
	return nonNil(registrations), nil
}

func (s *RegistrationService) ListMine(ctx context.Context, actor *access.Actor) ([]models.Registration, error) {
	if err := s.gate.Authorize(actor, access.ListOwnRegistration); err != nil {
		return nil, err
	}
	registrations, err := s.registrations.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, apperr.Internal("failed to list registrations", err)
	}
	return nonNil(registrations), nil
}

// Ticket returns the signed payload encoded in the registration's QR code.
func (s *RegistrationService) Ticket(ctx context.Context, actor *access.Actor, registrationID uuid.UUID) (string, error) {
	if err := s.gate.Authorize(actor, access.ViewTicket); err != nil {
		return "", err
	}
	registration, err := s.registrations.GetByID(ctx, registrationID)
	if err != nil {
		return "", registrationErr(err)
	}
	if err := s.gate.AuthorizeOwner(actor, access.ViewTicket, registration.UserID); err != nil {
		return "", err
	}
	if registration.CheckedInAt != nil {
		return "", apperr.Conflict(apperr.CodeAlreadyCheckedIn, "ticket already used")
	}
	return fmt.Sprintf("registration:%s;event:%s;signature:%s",
		registration.ID, registration.EventID, s.sign(registration)), nil
}

func (s *RegistrationService) sign(registration *models.Registration) string {
	return helpers.SignParts(s.ticketSecret,
		registration.ID.String(), registration.EventID.String(), registration.UserID.String())
}

type ticketPayload struct {
	registrationID uuid.UUID
	eventID        uuid.UUID
	signature      string
}

func parseTicket(data string) (ticketPayload, error) {
	invalid := apperr.Validation("qr_data", "invalid ticket format")
	parts := strings.Split(strings.TrimSpace(data), ";")
	if len(parts) != 3 ||
		!strings.HasPrefix(parts[0], "registration:") ||
		!strings.HasPrefix(parts[1], "event:") ||
		!strings.HasPrefix(parts[2], "signature:") {
		return ticketPayload{}, invalid
	}
	registrationID, err := uuid.Parse(strings.TrimPrefix(parts[0], "registration:"))
	if err != nil {
		return ticketPayload{}, invalid
	}
	eventID, err := uuid.Parse(strings.TrimPrefix(parts[1], "event:"))
	if err != nil {
		return ticketPayload{}, invalid
	}
	return ticketPayload{
		registrationID: registrationID,
		eventID:        eventID,
		signature:      strings.TrimPrefix(parts[2], "signature:"),
	}, nil
}

// CheckIn validates a scanned ticket for the event and marks it used. A
// ticket can be checked in once.
func (s *RegistrationService) CheckIn(ctx context.Context, actor *access.Actor, eventID uuid.UUID, qrData string) (*models.Registration, error) {
	if err := s.gate.Authorize(actor, access.CheckIn); err != nil {
		return nil, err
	}
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return nil, storeErr(err, "event not found")
	}
	if err := s.gate.AuthorizeOwner(actor, access.CheckIn, event.OrganizerID); err != nil {
		return nil, err
	}

	ticket, err := parseTicket(qrData)
	if err != nil {
		return nil, err
	}
	if ticket.eventID != event.ID {
		return nil, apperr.Validation("qr_data", "ticket is for a different event")
	}
	registration, err := s.registrations.GetByID(ctx, ticket.registrationID)
	if err != nil {
		return nil, registrationErr(err)
	}
	if registration.EventID != event.ID ||
		!helpers.VerifyParts(s.ticketSecret, ticket.signature,
			registration.ID.String(), registration.EventID.String(), registration.UserID.String()) {
		return nil, apperr.Validation("qr_data", "invalid ticket signature")
	}

	at := s.now()
	marked, err := s.registrations.MarkCheckedIn(ctx, registration.ID, at)
	if err != nil {
		return nil, registrationErr(err)
	}
	if !marked {
		return nil, apperr.Conflict(apperr.CodeAlreadyCheckedIn, "ticket already used")
	}
	registration.CheckedInAt = &at
	logging.Ctx(ctx).Info().Str("registration_id", registration.ID.String()).
		Str("event_id", event.ID.String()).Msg("ticket checked in")
	return registration, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
