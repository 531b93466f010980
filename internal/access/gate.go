// Package access classifies every operation and decides whether an actor
// may perform it. Role inheritance is anonymous < user < admin and is held
// in a casbin enforcer built from the operation table below.
package access

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/google/uuid"

	"github.com/farellandr/eventhub/internal/apperr"
	"github.com/farellandr/eventhub/internal/models"
)

//go:embed model.conf
var modelConf string

type Class int

const (
	Public Class = iota
	Authenticated
	OwnerOrAdmin
	AdminOnly
)

func (c Class) String() string {
	switch c {
	case Public:
		return "public"
	case Authenticated:
		return "authenticated"
	case OwnerOrAdmin:
		return "owner-or-admin"
	case AdminOnly:
		return "admin-only"
	}
	return "unknown"
}

type Operation string

const (
	ListEvents Operation = "events:list"
	GetEvent   Operation = "events:get"
	Register   Operation = "auth:register"
	Login      Operation = "auth:login"

	CreateEvent         Operation = "events:create"
	RegisterForEvent    Operation = "registrations:create"
	ViewProfile         Operation = "me:get"
	ListOwnEvents       Operation = "me:events"
	ListOwnRegistration Operation = "me:registrations"
	ListNotifications   Operation = "me:notifications"

	UpdateEvent            Operation = "events:update"
	DeleteEvent            Operation = "events:delete"
	UploadEventImage       Operation = "events:image"
	ListEventRegistrations Operation = "events:registrations"
	CheckIn                Operation = "events:checkin"
	CancelRegistration     Operation = "registrations:cancel"
	ViewTicket             Operation = "registrations:ticket"

	ApproveEvent   Operation = "admin:events:approve"
	RejectEvent    Operation = "admin:events:reject"
	FlagEvent      Operation = "admin:events:flag"
	UnflagEvent    Operation = "admin:events:unflag"
	ListAllEvents  Operation = "admin:events:list"
	ListUsers      Operation = "admin:users:list"
	BanUser        Operation = "admin:users:ban"
	UnbanUser      Operation = "admin:users:unban"
	VerifyUser     Operation = "admin:users:verify"
	UnverifyUser   Operation = "admin:users:unverify"
	RunReminders   Operation = "jobs:reminders"
	ProcessPending Operation = "jobs:pending"
)

// Operations maps every operation to its class.
var Operations = map[Operation]Class{
	ListEvents: Public,
	GetEvent:   Public,
	Register:   Public,
	Login:      Public,

	CreateEvent:         Authenticated,
	RegisterForEvent:    Authenticated,
	ViewProfile:         Authenticated,
	ListOwnEvents:       Authenticated,
	ListOwnRegistration: Authenticated,
	ListNotifications:   Authenticated,

	UpdateEvent:            OwnerOrAdmin,
	DeleteEvent:            OwnerOrAdmin,
	UploadEventImage:       OwnerOrAdmin,
	ListEventRegistrations: OwnerOrAdmin,
	CheckIn:                OwnerOrAdmin,
	CancelRegistration:     OwnerOrAdmin,
	ViewTicket:             OwnerOrAdmin,

	ApproveEvent:   AdminOnly,
	RejectEvent:    AdminOnly,
	FlagEvent:      AdminOnly,
	UnflagEvent:    AdminOnly,
	ListAllEvents:  AdminOnly,
	ListUsers:      AdminOnly,
	BanUser:        AdminOnly,
	UnbanUser:      AdminOnly,
	VerifyUser:     AdminOnly,
	UnverifyUser:   AdminOnly,
	RunReminders:   AdminOnly,
	ProcessPending: AdminOnly,
}

const (
	roleAnonymous = "anonymous"
	roleUser      = "user"
	roleAdmin     = "admin"

	// actBypassOwnership lets a role act on resources it does not own.
	actBypassOwnership = "ownership:bypass"
)

// Actor is the authenticated caller. A nil *Actor is anonymous.
type Actor struct {
	UserID              uuid.UUID
	IsAdmin             bool
	IsVerifiedOrganizer bool
}

func ActorFromUser(user *models.User) *Actor {
	return &Actor{
		UserID:              user.ID,
		IsAdmin:             user.IsAdmin,
		IsVerifiedOrganizer: user.IsVerifiedOrganizer,
	}
}

// System is the actor used by scheduled triggers authenticated with the
// job token.
func System() *Actor {
	return &Actor{IsAdmin: true}
}

func (a *Actor) role() string {
	switch {
	case a == nil:
		return roleAnonymous
	case a.IsAdmin:
		return roleAdmin
	}
	return roleUser
}

type Gate struct {
	enforcer *casbin.SyncedEnforcer
}

func NewGate() (*Gate, error) {
	m, err := model.NewModelFromString(modelConf)
	if err != nil {
		return nil, fmt.Errorf("failed to load access model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create access enforcer: %w", err)
	}

	if _, err := enforcer.AddGroupingPolicy(roleUser, roleAnonymous); err != nil {
		return nil, err
	}
	if _, err := enforcer.AddGroupingPolicy(roleAdmin, roleUser); err != nil {
		return nil, err
	}
	if _, err := enforcer.AddPolicy(roleAdmin, actBypassOwnership); err != nil {
		return nil, err
	}
	for op, class := range Operations {
		if _, err := enforcer.AddPolicy(minimumRole(class), string(op)); err != nil {
			return nil, fmt.Errorf("failed to add policy for %s: %w", op, err)
		}
	}
	return &Gate{enforcer: enforcer}, nil
}

// MustNewGate panics if the embedded model cannot be loaded.
func MustNewGate() *Gate {
	g, err := NewGate()
	if err != nil {
		panic(err)
	}
	return g
}

func minimumRole(class Class) string {
	switch class {
	case Public:
		return roleAnonymous
	case AdminOnly:
		return roleAdmin
	}
	return roleUser
}

func ClassOf(op Operation) (Class, bool) {
	class, ok := Operations[op]
	return class, ok
}

// Authorize checks the actor's role against the operation's class. Owner
// checks for owner-or-admin operations happen in AuthorizeOwner once the
// resource is loaded.
func (g *Gate) Authorize(actor *Actor, op Operation) error {
	if _, ok := Operations[op]; !ok {
		return apperr.Internal("unknown operation "+string(op), nil)
	}
	allowed, err := g.enforcer.Enforce(actor.role(), string(op))
	if err != nil {
		return apperr.Internal("authorization failed", err)
	}
	if allowed {
		return nil
	}
	if actor == nil {
		return apperr.Unauthorized("authentication required")
	}
	return apperr.Forbidden("you do not have permission to perform this action")
}

// AuthorizeOwner is Authorize plus the ownership rule: the actor must own
// the resource unless their role may bypass ownership.
func (g *Gate) AuthorizeOwner(actor *Actor, op Operation, ownerID uuid.UUID) error {
	if err := g.Authorize(actor, op); err != nil {
		return err
	}
	if Operations[op] != OwnerOrAdmin || actor.UserID == ownerID {
		return nil
	}
	bypass, err := g.enforcer.Enforce(actor.role(), actBypassOwnership)
	if err != nil {
		return apperr.Internal("authorization failed", err)
	}
	if !bypass {
		return apperr.Forbidden("you do not have permission to modify this resource")
	}
	return nil
}
