package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/farellandr/eventhub/internal/access"
	"github.com/farellandr/eventhub/internal/apperr"
	"github.com/farellandr/eventhub/internal/auth"
	"github.com/farellandr/eventhub/internal/logging"
	"github.com/farellandr/eventhub/internal/models"
	"github.com/farellandr/eventhub/internal/notify"
	"github.com/farellandr/eventhub/internal/store"
)

// Tokens issues and verifies session tokens.
type Tokens interface {
	Issue(userID uuid.UUID) (string, error)
	Verify(token string) (uuid.UUID, error)
}

type SignupInput struct {
	Username    string `json:"username" binding:"required,min=3,max=32"`
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=6"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
}

type UserFilter struct {
	Search string
	Banned *bool
	Page   int
	Limit  int
}

type UserService struct {
	gate          *access.Gate
	users         store.UserStore
	notifications store.NotificationStore
	tokens        Tokens
	fanout        *notify.Fanout
}

func NewUserService(gate *access.Gate, users store.UserStore, notifications store.NotificationStore, tokens Tokens, fanout *notify.Fanout) *UserService {
	return &UserService{
		gate:          gate,
		users:         users,
		notifications: notifications,
		tokens:        tokens,
		fanout:        fanout,
	}
}

func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	if err := s.gate.Authorize(nil, access.Register); err != nil {
		return nil, err
	}
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" {
		return nil, apperr.Validation("username", "is required")
	}
	if strings.Contains(username, "@") {
		return nil, apperr.Validation("username", "must not contain @")
	}
	if len(in.Password) < 6 {
		return nil, apperr.Validation("password", "must be at least 6 characters")
	}

	for _, login := range []string{email, username} {
		if _, err := s.users.GetByLogin(ctx, login); err == nil {
			return nil, apperr.Conflict(apperr.CodeDuplicateAccount, "user already exists")
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Internal("failed to check existing user", err)
		}
	}

	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal("failed to hash the password", err)
	}
	user := &models.User{
		Username:    username,
		Email:       email,
		Password:    hashed,
		Name:        strings.TrimSpace(in.Name),
		PhoneNumber: strings.TrimSpace(in.PhoneNumber),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict(apperr.CodeDuplicateAccount, "user already exists")
		}
		return nil, apperr.Internal("failed to create user", err)
	}
	logging.Ctx(ctx).Info().Str("user_id", user.ID.String()).Msg("user registered")
	return user, nil
}

// Login checks credentials and issues a token. Banned accounts are refused
// with the stored reason.
func (s *UserService) Login(ctx context.Context, login, password string) (string, *models.User, error) {
	if err := s.gate.Authorize(nil, access.Login); err != nil {
		return "", nil, err
	}
	user, err := s.users.GetByLogin(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil, apperr.Unauthorized("invalid credentials")
		}
		return "", nil, apperr.Internal("failed to load user", err)
	}
	if !auth.CheckPassword(user.Password, password) {
		return "", nil, apperr.Unauthorized("invalid credentials")
	}
	if user.IsBanned {
		return "", nil, apperr.Banned(user.BanReason)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, apperr.Internal("failed to generate token", err)
	}
	return token, user, nil
}

// Authenticate resolves a session token to its user. A banned user is
// rejected here, before any operation runs.
func (s *UserService) Authenticate(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, apperr.Unauthorized("invalid or expired token")
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Unauthorized("invalid or expired token")
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	if user.IsBanned {
		return nil, apperr.Banned(user.BanReason)
	}
	return user, nil
}

func (s *UserService) Me(ctx context.Context, actor *access.Actor) (*models.User, error) {
	if err := s.gate.Authorize(actor, access.ViewProfile); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		return nil, storeErr(err, "user not found")
	}
	return user, nil
}

func (s *UserService) Notifications(ctx context.Context, actor *access.Actor, limit int) ([]models.Notification, error) {
	if err := s.gate.Authorize(actor, access.ListNotifications); err != nil {
		return nil, err
	}
	_, limit = normalizePage(1, limit)
	notifications, err := s.notifications.ListByUser(ctx, actor.UserID, limit)
	if err != nil {
		return nil, apperr.Internal("failed to list notifications", err)
	}
	return nonNil(notifications), nil
}

func (s *UserService) List(ctx context.Context, actor *access.Actor, filter UserFilter) (Page[models.User], error) {
	if err := s.gate.Authorize(actor, access.ListUsers); err != nil {
		return Page[models.User]{}, err
	}
	page, limit := normalizePage(filter.Page, filter.Limit)
	users, total, err := s.users.List(ctx, store.UserFilter{
		Search: strings.TrimSpace(filter.Search),
		Banned: filter.Banned,
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		return Page[models.User]{}, apperr.Internal("failed to list users", err)
	}
	return newPage(users, total, page, limit), nil
}

func (s *UserService) Ban(ctx context.Context, actor *access.Actor, userID uuid.UUID, reason string) (*models.User, error) {
	reason = strings.TrimSpace(reason)
	if err := s.gate.Authorize(actor, access.BanUser); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, apperr.Validation("reason", "is required")
	}
	if userID == actor.UserID {
		return nil, apperr.Validation("user_id", "administrators cannot ban themselves")
	}
	return s.adminUpdate(ctx, actor, access.BanUser, userID, func(user *models.User) string {
		user.IsBanned = true
		user.BanReason = reason
		return "Your account has been banned. Reason: " + reason
	})
}

func (s *UserService) Unban(ctx context.Context, actor *access.Actor, userID uuid.UUID) (*models.User, error) {
	return s.adminUpdate(ctx, actor, access.UnbanUser, userID, func(user *models.User) string {
		user.IsBanned = false
		user.BanReason = ""
		return "Your account ban has been lifted."
	})
}

func (s *UserService) Verify(ctx context.Context, actor *access.Actor, userID uuid.UUID) (*models.User, error) {
	return s.adminUpdate(ctx, actor, access.VerifyUser, userID, func(user *models.User) string {
		user.IsVerifiedOrganizer = true
		return "Your account has been verified as an organizer. New events you create are published without review."
	})
}

func (s *UserService) Unverify(ctx context.Context, actor *access.Actor, userID uuid.UUID) (*models.User, error) {
	return s.adminUpdate(ctx, actor, access.UnverifyUser, userID, func(user *models.User) string {
		user.IsVerifiedOrganizer = false
		return "Your organizer verification has been removed. New events will be reviewed before publishing."
	})
}

// adminUpdate applies an admin change to a user and notifies them.
func (s *UserService) adminUpdate(ctx context.Context, actor *access.Actor, op access.Operation, userID uuid.UUID, apply func(*models.User) string) (*models.User, error) {
	if err := s.gate.Authorize(actor, op); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user not found")
	}

	note := apply(user)
	if err := s.users.Save(ctx, user); err != nil {
		return nil, apperr.Internal("failed to update user", err)
	}

	s.fanout.Notify(ctx, notify.Request{
		Template:   notify.AccountUpdated,
		Recipients: []notify.Recipient{notify.RecipientFromUser(user)},
		Channel:    models.ChannelEmail,
		Note:       note,
	})
	logging.Ctx(ctx).Info().Str("user_id", user.ID.String()).Str("operation", string(op)).
		Str("admin_id", actor.UserID.String()).Msg("user updated by admin")
	return user, nil
}
