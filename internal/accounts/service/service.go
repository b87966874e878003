package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"eventgate/internal/accounts/models"
	"eventgate/internal/accounts/notify"
	"eventgate/internal/platform/middleware"
	"eventgate/internal/platform/privacy"
	dErrors "eventgate/pkg/domain-errors"
	"eventgate/pkg/platform/audit"
	"eventgate/pkg/platform/sentinel"
	"eventgate/pkg/secrets"
)

// Store persists staff accounts. Implementations return sentinel.ErrNotFound
// for unknown emails and sentinel.ErrConflict for duplicates.
type Store interface {
	Create(ctx context.Context, a *models.Account) error
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	Update(ctx context.Context, a *models.Account) error
	Delete(ctx context.Context, email string) error
	ListApproved(ctx context.Context, role models.Role) ([]*models.Account, error)
}

type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) error
}

// TokenIssuer is satisfied by jwttoken.JWTService.
type TokenIssuer interface {
	GenerateStaffToken(accountID, email, role string) (string, error)
}

type Option func(*Service)

type Service struct {
	store      Store
	notifier   Notifier
	issuer     TokenIssuer
	auditor    audit.Emitter
	logger     *slog.Logger
	adminEmail string
	devEmails  []string
	now        func() time.Time
	password   func() (string, error)
}

func WithAuditor(auditor audit.Emitter) Option {
	return func(s *Service) {
		s.auditor = auditor
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRecipients sets who approves registrations. Admin registrations go to
// devEmails; volunteer registrations go to approved admins, or adminEmail
// when there are none.
func WithRecipients(adminEmail string, devEmails []string) Option {
	return func(s *Service) {
		s.adminEmail = adminEmail
		s.devEmails = devEmails
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(store Store, notifier Notifier, issuer TokenIssuer, opts ...Option) *Service {
	if store == nil {
		panic("account store is required")
	}
	if notifier == nil {
		panic("notifier is required")
	}
	if issuer == nil {
		panic("token issuer is required")
	}
	svc := &Service{
		store:    store,
		notifier: notifier,
		issuer:   issuer,
		logger:   slog.Default(),
		now:      time.Now,
		password: secrets.TemporaryPassword,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Register creates an unapproved account with a temporary password. The
// password is mailed to the registrant only; approvers get a notice.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.Account, error) {
	temp, err := s.password()
	if err != nil {
		return nil, err
	}
	hash, err := secrets.Hash(temp)
	if err != nil {
		return nil, err
	}
	now := s.now()
	account := &models.Account{
		ID:            uuid.New(),
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		Phone:         req.Phone,
		WhatsAppPhone: req.WhatsAppPhone,
		Role:          models.Role(req.Role),
		PasswordHash:  hash,
		FirstLogin:    true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, account); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "user already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
	}

	err = s.notifier.Notify(ctx, notify.Message{
		Kind:    notify.KindCredentials,
		To:      []string{account.Email},
		Subject: "Your event staff account",
		Body: fmt.Sprintf("Hello %s,\n\nYour %s account has been created.\nTemporary password: %s\n\nYou will be asked to choose a new password on first login.",
			account.FirstName, account.Role, temp),
	})
	if err != nil {
		if delErr := s.store.Delete(ctx, account.Email); delErr != nil {
			s.logger.ErrorContext(ctx, "failed to roll back account after notification failure",
				"email", privacy.MaskEmail(account.Email),
				"error", delErr,
			)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not send credentials, registration cancelled")
	}

	s.requestApproval(ctx, account)
	s.emit(ctx, audit.ActionAccountRegistered, account.Email)
	s.logger.InfoContext(ctx, "account registered",
		"email", privacy.MaskEmail(account.Email),
		"role", string(account.Role),
		"request_id", middleware.GetRequestID(ctx),
	)
	return account, nil
}

func (s *Service) requestApproval(ctx context.Context, account *models.Account) {
	recipients, err := s.approvers(ctx, account.Role)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to resolve approvers", "error", err)
	}
	if len(recipients) == 0 {
		s.logger.WarnContext(ctx, "no approvers configured", "email", privacy.MaskEmail(account.Email))
		return
	}
	err = s.notifier.Notify(ctx, notify.Message{
		Kind:    notify.KindApprovalRequest,
		To:      recipients,
		Subject: fmt.Sprintf("New %s registration: %s", account.Role, account.FullName()),
		Body: fmt.Sprintf("%s (%s, phone %s) registered as %s and is waiting for approval.",
			account.FullName(), account.Email, account.Phone, account.Role),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to send approval request",
			"email", privacy.MaskEmail(account.Email),
			"error", err,
		)
	}
}

func (s *Service) approvers(ctx context.Context, role models.Role) ([]string, error) {
	if role == models.RoleAdmin {
		return s.devEmails, nil
	}
	admins, err := s.store.ListApproved(ctx, models.RoleAdmin)
	if err != nil || len(admins) == 0 {
		if s.adminEmail == "" {
			return nil, err
		}
		return []string{s.adminEmail}, err
	}
	out := make([]string, 0, len(admins))
	for _, a := range admins {
		out = append(out, a.Email)
	}
	return out, nil
}

// Login verifies credentials. On first login without a new password it only
// reports FirstLogin; with one it replaces the temporary password.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResult, error) {
	account, err := s.store.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if err := secrets.Verify(req.Password, account.PasswordHash); err != nil {
		return nil, err
	}

	result := &models.LoginResult{Account: account}
	if account.FirstLogin {
		if req.NewPassword == "" {
			result.FirstLogin = true
			return result, nil
		}
		if err := s.resetPassword(ctx, account, req.NewPassword); err != nil {
			return nil, err
		}
		result.Reset = true
		if !account.Approved {
			result.PendingApproval = true
			return result, nil
		}
	} else if !account.Approved {
		return nil, dErrors.New(dErrors.CodeForbidden, "account pending approval")
	}

	token, err := s.issuer.GenerateStaffToken(account.ID.String(), account.Email, string(account.Role))
	if err != nil {
		return nil, err
	}
	result.Token = token
	return result, nil
}

// resetPassword replaces the temporary password. Admins are approved by
// completing first login.
func (s *Service) resetPassword(ctx context.Context, account *models.Account, password string) error {
	hash, err := secrets.Hash(password)
	if err != nil {
		return err
	}
	account.PasswordHash = hash
	account.FirstLogin = false
	if account.Role == models.RoleAdmin {
		account.Approved = true
	}
	account.UpdatedAt = s.now()
	if err := s.store.Update(ctx, account); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update account")
	}
	s.emit(ctx, audit.ActionPasswordReset, account.Email)
	return nil
}

// SetPassword changes the password of the signed-in staff member. Admins may
// set any account's password.
func (s *Service) SetPassword(ctx context.Context, req *models.SetPasswordRequest) error {
	staff, ok := middleware.GetStaff(ctx)
	if !ok {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if models.NormalizeEmail(staff.Email) != req.Email && staff.Role != string(models.RoleAdmin) {
		return dErrors.New(dErrors.CodeForbidden, "cannot change another account's password")
	}
	account, err := s.find(ctx, req.Email)
	if err != nil {
		return err
	}
	return s.resetPassword(ctx, account, req.Password)
}

// ForgotPassword issues a fresh temporary password and forces first login.
func (s *Service) ForgotPassword(ctx context.Context, req *models.ForgotPasswordRequest) error {
	account, err := s.find(ctx, req.Email)
	if err != nil {
		return err
	}
	if account.FirstLogin {
		return dErrors.New(dErrors.CodeBadRequest, "finish first login with the temporary password already sent")
	}
	temp, err := s.password()
	if err != nil {
		return err
	}
	hash, err := secrets.Hash(temp)
	if err != nil {
		return err
	}
	previous := *account
	account.PasswordHash = hash
	account.FirstLogin = true
	account.UpdatedAt = s.now()
	if err := s.store.Update(ctx, account); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update account")
	}
	err = s.notifier.Notify(ctx, notify.Message{
		Kind:    notify.KindPasswordReset,
		To:      []string{account.Email},
		Subject: "Your password was reset",
		Body: fmt.Sprintf("Hello %s,\n\nTemporary password: %s\n\nYou will be asked to choose a new password on next login.",
			account.FirstName, temp),
	})
	if err != nil {
		if restoreErr := s.store.Update(ctx, &previous); restoreErr != nil {
			s.logger.ErrorContext(ctx, "failed to restore password after notification failure",
				"email", privacy.MaskEmail(account.Email),
				"error", restoreErr,
			)
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "could not send temporary password")
	}
	s.emit(ctx, audit.ActionPasswordReset, account.Email)
	return nil
}

// Approve lets a volunteer sign in. Approving twice is a no-op.
func (s *Service) Approve(ctx context.Context, email string) (*models.Account, error) {
	staff, ok := middleware.GetStaff(ctx)
	if !ok || staff.Role != string(models.RoleAdmin) {
		return nil, dErrors.New(dErrors.CodeForbidden, "admin role required")
	}
	account, err := s.find(ctx, models.NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if account.Approved {
		return account, nil
	}
	account.Approved = true
	account.UpdatedAt = s.now()
	if err := s.store.Update(ctx, account); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update account")
	}
	err = s.notifier.Notify(ctx, notify.Message{
		Kind:    notify.KindApproved,
		To:      []string{account.Email},
		Subject: "Your account was approved",
		Body:    fmt.Sprintf("Hello %s,\n\nYou can now sign in to the scanner.", account.FirstName),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to send approval notice", "email", privacy.MaskEmail(account.Email), "error", err)
	}
	s.emit(ctx, audit.ActionAccountApproved, account.Email)
	return account, nil
}

func (s *Service) find(ctx context.Context, email string) (*models.Account, error) {
	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return account, nil
}

func (s *Service) emit(ctx context.Context, action audit.Action, subject string) {
	if s.auditor == nil {
		return
	}
	event := audit.Event{
		Action:    string(action),
		Subject:   subject,
		Device:    middleware.GetDevice(ctx),
		RequestID: middleware.GetRequestID(ctx),
	}
	if staff, ok := middleware.GetStaff(ctx); ok {
		event.Actor = staff.Email
	} else {
		event.Actor = subject
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "action", event.Action, "error", err)
	}
}
