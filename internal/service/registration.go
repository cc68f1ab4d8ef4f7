package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/audit"
	"github.com/voltclub/portal/internal/auth"
	"github.com/voltclub/portal/internal/metrics"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/notify"
	"github.com/voltclub/portal/internal/rbac"
	"github.com/voltclub/portal/internal/routing"
	"gorm.io/gorm"
)

const genericFailure = "Something went wrong. Please try again."

// ConfirmationSender delivers email confirmation tokens.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, email, token string) error
}

// LogConfirmationSender writes the confirmation link to the log. It stands
// in for a mail service in development.
type LogConfirmationSender struct {
	BaseURL string
}

// SendConfirmation implements ConfirmationSender.
func (s LogConfirmationSender) SendConfirmation(_ context.Context, email, token string) error {
	slog.Info("Email confirmation required", "email", email, "url", s.BaseURL+"/api/v1/auth/confirm?token="+token)
	return nil
}

// Registration is the form-facing surface: sign-up, sign-in, profile
// completion and the role-request actions. Every method returns a filled-in
// result; the error is returned alongside it so the caller can choose an
// HTTP status.
type Registration struct {
	db            *gorm.DB
	auth          *auth.BasicAuthenticator
	profiles      *ProfileService
	requests      *RoleRequestService
	notifier      *notify.Notifier
	confirmations ConfirmationSender
	metrics       *metrics.Metrics
}

// NewRegistration wires the registration actions.
func NewRegistration(db *gorm.DB, a *auth.BasicAuthenticator, profiles *ProfileService, requests *RoleRequestService,
	notifier *notify.Notifier, confirmations ConfirmationSender, m *metrics.Metrics) *Registration {
	return &Registration{
		db:            db,
		auth:          a,
		profiles:      profiles,
		requests:      requests,
		notifier:      notifier,
		confirmations: confirmations,
		metrics:       m,
	}
}

// Register creates the account, a member profile, an optional pending role
// request and a welcome notification. When the email is confirmed at
// sign-up the caller is signed in straight away.
func (r *Registration) Register(ctx context.Context, req RegisterRequest) (SessionResult, error) {
	var requested rbac.RequestableRole
	if name := strings.TrimSpace(req.RequestedRole); name != "" && name != string(rbac.RoleMember) {
		role, ok := rbac.ParseRequestableRole(name)
		if !ok {
			err := &ValidationError{Message: "requested role must be 'alumni' or 'moderator'"}
			return SessionResult{ActionResult: failure(err)}, err
		}
		if strings.TrimSpace(req.RequestReason) == "" {
			err := &ValidationError{Message: "a reason is required when requesting a role"}
			return SessionResult{ActionResult: failure(err)}, err
		}
		requested = role
	}

	identity, confirmToken, err := r.auth.SignUp(ctx, req.Email, req.Password, models.AccountMetadata{FullName: strings.TrimSpace(req.FullName)})
	if err != nil {
		return SessionResult{ActionResult: failure(err)}, err
	}
	if err := audit.LogAction(r.db.WithContext(ctx), identity.UserID, audit.ActionRegister, audit.Resource("account", identity.UserID), nil); err != nil {
		slog.Warn("Failed to audit registration", "user_id", identity.UserID, "error", err)
	}

	upd := ProfileUpdate{}
	if name := strings.TrimSpace(req.FullName); name != "" {
		upd.FullName = &name
	}
	if username := strings.TrimSpace(req.Username); username != "" {
		upd.Username = &username
	}
	profile, err := r.profiles.CreateOrUpdateProfile(ctx, identity, upd)
	if err != nil {
		return SessionResult{ActionResult: failure(err)}, err
	}

	message := "Welcome to the club!"
	if requested != "" {
		_, err := r.requests.Create(ctx, identity.UserID, CreateRoleRequest{RequestedRole: requested, Reason: req.RequestReason})
		if err != nil {
			slog.Warn("Role request at registration failed", "user_id", identity.UserID, "error", err)
			message += " Your role request could not be submitted; you can try again from your profile."
		} else {
			message += fmt.Sprintf(" Your request to become %s is awaiting review.", requested)
		}
	}

	r.notifier.Send(ctx, identity.UserID, models.NotificationSuccess, "Welcome!",
		"Your account has been created. Complete your profile to get started.", routing.CompleteProfilePath)

	if !identity.EmailConfirmed {
		if err := r.confirmations.SendConfirmation(ctx, identity.Email, confirmToken); err != nil {
			slog.Warn("Failed to send confirmation", "user_id", identity.UserID, "error", err)
		}
		return SessionResult{
			ActionResult: ActionResult{Success: true, Message: message + " Check your email to confirm your address."},
			Profile:      profile,
		}, nil
	}

	resp, err := r.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		// The account exists; the caller can still sign in normally.
		slog.Warn("Sign-in after registration failed", "user_id", identity.UserID, "error", err)
		return SessionResult{ActionResult: ActionResult{Success: true, Message: message + " Please sign in."}, Profile: profile}, nil
	}
	result, _ := r.session(resp, profile)
	result.Message = message
	return result, nil
}

// Login signs the caller in with email and password.
func (r *Registration) Login(ctx context.Context, email, password string) (SessionResult, error) {
	resp, err := r.auth.Login(ctx, email, password)
	if err != nil {
		r.metrics.Login("password", "failure")
		if errors.Is(err, auth.ErrInvalidCredentials) {
			details := map[string]interface{}{"email": strings.ToLower(strings.TrimSpace(email))}
			if err := audit.LogAction(r.db.WithContext(ctx), uuid.Nil, audit.ActionLoginFailed, "account", details); err != nil {
				slog.Warn("Failed to audit login failure", "error", err)
			}
		}
		return SessionResult{ActionResult: failure(err)}, err
	}
	return r.CompleteLogin(ctx, resp, "password")
}

// CompleteLogin turns an authenticated identity into a session: it ensures a
// profile exists and asks the router where the caller belongs. Suspended and
// pending accounts get no token.
func (r *Registration) CompleteLogin(ctx context.Context, resp *auth.LoginResponse, method string) (SessionResult, error) {
	profile, err := r.profiles.Get(ctx, resp.Identity.UserID)
	if errors.Is(err, ErrNotFound) {
		profile, err = r.profiles.CreateOrUpdateProfile(ctx, resp.Identity, ProfileUpdate{})
	}
	if err != nil {
		r.metrics.Login(method, "failure")
		return SessionResult{ActionResult: failure(err)}, err
	}

	result, err := r.session(resp, profile)
	if err != nil {
		r.metrics.Login(method, "blocked")
		return result, err
	}

	r.metrics.Login(method, "success")
	if err := audit.LogAction(r.db.WithContext(ctx), profile.ID, audit.ActionLogin, audit.Resource("account", profile.ID),
		map[string]interface{}{"method": method}); err != nil {
		slog.Warn("Failed to audit login", "user_id", profile.ID, "error", err)
	}
	return result, nil
}

func (r *Registration) session(resp *auth.LoginResponse, profile *models.Profile) (SessionResult, error) {
	decision := routing.AfterLogin(profile)
	switch decision.Reason {
	case routing.ReasonAccountSuspended:
		return SessionResult{
			ActionResult: ActionResult{Error: "Your account has been suspended. Contact an administrator."},
			Route:        &decision,
		}, ErrAccountBlocked
	case routing.ReasonAccountPending:
		return SessionResult{
			ActionResult: ActionResult{Error: "Your account is awaiting approval."},
			Route:        &decision,
		}, ErrAccountBlocked
	}

	expires := time.Now().UTC().Add(auth.TokenDuration)
	return SessionResult{
		ActionResult: ActionResult{Success: true, Message: "Signed in."},
		Token:        resp.Token,
		ExpiresAt:    &expires,
		Profile:      profile,
		Route:        &decision,
	}, nil
}

// ConfirmEmail redeems a confirmation token and marks the profile's email
// as verified.
func (r *Registration) ConfirmEmail(ctx context.Context, token string) (ActionResult, error) {
	identity, err := r.auth.ConfirmEmail(ctx, token)
	if err != nil {
		if !errors.Is(err, auth.ErrUnauthorized) {
			return failure(err), err
		}
		err = &ValidationError{Message: "This confirmation link is invalid or has expired."}
		return failure(err), err
	}

	if _, err := r.profiles.CreateOrUpdateProfile(ctx, identity, ProfileUpdate{}); err != nil {
		return failure(err), err
	}
	if err := audit.LogAction(r.db.WithContext(ctx), identity.UserID, audit.ActionConfirmEmail, audit.Resource("account", identity.UserID), nil); err != nil {
		slog.Warn("Failed to audit email confirmation", "user_id", identity.UserID, "error", err)
	}
	return ActionResult{Success: true, Message: "Email confirmed. You can now sign in."}, nil
}

// CompleteProfile fills in the caller's profile and marks it complete.
func (r *Registration) CompleteProfile(ctx context.Context, identity *auth.Identity, upd ProfileUpdate) (SessionResult, error) {
	profile, err := r.profiles.CompleteProfile(ctx, identity, upd)
	if err != nil {
		return SessionResult{ActionResult: failure(err)}, err
	}
	decision := routing.AfterLogin(profile)
	return SessionResult{
		ActionResult: ActionResult{Success: true, Message: "Profile completed."},
		Profile:      profile,
		Route:        &decision,
	}, nil
}

// RequestRoleChange files a role request for userID.
func (r *Registration) RequestRoleChange(ctx context.Context, userID uuid.UUID, role, reason string, documents []string) (ActionResult, error) {
	requested, ok := rbac.ParseRequestableRole(strings.TrimSpace(role))
	if !ok {
		err := &ValidationError{Message: "requested role must be 'alumni' or 'moderator'"}
		return failure(err), err
	}
	if _, err := r.requests.Create(ctx, userID, CreateRoleRequest{RequestedRole: requested, Reason: reason, SupportingDocuments: documents}); err != nil {
		return failure(err), err
	}
	return ActionResult{Success: true, Message: "Your role request has been submitted."}, nil
}

// ApproveRoleRequest approves a pending request on behalf of reviewerID.
func (r *Registration) ApproveRoleRequest(ctx context.Context, reviewerID, requestID uuid.UUID, notes string) (ActionResult, error) {
	rr, err := r.requests.Approve(ctx, reviewerID, requestID, notes)
	if err != nil {
		return failure(err), err
	}
	return ActionResult{Success: true, Message: fmt.Sprintf("Request approved; the member is now %s.", rr.RequestedRole)}, nil
}

// RejectRoleRequest rejects a pending request on behalf of reviewerID.
func (r *Registration) RejectRoleRequest(ctx context.Context, reviewerID, requestID uuid.UUID, notes string) (ActionResult, error) {
	if _, err := r.requests.Reject(ctx, reviewerID, requestID, notes); err != nil {
		return failure(err), err
	}
	return ActionResult{Success: true, Message: "Request rejected."}, nil
}

// failure converts an error into the message shown to the member. Errors
// with no user-facing meaning collapse to one generic message.
func failure(err error) ActionResult {
	var validationErr *ValidationError
	var conflictErr *ConflictError
	switch {
	case errors.As(err, &validationErr):
		return ActionResult{Error: validationErr.Message}
	case errors.As(err, &conflictErr):
		return ActionResult{Error: conflictErr.Message}
	case errors.Is(err, ErrPermissionDenied):
		return ActionResult{Error: "You do not have permission to perform this action."}
	case errors.Is(err, ErrNotFound):
		return ActionResult{Error: "The requested record was not found."}
	case errors.Is(err, auth.ErrInvalidCredentials):
		return ActionResult{Error: "Invalid email or password."}
	case errors.Is(err, auth.ErrEmailTaken):
		return ActionResult{Error: "An account with this email already exists."}
	case errors.Is(err, auth.ErrEmailNotConfirmed):
		return ActionResult{Error: "Please confirm your email address before signing in."}
	case errors.Is(err, auth.ErrInvalidEmail):
		return ActionResult{Error: "Please enter a valid email address."}
	case errors.Is(err, auth.ErrWeakPassword):
		return ActionResult{Error: "Password must be at least 8 characters."}
	case errors.Is(err, auth.ErrUnauthorized):
		return ActionResult{Error: "Please sign in to continue."}
	}
	slog.Error("Action failed", "error", err)
	return ActionResult{Error: genericFailure}
}
