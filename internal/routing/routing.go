// Package routing decides where a signed-in member belongs. It performs no
// I/O: callers turn a Decision into an HTTP redirect or a JSON answer.
package routing

import (
	"net/url"

	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/rbac"
)

// Outcome is what the boundary layer should do with a request.
type Outcome string

const (
	Allow    Outcome = "allow"
	Redirect Outcome = "redirect"
)

// Reason explains a redirect away from the requested page. It is sent to the
// login page as the error query parameter.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoProfile         Reason = "no_profile"
	ReasonProfileIncomplete Reason = "profile_incomplete"
	ReasonAccountSuspended  Reason = "account_suspended"
	ReasonAccountPending    Reason = "account_pending"
	ReasonInsufficientRole  Reason = "insufficient_role"
)

// Fixed page paths
const (
	LoginPath           = "/login"
	CompleteProfilePath = "/complete-profile"
)

// Decision is the result of a routing check.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Target  string  `json:"target,omitempty"`
	Reason  Reason  `json:"reason,omitempty"`
}

// Allowed reports whether the request may proceed.
func (d Decision) Allowed() bool { return d.Outcome == Allow }

// DashboardRoute maps a role to its dashboard. Unknown roles get the member
// dashboard, which grants nothing on its own.
func DashboardRoute(r rbac.Role) string {
	switch r {
	case rbac.RoleAdmin:
		return "/dashboard/admin"
	case rbac.RoleModerator:
		return "/dashboard/moderator"
	case rbac.RoleAlumni:
		return "/dashboard/alumni"
	case rbac.RoleMember:
		return "/dashboard/member"
	}
	return "/dashboard/member"
}

// AfterLogin sends a freshly authenticated caller to the right page. The
// checks run in a fixed order: profile existence, completion, status, role.
func AfterLogin(p *models.Profile) Decision {
	if d, blocked := precheck(p); blocked {
		return d
	}
	return Decision{Outcome: Redirect, Target: DashboardRoute(p.Role)}
}

// Guard decides whether p may open a page that requires minimum. A caller
// below the required role is sent back to their own dashboard.
func Guard(p *models.Profile, minimum rbac.Role) Decision {
	if d, blocked := precheck(p); blocked {
		return d
	}
	if !rbac.HasMinimumRole(p.Role, minimum) {
		return Decision{Outcome: Redirect, Target: DashboardRoute(p.Role), Reason: ReasonInsufficientRole}
	}
	return Decision{Outcome: Allow}
}

// precheck runs the part of the chain shared by AfterLogin and Guard.
func precheck(p *models.Profile) (Decision, bool) {
	if p == nil {
		return loginWith(ReasonNoProfile), true
	}
	if !p.ProfileCompleted {
		return Decision{Outcome: Redirect, Target: CompleteProfilePath, Reason: ReasonProfileIncomplete}, true
	}
	switch p.Status {
	case models.ProfileStatusSuspended:
		return loginWith(ReasonAccountSuspended), true
	case models.ProfileStatusPending:
		return loginWith(ReasonAccountPending), true
	}
	return Decision{}, false
}

func loginWith(reason Reason) Decision {
	q := url.Values{"error": []string{string(reason)}}
	return Decision{Outcome: Redirect, Target: LoginPath + "?" + q.Encode(), Reason: reason}
}
