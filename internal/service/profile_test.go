package service

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/audit"
	"github.com/voltclub/portal/internal/auth"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/rbac"
	"gorm.io/gorm"
)

func strPtr(s string) *string { return &s }

func TestCreateOrUpdateProfile_Defaults(t *testing.T) {
	env := testSetup(t)

	tests := []struct {
		name         string
		identity     *auth.Identity
		upd          ProfileUpdate
		wantUsername string
		wantFullName string
		wantAvatar   string
	}{
		{
			name: "metadata name and avatar",
			identity: &auth.Identity{UserID: uuid.New(), Email: "ada.lovelace@example.com", EmailConfirmed: true,
				Metadata: models.AccountMetadata{FullName: "Ada Lovelace", AvatarURL: "https://img/ada.png"}},
			wantUsername: "ada.lovelace",
			wantFullName: "Ada Lovelace",
			wantAvatar:   "https://img/ada.png",
		},
		{
			name:         "title-cased local part",
			identity:     &auth.Identity{UserID: uuid.New(), Email: "grace_hopper@example.com"},
			wantUsername: "grace_hopper",
			wantFullName: "Grace Hopper",
		},
		{
			name:         "caller values win",
			identity:     &auth.Identity{UserID: uuid.New(), Email: "alan@example.com", Metadata: models.AccountMetadata{FullName: "A. Turing"}},
			upd:          ProfileUpdate{Username: strPtr("Turing"), FullName: strPtr("Alan Turing")},
			wantUsername: "turing",
			wantFullName: "Alan Turing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := env.profiles.CreateOrUpdateProfile(ctx, tt.identity, tt.upd)
			if err != nil {
				t.Fatalf("CreateOrUpdateProfile: %v", err)
			}
			if p.Username != tt.wantUsername {
				t.Errorf("username: expected %q, got %q", tt.wantUsername, p.Username)
			}
			if p.FullName != tt.wantFullName {
				t.Errorf("full name: expected %q, got %q", tt.wantFullName, p.FullName)
			}
			if p.AvatarURL != tt.wantAvatar {
				t.Errorf("avatar: expected %q, got %q", tt.wantAvatar, p.AvatarURL)
			}
			if p.Role != rbac.RoleMember || p.Status != models.ProfileStatusActive {
				t.Errorf("expected active member, got %s/%s", p.Role, p.Status)
			}
			if p.EmailVerified != tt.identity.EmailConfirmed {
				t.Errorf("email_verified should follow the identity")
			}
		})
	}
}

func TestCreateOrUpdateProfile_StoredValuesKept(t *testing.T) {
	env := testSetup(t)
	identity := &auth.Identity{UserID: uuid.New(), Email: "kay@example.com",
		Metadata: models.AccountMetadata{FullName: "Kay From Provider"}}

	if _, err := env.profiles.CreateOrUpdateProfile(ctx, identity, ProfileUpdate{FullName: strPtr("Kay Chosen")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	first := loadProfile(t, env, identity.UserID)

	// The stored name is not replaced by the provider default on a later update.
	identity.EmailConfirmed = true
	p, err := env.profiles.CreateOrUpdateProfile(ctx, identity, ProfileUpdate{Bio: strPtr("  likes soldering  ")})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.FullName != "Kay Chosen" {
		t.Errorf("expected stored full name to be kept, got %q", p.FullName)
	}
	if p.Bio != "likes soldering" {
		t.Errorf("expected trimmed bio, got %q", p.Bio)
	}
	if !p.EmailVerified {
		t.Error("expected email_verified to be re-derived")
	}
	if p.Username != first.Username {
		t.Errorf("username changed from %q to %q", first.Username, p.Username)
	}
	if !p.UpdatedAt.After(first.UpdatedAt) && !p.UpdatedAt.Equal(first.UpdatedAt) {
		t.Error("expected updated_at to be stamped")
	}

	logs := auditActions(t, env, audit.ActionUpdateProfile)
	if len(logs) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(logs))
	}
	var details struct {
		Created       bool     `json:"created"`
		ChangedFields []string `json:"changed_fields"`
	}
	if err := json.Unmarshal([]byte(logs[1].DetailsJSON), &details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details.Created {
		t.Error("second entry should not be a creation")
	}
	want := map[string]bool{"email_verified": true, "bio": true}
	if len(details.ChangedFields) != len(want) {
		t.Fatalf("expected changed fields %v, got %v", want, details.ChangedFields)
	}
	for _, f := range details.ChangedFields {
		if !want[f] {
			t.Errorf("unexpected changed field %q", f)
		}
	}
}

func TestCreateOrUpdateProfile_Usernames(t *testing.T) {
	env := testSetup(t)

	first := &auth.Identity{UserID: uuid.New(), Email: "sam@one.example"}
	second := &auth.Identity{UserID: uuid.New(), Email: "sam@two.example"}

	p1, err := env.profiles.CreateOrUpdateProfile(ctx, first, ProfileUpdate{})
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	p2, err := env.profiles.CreateOrUpdateProfile(ctx, second, ProfileUpdate{})
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if p1.Username != "sam" || p2.Username != "sam1" {
		t.Errorf("expected sam and sam1, got %q and %q", p1.Username, p2.Username)
	}

	var conflict *ConflictError
	if _, err := env.profiles.CreateOrUpdateProfile(ctx, second, ProfileUpdate{Username: strPtr("sam")}); !errors.As(err, &conflict) {
		t.Errorf("expected ConflictError for a taken username, got %v", err)
	}

	var validation *ValidationError
	if _, err := env.profiles.CreateOrUpdateProfile(ctx, second, ProfileUpdate{Username: strPtr("x!")}); !errors.As(err, &validation) {
		t.Errorf("expected ValidationError for a malformed username, got %v", err)
	}

	if got := loadProfile(t, env, second.UserID).Username; got != "sam1" {
		t.Errorf("failed updates must not change the row, got %q", got)
	}
}

func TestCreateOrUpdateProfile_RequiresIdentity(t *testing.T) {
	env := testSetup(t)
	if _, err := env.profiles.CreateOrUpdateProfile(ctx, nil, ProfileUpdate{}); !errors.Is(err, auth.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestCompleteProfile(t *testing.T) {
	env := testSetup(t)
	identity := &auth.Identity{UserID: uuid.New(), Email: "lin@example.com"}

	var validation *ValidationError
	if _, err := env.profiles.CompleteProfile(ctx, identity, ProfileUpdate{}); !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError without department, got %v", err)
	}
	var count int64
	env.db.Model(&models.Profile{}).Where("id = ?", identity.UserID).Count(&count)
	if count != 0 {
		t.Fatal("a rejected completion must not create the profile")
	}

	year := 2
	p, err := env.profiles.CompleteProfile(ctx, identity, ProfileUpdate{Department: strPtr("EEE"), YearOfStudy: &year})
	if err != nil {
		t.Fatalf("CompleteProfile: %v", err)
	}
	if !p.ProfileCompleted || !loadProfile(t, env, identity.UserID).ProfileCompleted {
		t.Error("expected profile_completed to be set")
	}
	if len(auditActions(t, env, audit.ActionCompleteProfile)) != 1 {
		t.Error("expected one complete_profile audit entry")
	}
}

func TestSetRole(t *testing.T) {
	env := testSetup(t)
	admin := createMember(t, env, "admin", rbac.RoleAdmin)
	moderator := createMember(t, env, "mod", rbac.RoleModerator)
	member := createMember(t, env, "member", rbac.RoleMember)

	if _, err := env.profiles.SetRole(ctx, moderator, member, rbac.RoleAlumni); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("moderator must not edit roles, got %v", err)
	}

	p, err := env.profiles.SetRole(ctx, admin, member, rbac.RoleAlumni)
	if err != nil {
		t.Fatalf("SetRole: %v", err)
	}
	if p.Role != rbac.RoleAlumni || loadProfile(t, env, member).Role != rbac.RoleAlumni {
		t.Error("expected role alumni")
	}
	if len(notificationsFor(t, env, member)) != 1 {
		t.Error("expected a notification for the member")
	}

	var validation *ValidationError
	if _, err := env.profiles.SetRole(ctx, admin, admin, rbac.RoleMember); !errors.As(err, &validation) {
		t.Errorf("expected ValidationError for self change, got %v", err)
	}
	if _, err := env.profiles.SetRole(ctx, admin, member, "root"); !errors.As(err, &validation) {
		t.Errorf("expected ValidationError for unknown role, got %v", err)
	}
	if _, err := env.profiles.SetRole(ctx, admin, uuid.New(), rbac.RoleAlumni); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	env := testSetup(t)
	admin := createMember(t, env, "admin", rbac.RoleAdmin)
	member := createMember(t, env, "member", rbac.RoleMember)

	if _, err := env.profiles.SetStatus(ctx, member, admin, models.ProfileStatusSuspended); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("member must not suspend users, got %v", err)
	}
	if _, err := env.profiles.SetStatus(ctx, admin, member, models.ProfileStatusSuspended); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if loadProfile(t, env, member).Status != models.ProfileStatusSuspended {
		t.Error("expected suspended status")
	}
	if len(auditActions(t, env, audit.ActionChangeStatus)) != 1 {
		t.Error("expected a change_status audit entry")
	}
}

func TestListProfiles(t *testing.T) {
	env := testSetup(t)
	admin := createMember(t, env, "admin", rbac.RoleAdmin)
	member := createMember(t, env, "oscar", rbac.RoleMember)
	createMember(t, env, "olivia", rbac.RoleAlumni)

	if _, err := env.profiles.ListProfiles(ctx, member, ProfileFilter{}); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("member must not list users, got %v", err)
	}

	all, err := env.profiles.ListProfiles(ctx, admin, ProfileFilter{})
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 profiles, got %d", len(all))
	}

	alumni, err := env.profiles.ListProfiles(ctx, admin, ProfileFilter{Role: rbac.RoleAlumni})
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(alumni) != 1 || alumni[0].Username != "olivia" {
		t.Errorf("expected only olivia, got %v", alumni)
	}

	found, err := env.profiles.ListProfiles(ctx, admin, ProfileFilter{Search: "OSC"})
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(found) != 1 || found[0].ID != member {
		t.Errorf("expected search to find oscar, got %v", found)
	}
}

func TestCompleteProfile_RejectedLeavesProfileUnchanged(t *testing.T) {
	env := testSetup(t)
	identity := &auth.Identity{UserID: uuid.New(), Email: "ohm@example.com"}
	if _, err := env.profiles.CreateOrUpdateProfile(ctx, identity, ProfileUpdate{Bio: strPtr("old bio")}); err != nil {
		t.Fatalf("CreateOrUpdateProfile: %v", err)
	}
	before := loadProfile(t, env, identity.UserID)
	audits := len(auditActions(t, env, audit.ActionUpdateProfile))

	var validation *ValidationError
	_, err := env.profiles.CompleteProfile(ctx, identity, ProfileUpdate{Bio: strPtr("new bio")})
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError without department, got %v", err)
	}

	after := loadProfile(t, env, identity.UserID)
	if after.Bio != "old bio" || after.ProfileCompleted || !after.UpdatedAt.Equal(before.UpdatedAt) {
		t.Errorf("profile changed by rejected completion: bio=%q completed=%v", after.Bio, after.ProfileCompleted)
	}
	if got := len(auditActions(t, env, audit.ActionUpdateProfile)); got != audits {
		t.Errorf("audit entries = %d, want %d", got, audits)
	}
	if len(auditActions(t, env, audit.ActionCompleteProfile)) != 0 {
		t.Error("no complete_profile entry expected")
	}
}

func TestCreateOrUpdateProfile_ConcurrentFirstSignIn(t *testing.T) {
	env := testSetup(t)
	identity := &auth.Identity{UserID: uuid.New(), Email: "volt@example.com"}

	// Insert the row just before the service's own insert, as a second
	// sign-in for the same user would.
	raced := false
	err := env.db.Callback().Create().Before("gorm:create").Register("test:concurrent_profile", func(db *gorm.DB) {
		if raced || db.Statement.Table != "profiles" {
			return
		}
		raced = true
		db.Session(&gorm.Session{NewDB: true}).Exec(
			"INSERT INTO profiles (id, username, email, full_name, role, status, profile_completed, email_verified, points, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			identity.UserID, "volt-first", identity.Email, "Volt First", rbac.RoleMember, models.ProfileStatusActive, false, false, 0, env.clock, env.clock)
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	p, err := env.profiles.CreateOrUpdateProfile(ctx, identity, ProfileUpdate{Bio: strPtr("second login")})
	if err != nil {
		t.Fatalf("CreateOrUpdateProfile: %v", err)
	}
	if !raced {
		t.Fatal("concurrent insert did not run")
	}

	stored := loadProfile(t, env, identity.UserID)
	if stored.Username != "volt-first" || stored.Bio != "second login" || p.Username != "volt-first" {
		t.Errorf("expected the update to land on the existing row, got %+v", stored)
	}
	var count int64
	env.db.Model(&models.Profile{}).Where("id = ?", identity.UserID).Count(&count)
	if count != 1 {
		t.Errorf("profiles for user = %d, want 1", count)
	}
}
