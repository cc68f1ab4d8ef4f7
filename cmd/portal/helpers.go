package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/auth"
	"github.com/voltclub/portal/internal/models"
	"github.com/voltclub/portal/internal/server"
	"gorm.io/gorm"
)

// openApp loads configuration, migrates the database and wires the services.
// The returned func releases external connections.
func openApp(ctx context.Context) (*server.App, func(), error) {
	cfg, database, err := server.Setup()
	if err != nil {
		return nil, nil, err
	}
	app, err := server.NewApp(ctx, cfg, database)
	if err != nil {
		return nil, nil, err
	}
	return app, app.Close, nil
}

// resolveProfile finds a profile by ID or email address.
func resolveProfile(ctx context.Context, db *gorm.DB, ref string) (*models.Profile, error) {
	q := db.WithContext(ctx)
	if id, err := uuid.Parse(ref); err == nil {
		q = q.Where("id = ?", id)
	} else {
		email, err := auth.NormalizeEmail(ref)
		if err != nil {
			return nil, fmt.Errorf("%q is neither a user ID nor an email address", ref)
		}
		q = q.Where("email = ?", email)
	}

	var profile models.Profile
	if err := q.First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("no member found for %q", ref)
		}
		return nil, err
	}
	return &profile, nil
}
