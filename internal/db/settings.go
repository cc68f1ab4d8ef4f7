package db

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/voltclub/portal/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSettingNotFound is returned by GetSetting for an unknown key.
var ErrSettingNotFound = errors.New("setting not found")

// GetSetting reads a single setting value.
func GetSetting(db *gorm.DB, key string) (string, error) {
	var s models.Setting
	if err := db.Where("key = ?", key).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrSettingNotFound
		}
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return s.Value, nil
}

// PutSetting creates or overwrites a setting.
func PutSetting(db *gorm.DB, key, value string) error {
	s := models.Setting{Key: key, Value: value}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&s).Error
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// InstanceID returns the installation's stable identifier, generating and
// storing one on first use. Call it after migrations.
func InstanceID(db *gorm.DB) (string, error) {
	id, err := GetSetting(db, models.SettingInstanceID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrSettingNotFound) {
		return "", err
	}

	id = uuid.New().String()
	// DoNothing keeps the first writer's ID when two processes race.
	s := models.Setting{Key: models.SettingInstanceID, Value: id}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&s).Error; err != nil {
		return "", fmt.Errorf("failed to create instance ID: %w", err)
	}

	stored, err := GetSetting(db, models.SettingInstanceID)
	if err != nil {
		return "", err
	}
	if stored == id {
		slog.Info("Generated new instance ID", "instance_id", id)
	}
	return stored, nil
}
