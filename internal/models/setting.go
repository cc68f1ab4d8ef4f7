package models

import "time"

// Setting is a key/value row for installation-wide state.
type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Well-known setting keys
const (
	SettingInstanceID    = "instance_id"
	SettingSchemaVersion = "schema_version"
)
