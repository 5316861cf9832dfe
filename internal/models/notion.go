package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// NotionWorkspace is a Notion workspace linked to a user
type NotionWorkspace struct {
	ID          string           `json:"id" gorm:"primaryKey;type:text"`
	UserID      string           `json:"userId" gorm:"not null;uniqueIndex:idx_notion_workspaces_owner"`
	NotionID    string           `json:"notionId" gorm:"not null;uniqueIndex:idx_notion_workspaces_owner"`
	Name        string           `json:"name" gorm:"not null"`
	Icon        *string          `json:"icon"`
	BotID       string           `json:"botId"`
	AccessToken string           `json:"-" gorm:"not null"`
	Status      ConnectionStatus `json:"status" gorm:"not null;default:connected"`
	LastSync    time.Time        `json:"lastSync"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// TableName specifies the table name for NotionWorkspace
func (NotionWorkspace) TableName() string {
	return "notion_workspaces"
}

// TrackedDatabase is a Notion database the user registered for publishing
type TrackedDatabase struct {
	ID          string          `json:"id" gorm:"primaryKey;type:text"`
	UserID      string          `json:"userId" gorm:"not null;uniqueIndex:idx_notion_databases_owner"`
	WorkspaceID string          `json:"workspaceId" gorm:"not null;index"`
	NotionID    string          `json:"notionId" gorm:"not null;uniqueIndex:idx_notion_databases_owner"`
	Name        string          `json:"name" gorm:"not null"`
	Active      bool            `json:"active" gorm:"not null;default:true"`
	LastSync    *time.Time      `json:"lastSync"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	Config      *DatabaseConfig `json:"config,omitempty" gorm:"foreignKey:DatabaseID"`
}

// TableName specifies the table name for TrackedDatabase
func (TrackedDatabase) TableName() string {
	return "notion_databases"
}

// PlatformConfig toggles publishing of a tracked database to one platform
type PlatformConfig struct {
	Enabled bool `json:"enabled"`
}

// DatabaseConfig maps the columns of a tracked database to publishing fields
type DatabaseConfig struct {
	ID              string         `json:"id" gorm:"primaryKey;type:text"`
	DatabaseID      string         `json:"databaseId" gorm:"not null;uniqueIndex"`
	StatusColumn    string         `json:"statusColumn" gorm:"not null"`
	StatusValue     string         `json:"statusValue" gorm:"not null"`
	ContentColumn   string         `json:"contentColumn" gorm:"not null"`
	ImageColumn     string         `json:"imageColumn"`
	PlatformColumn  string         `json:"platformColumn" gorm:"not null"`
	DateColumn      string         `json:"dateColumn"`
	UpdateStatus    bool           `json:"updateStatus" gorm:"not null;default:true"`
	NotifyOnPublish bool           `json:"notifyOnPublish" gorm:"not null;default:true"`
	Platforms       datatypes.JSON `json:"platformConfigs" gorm:"type:jsonb;not null"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// TableName specifies the table name for DatabaseConfig
func (DatabaseConfig) TableName() string {
	return "notion_database_configs"
}

// Column names and status value that a connected database starts with.
const (
	DefaultStatusColumn   = "Status"
	DefaultStatusValue    = "⏳ Aguardando"
	DefaultContentColumn  = "Descrição"
	DefaultImageColumn    = "Midia"
	DefaultPlatformColumn = "Status"
	DefaultDateColumn     = "Publicar em"
)

// DefaultDatabaseConfig returns the configuration attached to a freshly
// connected database. Every platform starts disabled.
func DefaultDatabaseConfig(databaseID string) DatabaseConfig {
	cfg := DatabaseConfig{
		DatabaseID:      databaseID,
		StatusColumn:    DefaultStatusColumn,
		StatusValue:     DefaultStatusValue,
		ContentColumn:   DefaultContentColumn,
		ImageColumn:     DefaultImageColumn,
		PlatformColumn:  DefaultPlatformColumn,
		DateColumn:      DefaultDateColumn,
		UpdateStatus:    true,
		NotifyOnPublish: true,
	}
	toggles := map[string]PlatformConfig{}
	for _, p := range SocialPlatforms {
		toggles[p] = PlatformConfig{Enabled: false}
	}
	// a map of plain structs always marshals
	_ = cfg.SetPlatformConfigs(toggles)
	return cfg
}

// PlatformConfigs decodes the per-platform toggles.
func (c *DatabaseConfig) PlatformConfigs() (map[string]PlatformConfig, error) {
	out := map[string]PlatformConfig{}
	if len(c.Platforms) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(c.Platforms, &out); err != nil {
		return nil, fmt.Errorf("failed to decode platform configs: %w", err)
	}
	return out, nil
}

// SetPlatformConfigs encodes the per-platform toggles.
func (c *DatabaseConfig) SetPlatformConfigs(configs map[string]PlatformConfig) error {
	raw, err := json.Marshal(configs)
	if err != nil {
		return fmt.Errorf("failed to encode platform configs: %w", err)
	}
	c.Platforms = datatypes.JSON(raw)
	return nil
}

// Validate checks that the mandatory column mappings are set
func (c *DatabaseConfig) Validate() error {
	if c.StatusColumn == "" {
		return fmt.Errorf("status column is required")
	}
	if c.StatusValue == "" {
		return fmt.Errorf("status value is required")
	}
	if c.ContentColumn == "" {
		return fmt.Errorf("content column is required")
	}
	if c.PlatformColumn == "" {
		return fmt.Errorf("platform column is required")
	}

	configs, err := c.PlatformConfigs()
	if err != nil {
		return err
	}
	for name := range configs {
		if !IsSocialPlatform(name) {
			return fmt.Errorf("unknown platform %q", name)
		}
	}
	return nil
}
