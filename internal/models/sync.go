package models

import (
	"time"

	"github.com/google/uuid"
)

// TriggerType represents what started an auto-sync run
type TriggerType string

const (
	TriggerCron     TriggerType = "CRON"
	TriggerSchedule TriggerType = "SCHEDULE"
)

// SyncRun records one batch orchestrator run for dashboards
type SyncRun struct {
	ID                uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	TriggeredBy       TriggerType `gorm:"type:varchar(20);not null" json:"triggeredBy"`
	Scanned           int         `json:"scanned"`
	Attempted         int         `json:"attempted"`
	SyncedConnections int         `json:"syncedConnections"`
	TotalFetched      int         `json:"totalFetched"`
	TotalSaved        int         `json:"totalSaved"`
	InventoryUpdated  int         `json:"inventoryUpdated"`
	Errors            []string    `gorm:"type:jsonb;serializer:json" json:"errors"`
	StartedAt         time.Time   `gorm:"index:idx_ebay_sync_runs_started" json:"startedAt"`
	FinishedAt        *time.Time  `json:"finishedAt,omitempty"`
}

// TableName specifies the table name for SyncRun
func (SyncRun) TableName() string {
	return "ebay_sync_runs"
}
