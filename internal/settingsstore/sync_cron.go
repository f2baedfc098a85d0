package settingsstore

import (
	"strconv"
	"time"

	"github.com/mrlokans/campussync/internal/entities"
)

const (
	DefaultSyncCronSchedule = "0 * * * *"

	envSyncCronEnabled  = "SYNC_CRON_ENABLED"
	envSyncCronSchedule = "SYNC_CRON_SCHEDULE"
)

// SyncCronConfig is the effective configuration of the periodic sync.
type SyncCronConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
}

// SyncCronConfigInfo includes source information for each field.
type SyncCronConfigInfo struct {
	Enabled       bool   `json:"enabled"`
	EnabledSource string `json:"enabled_source"` // "database", "environment", "default"

	Schedule            string `json:"schedule"`
	ScheduleSource      string `json:"schedule_source"`
	ScheduleDescription string `json:"schedule_description"`
}

// SyncStatus represents the outcome of the last periodic sync.
type SyncStatus struct {
	LastSyncAt *time.Time `json:"last_sync_at,omitempty"`
	Status     string     `json:"status,omitempty"` // "success", "partial", "failed", "running", "skipped", ""
	Message    string     `json:"message,omitempty"`
	Updated    bool       `json:"updated"`
}

// GetSyncCronEnabled returns whether the periodic sync runs (database > env > default on).
func (s *SettingsStore) GetSyncCronEnabled() bool {
	v, _ := s.resolve(entities.SettingKeySyncCronEnabled, envSyncCronEnabled, "true")
	return parseBool(v)
}

func (s *SettingsStore) SetSyncCronEnabled(enabled bool) error {
	return s.db.SetSetting(entities.SettingKeySyncCronEnabled, strconv.FormatBool(enabled))
}

// GetSyncCronSchedule returns the cron schedule (database > env > hourly).
func (s *SettingsStore) GetSyncCronSchedule() string {
	v, _ := s.resolve(entities.SettingKeySyncCronSchedule, envSyncCronSchedule, DefaultSyncCronSchedule)
	return v
}

// SetSyncCronSchedule validates and saves the schedule.
func (s *SettingsStore) SetSyncCronSchedule(schedule string) error {
	if err := ValidateCronSchedule(schedule); err != nil {
		return err
	}
	return s.db.SetSetting(entities.SettingKeySyncCronSchedule, schedule)
}

func (s *SettingsStore) GetSyncCronConfig() SyncCronConfig {
	return SyncCronConfig{
		Enabled:  s.GetSyncCronEnabled(),
		Schedule: s.GetSyncCronSchedule(),
	}
}

func (s *SettingsStore) GetSyncCronConfigInfo() SyncCronConfigInfo {
	enabled, enabledSource := s.resolve(entities.SettingKeySyncCronEnabled, envSyncCronEnabled, "true")
	schedule, scheduleSource := s.resolve(entities.SettingKeySyncCronSchedule, envSyncCronSchedule, DefaultSyncCronSchedule)
	return SyncCronConfigInfo{
		Enabled:             parseBool(enabled),
		EnabledSource:       enabledSource,
		Schedule:            schedule,
		ScheduleSource:      scheduleSource,
		ScheduleDescription: GetCronDescription(schedule),
	}
}

// GetSyncStatus returns the last periodic sync status.
func (s *SettingsStore) GetSyncStatus() SyncStatus {
	status := SyncStatus{}

	if setting, err := s.db.GetSetting(entities.SettingKeySyncLastAt); err == nil && setting.Value != "" {
		if ts, err := time.Parse(time.RFC3339, setting.Value); err == nil {
			status.LastSyncAt = &ts
		}
	}
	if setting, err := s.db.GetSetting(entities.SettingKeySyncLastStatus); err == nil {
		status.Status = setting.Value
	}
	if setting, err := s.db.GetSetting(entities.SettingKeySyncLastMessage); err == nil {
		status.Message = setting.Value
	}
	if setting, err := s.db.GetSetting(entities.SettingKeySyncLastUpdated); err == nil {
		status.Updated = parseBool(setting.Value)
	}
	return status
}

// SetSyncStatus records the outcome of a periodic sync.
func (s *SettingsStore) SetSyncStatus(status, message string, updated bool) error {
	now := time.Now().UTC().Format(time.RFC3339)

	if err := s.db.SetSetting(entities.SettingKeySyncLastAt, now); err != nil {
		return err
	}
	if err := s.db.SetSetting(entities.SettingKeySyncLastStatus, status); err != nil {
		return err
	}
	if err := s.db.SetSetting(entities.SettingKeySyncLastMessage, message); err != nil {
		return err
	}
	return s.db.SetSetting(entities.SettingKeySyncLastUpdated, strconv.FormatBool(updated))
}

// ClearSyncCronSettings drops the database overrides, reverting to env/default.
func (s *SettingsStore) ClearSyncCronSettings() error {
	return s.clear(entities.SettingKeySyncCronEnabled, entities.SettingKeySyncCronSchedule)
}
