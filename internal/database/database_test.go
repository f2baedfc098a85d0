package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mrlokans/campussync/internal/entities"
)

// setupTestDB creates a fresh test database
func setupTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDatabase_Settings(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetSetting(entities.SettingKeySyncCronSchedule)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, db.SetSetting(entities.SettingKeySyncCronSchedule, "*/30 * * * *"))
	setting, err := db.GetSetting(entities.SettingKeySyncCronSchedule)
	require.NoError(t, err)
	assert.Equal(t, "*/30 * * * *", setting.Value)

	// Update in place
	require.NoError(t, db.SetSetting(entities.SettingKeySyncCronSchedule, "0 * * * *"))
	setting, err = db.GetSetting(entities.SettingKeySyncCronSchedule)
	require.NoError(t, err)
	assert.Equal(t, "0 * * * *", setting.Value)

	require.NoError(t, db.DeleteSetting(entities.SettingKeySyncCronSchedule))
	_, err = db.GetSetting(entities.SettingKeySyncCronSchedule)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDatabase_Sites(t *testing.T) {
	db := setupTestDB(t)

	sites, err := db.Sites()
	require.NoError(t, err)
	assert.Empty(t, sites)

	require.NoError(t, db.DB.Create(&entities.OfflineRecord{SiteID: "site-b", Component: "c", EntityID: "1", UserID: "7"}).Error)
	require.NoError(t, db.DB.Create(&entities.QueuedMutation{SiteID: "site-a", Component: "c", EntityID: "1", CallName: "x", ArgsHash: "h"}).Error)
	require.NoError(t, db.DB.Create(&entities.QueuedMutation{SiteID: "site-b", Component: "c", EntityID: "2", CallName: "x", ArgsHash: "h"}).Error)

	sites, err = db.Sites()
	require.NoError(t, err)
	assert.Equal(t, []string{"site-a", "site-b"}, sites)
}
