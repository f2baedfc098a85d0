package database

import (
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/campussync/internal/entities"
)

type Database struct {
	DB *gorm.DB
}

// Entities lists every table owned by the engine, in migration order.
func Entities() []any {
	return []any{
		&entities.Setting{},
		&entities.QueuedMutation{},
		&entities.OfflineRecord{},
		&entities.PackageEntry{},
		&entities.SyncTimestamp{},
		&entities.AuditEvent{},
	}
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dsn(dbPath)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(Entities()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("database: initialized", "path", dbPath)

	return &Database{DB: db}, nil
}

// dsn enables WAL and a busy timeout so concurrent reconciliations do not fail
// with SQLITE_BUSY.
func dsn(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_journal_mode=WAL&_busy_timeout=5000"
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Sites returns every site that still has queued mutations or offline records.
func (d *Database) Sites() ([]string, error) {
	var sites []string
	err := d.DB.Raw(
		"SELECT site_id FROM queued_mutations UNION SELECT site_id FROM offline_records ORDER BY site_id",
	).Scan(&sites).Error
	return sites, err
}

func (d *Database) GetSetting(key string) (*entities.Setting, error) {
	var setting entities.Setting
	err := d.DB.Where("key = ?", key).First(&setting).Error
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (d *Database) SetSetting(key, value string) error {
	var setting entities.Setting
	result := d.DB.Where("key = ?", key).First(&setting)

	if result.Error == gorm.ErrRecordNotFound {
		setting = entities.Setting{
			Key:   key,
			Value: value,
		}
		return d.DB.Create(&setting).Error
	} else if result.Error != nil {
		return result.Error
	}

	setting.Value = value
	return d.DB.Save(&setting).Error
}

func (d *Database) DeleteSetting(key string) error {
	return d.DB.Where("key = ?", key).Delete(&entities.Setting{}).Error
}
