// Package database provides the durable store of the sync engine.
//
// # Architecture
//
// The database layer is organized into domain-specific sub-packages:
//
//	database/
//	├── database.go      # Connection setup, migrations, settings
//	├── mutations/       # Queued remote calls that still have to be replayed
//	├── offline/         # Content authored offline, one record per entity and user
//	├── packages/        # Download state of content packages
//	├── synctime/        # Last successful sync per sync key
//	└── audit/           # Sync audit trail
//
// Every row carries a site_id: one database holds the state of all sites the
// device is logged into, and every query is scoped to one of them.
//
// # Using Sub-packages
//
// Each sub-package provides a Repository type with domain-specific operations:
//
//	db, err := database.NewDatabase("./campussync.db")
//
//	mutationsRepo := mutations.NewRepository(db.DB)
//	offlineRepo := offline.NewRepository(db.DB)
//
//	pending, err := mutationsRepo.List("site", mutations.Filter{Component: "mod_lesson"})
//
// # Interface Implementations
//
//   - synctime.Repository: implements syncer.TimestampStore
//   - mutations.Repository: implements mutationlog.Store
//   - offline.Repository: implements offline.RecordStore
//   - packages.Repository: implements packages.EntryStore
//
// # Adding a New Domain
//
//  1. Create a new sub-package: internal/database/<domain>/
//  2. Define a Repository struct with a *gorm.DB field
//  3. Add NewRepository(db *gorm.DB) constructor
//  4. Register the entity in Entities() so it is migrated
//  5. Add compile-time interface check in internal/interfaces/checks.go
package database
