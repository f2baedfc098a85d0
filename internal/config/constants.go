package config

const (
	DefaultDatabasePath = "./campussync.db"

	// DefaultDownloadDir is where package files are stored, one directory per site.
	DefaultDownloadDir = "./downloads"

	DefaultAuditDir = "./audit"
)
