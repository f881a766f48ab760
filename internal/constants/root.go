package constants

const (
	AppName            = "habitmaster"
	DefaultKeyringUser = "database-connection"
	DefaultConfigPath  = "~/.config/habitmaster/habitmaster.db"
	DefaultConfigFile  = "~/.config/habitmaster/config.yaml"
	Version            = "v0.3.0"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// Ledger constants
	LedgerCapacity = 7

	// Profile constants
	MaxProfiles = 4

	// Habit defaults applied by the parse-or-default policy
	DefaultTargetCount = 0
	DefaultPeriodValue = 1

	// StatusDocID is the identifier of the cached statistics row for a profile
	StatusDocID = "main"

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "habitmaster-"
	BackupFileSuffix = ".db"

	// Blob store constants
	BlobDirName     = "blobs"
	AvatarObjectKey = "avatar.jpg"

	// ChangeChannel is the PostgreSQL NOTIFY channel used for live subscriptions
	ChangeChannel = "habitmaster_changes"

	// Environment variables
	EnvDB       = "HABITMASTER_DB"
	EnvTimezone = "HABITMASTER_TIMEZONE"
	EnvDebug    = "HABITMASTER_DEBUG"
	EnvBlobDir  = "HABITMASTER_BLOB_DIR"
	EnvConfig   = "HABITMASTER_CONFIG"
	EnvProfile  = "HABITMASTER_PROFILE"
	EnvPassword = "HABITMASTER_PASSWORD"
	EnvMetrics  = "HABITMASTER_METRICS_ADDR"

	// CompletionRefusedMessage is shown when the daily gate refuses a completion
	CompletionRefusedMessage = "can only mark complete again after local midnight"
)
