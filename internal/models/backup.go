package models

// BackupInfo describes a stored snapshot of all profiles.
type BackupInfo struct {
	ID        string `json:"id"`
	CreatedAt int64  `json:"created_at"` // epoch millis
}

// ProfileSnapshot is one profile, its habits and its cached statistics.
type ProfileSnapshot struct {
	Profile Profile     `json:"profile"`
	Status  *UserStatus `json:"status,omitempty"`
}

// BackupPayload is the full account state captured by a backup.
type BackupPayload struct {
	Version  int               `json:"version"`
	Profiles []ProfileSnapshot `json:"profiles"`
}

// BackupPayloadVersion is written into every new payload.
const BackupPayloadVersion = 1
