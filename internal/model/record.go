package model

import "time"

// RecordMetadata.DataHash is the SHA-256 of the JSON encoding of
// {entries, settings, user} as of the last successful save.
type RecordMetadata struct {
	Version    string     `json:"version"`
	DataHash   string     `json:"dataHash"`
	LastBackup *time.Time `json:"lastBackup,omitempty"`
}

// StoredRecord is the single persisted unit. BackupMetadata is only set on
// records read from backup files and is never persisted in the live record.
type StoredRecord struct {
	Entries        []Entry         `json:"entries"`
	Settings       Settings        `json:"settings"`
	User           User            `json:"user"`
	Metadata       RecordMetadata  `json:"metadata"`
	BackupMetadata *BackupMetadata `json:"backupMetadata,omitempty"`
}

// HashedContent is the part of a record covered by Metadata.DataHash.
type HashedContent struct {
	Entries  []Entry  `json:"entries"`
	Settings Settings `json:"settings"`
	User     User     `json:"user"`
}

func (r *StoredRecord) Content() HashedContent {
	entries := r.Entries
	if entries == nil {
		entries = []Entry{}
	}
	return HashedContent{Entries: entries, Settings: r.Settings, User: r.User}
}

// CurrentVersion is stamped on every record this build saves.
const CurrentVersion = "1.1.0"

// CompatibleVersions lists the record versions that can be imported.
var CompatibleVersions = []string{"1.0.0", "1.0.1", "1.1.0"}

func IsVersionCompatible(version string) bool {
	for _, v := range CompatibleVersions {
		if v == version {
			return true
		}
	}
	return false
}
