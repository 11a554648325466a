package model

import "time"

type BackupMetadata struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	Version      string    `json:"version"`
	Platform     string    `json:"platform"`
	EntriesCount int       `json:"entriesCount"`
	FileSize     int64     `json:"fileSize"`
	Encrypted    bool      `json:"encrypted"`
	FilePath     string    `json:"filePath,omitempty"`
}

type BackupResult struct {
	Success      bool            `json:"success"`
	FilePath     string          `json:"filePath,omitempty"`
	Metadata     *BackupMetadata `json:"metadata,omitempty"`
	EntriesCount int             `json:"entriesCount,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// BackupConfig drives scheduled backups and retention. CloudSync and
// CompressionEnabled are stored but not acted on.
type BackupConfig struct {
	AutoBackup         bool   `json:"autoBackup"`
	Frequency          string `json:"frequency"`
	MaxBackups         int    `json:"maxBackups"`
	CloudSync          bool   `json:"cloudSync"`
	CompressionEnabled bool   `json:"compressionEnabled"`
}

func DefaultBackupConfig() BackupConfig {
	return BackupConfig{
		AutoBackup: false,
		Frequency:  FrequencyWeekly,
		MaxBackups: 5,
	}
}
