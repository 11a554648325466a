package model

const (
	LanguageEnglish = "en"
	LanguageSpanish = "es"

	ThemeLight = "light"
	ThemeDark  = "dark"
	ThemeAuto  = "auto"

	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
	FrequencyNever   = "never"
)

type Settings struct {
	Language      string               `json:"language"`
	Theme         string               `json:"theme"`
	Notifications NotificationSettings `json:"notifications"`
	Privacy       PrivacySettings      `json:"privacy"`
	Backup        BackupSettings       `json:"backup"`
}

type NotificationSettings struct {
	Enabled      bool   `json:"enabled"`
	ReminderTime string `json:"reminderTime,omitempty"`
	Frequency    string `json:"frequency"`
}

// PrivacySettings.AutoLockTimeout is in seconds.
type PrivacySettings struct {
	RequireAuth     bool `json:"requireAuth"`
	AutoLock        bool `json:"autoLock"`
	AutoLockTimeout int  `json:"autoLockTimeout"`
	HideInRecents   bool `json:"hideInRecents"`
}

type BackupSettings struct {
	AutoBackup      bool   `json:"autoBackup"`
	BackupFrequency string `json:"backupFrequency"`
}

func DefaultSettings() Settings {
	return Settings{
		Language: LanguageEnglish,
		Theme:    ThemeLight,
		Notifications: NotificationSettings{
			Enabled:   true,
			Frequency: FrequencyDaily,
		},
		Privacy: PrivacySettings{
			AutoLockTimeout: 300,
		},
		Backup: BackupSettings{
			BackupFrequency: FrequencyWeekly,
		},
	}
}
