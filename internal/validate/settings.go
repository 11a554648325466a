package validate

import (
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"github.com/dukerupert/ritual/internal/model"
)

const (
	minAutoLockTimeout = 30
	maxAutoLockTimeout = 3600
)

var (
	supportedLanguages = []language.Tag{language.English, language.Spanish}
	reminderTimeRe     = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

// Settings validates a settings object. Missing groups and fields take their
// default values. A legacy boolean "notifications" is read as the enabled
// flag of the notification group.
func (v *Validator) Settings(in any) Result[model.Settings] {
	m, ok := object(in)
	if !ok {
		return invalidRoot[model.Settings]("Settings must be an object")
	}
	f := newFields()
	s := settings(f, "", m)
	return finish(f, s)
}

func settings(f *fields, prefix string, m map[string]any) model.Settings {
	s := model.DefaultSettings()
	p := func(key string) string { return join(prefix, key) }

	if lang, ok := optionalString(f, m, "language", p("language")); ok {
		if base, ok := matchLanguage(lang); ok {
			s.Language = base
		} else {
			f.add(p("language"), "Invalid language")
		}
	}

	if theme, ok := optionalString(f, m, "theme", p("theme")); ok {
		if oneOf(theme, model.ThemeLight, model.ThemeDark, model.ThemeAuto) {
			s.Theme = theme
		} else {
			f.add(p("theme"), "Invalid theme")
		}
	}

	if raw, ok := lookup(m, "notifications"); ok {
		switch n := raw.(type) {
		case bool:
			s.Notifications.Enabled = n
		case map[string]any:
			notifications(f, p("notifications"), n, &s.Notifications)
		default:
			f.add(p("notifications"), "Notifications must be an object")
		}
	}

	if raw, ok := lookup(m, "privacy"); ok {
		if obj, isObj := raw.(map[string]any); isObj {
			privacy(f, p("privacy"), obj, &s.Privacy)
		} else {
			f.add(p("privacy"), "Privacy must be an object")
		}
	}

	if raw, ok := lookup(m, "backup"); ok {
		if obj, isObj := raw.(map[string]any); isObj {
			backup(f, p("backup"), obj, &s.Backup)
		} else {
			f.add(p("backup"), "Backup must be an object")
		}
	}

	return s
}

func notifications(f *fields, prefix string, m map[string]any, n *model.NotificationSettings) {
	optionalBool(f, m, "enabled", join(prefix, "enabled"), &n.Enabled)

	if rt, ok := optionalString(f, m, "reminderTime", join(prefix, "reminderTime")); ok && rt != "" {
		if reminderTimeRe.MatchString(rt) {
			n.ReminderTime = rt
		} else {
			f.add(join(prefix, "reminderTime"), "Invalid time format (HH:MM)")
		}
	}

	if freq, ok := optionalString(f, m, "frequency", join(prefix, "frequency")); ok {
		if oneOf(freq, model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyNever) {
			n.Frequency = freq
		} else {
			f.add(join(prefix, "frequency"), "Invalid notification frequency")
		}
	}
}

func privacy(f *fields, prefix string, m map[string]any, p *model.PrivacySettings) {
	optionalBool(f, m, "requireAuth", join(prefix, "requireAuth"), &p.RequireAuth)
	optionalBool(f, m, "autoLock", join(prefix, "autoLock"), &p.AutoLock)
	optionalBool(f, m, "hideInRecents", join(prefix, "hideInRecents"), &p.HideInRecents)

	path := join(prefix, "autoLockTimeout")
	if raw, ok := lookup(m, "autoLockTimeout"); ok {
		n, isNum := number(raw)
		switch {
		case !isNum:
			f.add(path, "Auto-lock timeout must be a number")
		case !isInteger(n):
			f.add(path, "Auto-lock timeout must be a whole number")
		case n < minAutoLockTimeout:
			f.add(path, "Auto-lock timeout must be at least 30 seconds")
		case n > maxAutoLockTimeout:
			f.add(path, "Auto-lock timeout cannot exceed 1 hour")
		default:
			p.AutoLockTimeout = int(n)
		}
	}
}

func backup(f *fields, prefix string, m map[string]any, b *model.BackupSettings) {
	optionalBool(f, m, "autoBackup", join(prefix, "autoBackup"), &b.AutoBackup)

	if freq, ok := optionalString(f, m, "backupFrequency", join(prefix, "backupFrequency")); ok {
		if oneOf(freq, model.FrequencyDaily, model.FrequencyWeekly, model.FrequencyMonthly) {
			b.BackupFrequency = freq
		} else {
			f.add(join(prefix, "backupFrequency"), "Invalid backup frequency")
		}
	}
}

// matchLanguage parses a BCP 47 tag and reduces it to a supported base
// language, so "es-MX" is stored as "es".
func matchLanguage(s string) (string, bool) {
	tag, err := language.Parse(strings.TrimSpace(s))
	if err != nil {
		return "", false
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", false
	}
	for _, t := range supportedLanguages {
		if b, _ := t.Base(); b == base {
			return b.String(), true
		}
	}
	return "", false
}
