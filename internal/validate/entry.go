package validate

import (
	"strings"

	"github.com/dukerupert/ritual/internal/model"
)

const (
	maxDurationMinutes = 24 * 60
	maxNotesLength     = 500
	maxPartnerLength   = 50
)

// Entry validates a single journal entry as submitted for creation.
// The id and timestamps are optional; the caller assigns them.
func (v *Validator) Entry(in any) Result[model.Entry] {
	m, ok := object(in)
	if !ok {
		return invalidRoot[model.Entry]("Entry must be an object")
	}
	f := newFields()
	e := v.entry(f, "", m, false)
	return finish(f, e)
}

// entry applies the entry rules to m. When stored is true the id and both
// timestamps are mandatory, as they are for entries inside an import bundle.
func (v *Validator) entry(f *fields, prefix string, m map[string]any, stored bool) model.Entry {
	var e model.Entry
	p := func(key string) string { return join(prefix, key) }

	if id, ok := optionalString(f, m, "id", p("id")); ok {
		e.ID = strings.TrimSpace(id)
	}
	if stored && e.ID == "" {
		f.add(p("id"), "ID is required")
	}

	e.Date = requiredTime(f, m, "date", p("date"), "Date")
	if !e.Date.IsZero() && e.Date.After(v.now()) {
		f.add(p("date"), "Date cannot be in the future")
	}

	e.ActivityType = activityType(f, m, p("activityType"))

	if partner, ok := optionalString(f, m, "partner", p("partner")); ok {
		partner = strings.TrimSpace(partner)
		if runeLen(partner) > maxPartnerLength {
			f.add(p("partner"), "Partner name must be 50 characters or less")
		}
		e.Partner = partner
	}

	if raw, ok := lookup(m, "duration"); ok {
		n, isNum := number(raw)
		switch {
		case !isNum:
			f.add(p("duration"), "Duration must be a number")
		case n <= 0:
			f.add(p("duration"), "Duration must be positive")
		case !isInteger(n):
			f.add(p("duration"), "Duration must be a whole number")
		case n > maxDurationMinutes:
			f.add(p("duration"), "Duration cannot exceed 24 hours")
		default:
			d := int(n)
			e.Duration = &d
		}
	}

	if raw, ok := lookup(m, "satisfaction"); ok {
		n, isNum := number(raw)
		switch {
		case !isNum:
			f.add(p("satisfaction"), "Satisfaction must be a number")
		case !isInteger(n):
			f.add(p("satisfaction"), "Satisfaction must be a whole number")
		case n < 1 || n > 5:
			f.add(p("satisfaction"), "Satisfaction must be between 1 and 5")
		default:
			s := int(n)
			e.Satisfaction = &s
		}
	}

	if notes, ok := optionalString(f, m, "notes", p("notes")); ok {
		notes = strings.TrimSpace(notes)
		if runeLen(notes) > maxNotesLength {
			f.add(p("notes"), "Notes must be 500 characters or less")
		}
		e.Notes = notes
	}

	if stored {
		e.CreatedAt = requiredTime(f, m, "createdAt", p("createdAt"), "Created date")
		e.UpdatedAt = requiredTime(f, m, "updatedAt", p("updatedAt"), "Updated date")
	} else {
		if ts := optionalTime(f, m, "createdAt", p("createdAt"), "Created date"); ts != nil {
			e.CreatedAt = *ts
		}
		if ts := optionalTime(f, m, "updatedAt", p("updatedAt"), "Updated date"); ts != nil {
			e.UpdatedAt = *ts
		}
	}
	if !e.CreatedAt.IsZero() && !e.UpdatedAt.IsZero() && e.CreatedAt.After(e.UpdatedAt) {
		f.add(p("dates"), "Created date cannot be after updated date")
	}

	return e
}

func activityType(f *fields, m map[string]any, path string) model.ActivityType {
	var at model.ActivityType
	raw, ok := lookup(m, "activityType")
	if !ok {
		f.add(path, "Activity type is required")
		return at
	}
	obj, isObj := raw.(map[string]any)
	if !isObj {
		f.add(path, "Activity type must be an object")
		return at
	}

	if id, ok := optionalString(f, obj, "id", join(path, "id")); ok {
		at.ID = strings.TrimSpace(id)
	}
	if at.ID == "" {
		f.add(join(path, "id"), "Activity type ID is required")
	}
	if name, ok := optionalString(f, obj, "name", join(path, "name")); ok {
		at.Name = name
	}
	if icon, ok := optionalString(f, obj, "icon", join(path, "icon")); ok {
		at.Icon = icon
	}
	if category, ok := optionalString(f, obj, "category", join(path, "category")); ok && category != "" {
		c := model.ActivityCategory(category)
		switch c {
		case model.CategorySolo, model.CategoryPartner, model.CategoryOther:
			at.Category = c
		default:
			f.add(join(path, "category"), "Invalid activity category")
		}
	}
	return at
}
