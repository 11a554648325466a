package validate

import (
	"strings"

	"github.com/dukerupert/ritual/internal/model"
)

const (
	minNameLength = 2
	maxNameLength = 50
	minAge        = 12
	maxAge        = 90
)

// Profile validates a user profile.
func (v *Validator) Profile(in any) Result[model.UserProfile] {
	m, ok := object(in)
	if !ok {
		return invalidRoot[model.UserProfile]("Profile must be an object")
	}
	f := newFields()
	p := profile(f, "", m)
	return finish(f, p)
}

func profile(f *fields, prefix string, m map[string]any) model.UserProfile {
	var up model.UserProfile
	p := func(key string) string { return join(prefix, key) }

	name, _ := optionalString(f, m, "name", p("name"))
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		f.add(p("name"), "Name is required")
	case runeLen(name) < minNameLength:
		f.add(p("name"), "Name must be at least 2 characters")
	case runeLen(name) > maxNameLength:
		f.add(p("name"), "Name cannot exceed 50 characters")
	}
	up.Name = name

	if raw, ok := lookup(m, "age"); !ok {
		f.add(p("age"), "Age is required")
	} else {
		n, isNum := number(raw)
		switch {
		case !isNum:
			f.add(p("age"), "Age must be a number")
		case !isInteger(n):
			f.add(p("age"), "Age must be a whole number")
		case n < minAge:
			f.add(p("age"), "Minimum age is 12")
		case n > maxAge:
			f.add(p("age"), "Maximum age is 90")
		default:
			up.Age = int(n)
		}
	}

	if raw, ok := lookup(m, "partners"); ok {
		list, isList := raw.([]any)
		if !isList {
			f.add(p("partners"), "Partners must be a list")
		} else {
			up.Partners = make([]model.Partner, 0, len(list))
			for i, item := range list {
				up.Partners = append(up.Partners, partner(f, index(p("partners"), i), item))
			}
		}
	}

	if raw, ok := lookup(m, "actualPartner"); ok {
		n, isNum := number(raw)
		switch {
		case !isNum || !isInteger(n):
			f.add(p("actualPartner"), "Selected partner must be a whole number")
		case n < 0:
			f.add(p("actualPartner"), "Selected partner cannot be negative")
		case len(up.Partners) > 0 && int(n) >= len(up.Partners):
			f.add(p("actualPartner"), "Selected partner does not exist")
		default:
			idx := int(n)
			up.ActualPartner = &idx
		}
	}

	optionalBool(f, m, "biometricEnabled", p("biometricEnabled"), &up.BiometricEnabled)

	return up
}

func partner(f *fields, path string, raw any) model.Partner {
	var pt model.Partner
	m, ok := raw.(map[string]any)
	if !ok {
		f.add(path, "Partner must be an object")
		return pt
	}
	if id, ok := optionalString(f, m, "id", join(path, "id")); ok {
		pt.ID = strings.TrimSpace(id)
	}
	if pt.ID == "" {
		f.add(join(path, "id"), "Partner ID is required")
	}
	if name, ok := optionalString(f, m, "name", join(path, "name")); ok {
		pt.Name = strings.TrimSpace(name)
	}
	switch {
	case pt.Name == "":
		f.add(join(path, "name"), "Partner name is required")
	case runeLen(pt.Name) > maxPartnerLength:
		f.add(join(path, "name"), "Partner name must be 50 characters or less")
	}
	return pt
}
