package validate

import (
	"encoding/json"
	"strings"

	"github.com/dukerupert/ritual/internal/model"
)

// ImportBundle validates a complete exported record before it replaces the
// stored one. Beyond the per-field rules it checks entry ids for duplicates,
// entry timestamps for ordering, and the record version for compatibility.
// Any error rejects the whole bundle.
func (v *Validator) ImportBundle(in any) Result[model.StoredRecord] {
	m, ok := object(in)
	if !ok {
		return invalidRoot[model.StoredRecord]("Import data must be an object")
	}
	f := newFields()
	var rec model.StoredRecord

	if raw, ok := lookup(m, "entries"); !ok {
		f.add("entries", "Entries are required")
	} else if list, isList := raw.([]any); !isList {
		f.add("entries", "Entries must be a list")
	} else {
		rec.Entries = make([]model.Entry, 0, len(list))
		for i, item := range list {
			path := index("entries", i)
			obj, isObj := item.(map[string]any)
			if !isObj {
				f.add(path, "Entry must be an object")
				rec.Entries = append(rec.Entries, model.Entry{})
				continue
			}
			rec.Entries = append(rec.Entries, v.entry(f, path, obj, true))
		}
		if dups := duplicateIDs(rec.Entries); len(dups) > 0 {
			f.add("duplicateEntries", "Duplicate entry IDs found: "+strings.Join(dups, ", "))
		}
	}

	if raw, ok := lookup(m, "settings"); !ok {
		f.add("settings", "Settings are required")
	} else if obj, isObj := raw.(map[string]any); !isObj {
		f.add("settings", "Settings must be an object")
	} else {
		rec.Settings = settings(f, "settings", obj)
	}

	if raw, ok := lookup(m, "user"); !ok {
		f.add("user", "User data is required")
	} else if obj, isObj := raw.(map[string]any); !isObj {
		f.add("user", "User data must be an object")
	} else {
		rec.User = v.user(f, "user", obj)
	}

	if raw, ok := lookup(m, "metadata"); !ok {
		f.add("metadata", "Metadata is required")
	} else if obj, isObj := raw.(map[string]any); !isObj {
		f.add("metadata", "Metadata must be an object")
	} else {
		rec.Metadata = metadata(f, obj)
		if rec.Metadata.Version != "" && !model.IsVersionCompatible(rec.Metadata.Version) {
			f.add("version", "Data version is not compatible with current app version")
		}
	}

	if raw, ok := lookup(m, "backupMetadata"); ok {
		rec.BackupMetadata = backupMetadata(f, raw)
	}

	return finish(f, rec)
}

func (v *Validator) user(f *fields, prefix string, m map[string]any) model.User {
	var u model.User
	if ts := optionalTime(f, m, "createdAt", join(prefix, "createdAt"), "Created date"); ts != nil {
		u.CreatedAt = *ts
	} else {
		u.CreatedAt = v.now().UTC()
	}
	u.UpdatedAt = optionalTime(f, m, "updatedAt", join(prefix, "updatedAt"), "Updated date")

	if raw, ok := lookup(m, "profile"); ok {
		obj, isObj := raw.(map[string]any)
		if !isObj {
			f.add(join(prefix, "profile"), "Profile must be an object")
		} else {
			p := profile(f, join(prefix, "profile"), obj)
			u.Profile = &p
		}
	}
	return u
}

func metadata(f *fields, m map[string]any) model.RecordMetadata {
	var md model.RecordMetadata
	if version, ok := optionalString(f, m, "version", "metadata.version"); ok {
		md.Version = strings.TrimSpace(version)
	}
	if md.Version == "" {
		f.add("metadata.version", "Version is required")
	}
	if hash, ok := optionalString(f, m, "dataHash", "metadata.dataHash"); ok {
		md.DataHash = strings.TrimSpace(hash)
	}
	if md.DataHash == "" {
		f.add("metadata.dataHash", "Data hash is required")
	}
	md.LastBackup = optionalTime(f, m, "lastBackup", "metadata.lastBackup", "Last backup date")
	return md
}

// backupMetadata decodes the optional backup descriptor carried by files
// produced by the backup manager.
func backupMetadata(f *fields, raw any) *model.BackupMetadata {
	b, err := json.Marshal(raw)
	if err != nil {
		f.add("backupMetadata", "Backup metadata is malformed")
		return nil
	}
	var md model.BackupMetadata
	if err := json.Unmarshal(b, &md); err != nil {
		f.add("backupMetadata", "Backup metadata is malformed")
		return nil
	}
	return &md
}

// duplicateIDs returns each id that occurs more than once, in order of its
// first repetition.
func duplicateIDs(entries []model.Entry) []string {
	seen := make(map[string]int, len(entries))
	var dups []string
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		seen[e.ID]++
		if seen[e.ID] == 2 {
			dups = append(dups, e.ID)
		}
	}
	return dups
}
