package model

import "time"

type ActivityCategory string

const (
	CategorySolo    ActivityCategory = "solo"
	CategoryPartner ActivityCategory = "partner"
	CategoryOther   ActivityCategory = "other"
)

type ActivityType struct {
	ID       string           `json:"id"`
	Name     string           `json:"name,omitempty"`
	Icon     string           `json:"icon"`
	Category ActivityCategory `json:"category"`
}

// Entry is one journaled activity. Duration is in minutes.
type Entry struct {
	ID           string       `json:"id"`
	Date         time.Time    `json:"date"`
	ActivityType ActivityType `json:"activityType"`
	Partner      string       `json:"partner,omitempty"`
	Duration     *int         `json:"duration,omitempty"`
	Satisfaction *int         `json:"satisfaction,omitempty"`
	Notes        string       `json:"notes,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// DefaultActivities are the built-in activity types. Names are i18n keys.
var DefaultActivities = []ActivityType{
	{ID: "1", Name: "activities.sex", Icon: "❤️", Category: CategoryPartner},
	{ID: "2", Name: "activities.masturbation", Icon: "🤍", Category: CategorySolo},
	{ID: "3", Name: "activities.oral", Icon: "💋", Category: CategoryPartner},
	{ID: "4", Name: "activities.anal", Icon: "🍑", Category: CategoryPartner},
	{ID: "5", Name: "activities.foreplay", Icon: "🔥", Category: CategoryPartner},
	{ID: "6", Name: "activities.other", Icon: "✨", Category: CategoryOther},
}

// FindActivity returns the built-in activity type with the given id.
func FindActivity(id string) (ActivityType, bool) {
	for _, a := range DefaultActivities {
		if a.ID == id {
			return a, true
		}
	}
	return ActivityType{}, false
}

type UserStats struct {
	TotalEntries        int           `json:"totalEntries"`
	ThisMonth           int           `json:"thisMonth"`
	LastActivity        *time.Time    `json:"lastActivity,omitempty"`
	AverageSatisfaction *float64      `json:"averageSatisfaction,omitempty"`
	MostCommonActivity  *ActivityType `json:"mostCommonActivity,omitempty"`
}
