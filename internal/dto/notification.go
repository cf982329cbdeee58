package dto

// MutePreferenceRequest toggles a notification kind for the caller.
type MutePreferenceRequest struct {
	Muted bool `json:"muted"`
}

// DomainWatchRequest subscribes or unsubscribes a reviewer from a domain.
type DomainWatchRequest struct {
	Watching bool `json:"watching"`
}

// NotificationQuery mirrors inbox filters.
type NotificationQuery struct {
	UnreadOnly bool
	Limit      int
	Offset     int
}
