package model

import "time"

// Settings is persisted as a single JSON blob.
type Settings struct {
	Theme              string `json:"theme"`
	DefaultListID      string `json:"default_list_id,omitempty"`
	AutoCategorize     bool   `json:"auto_categorize"`
	MoveCheckedToEnd   bool   `json:"move_checked_to_end"`
	ShowPrices         bool   `json:"show_prices"`
	Currency           string `json:"currency"`
	AutoSync           bool   `json:"auto_sync"`
	ExpiryReminders    bool   `json:"expiry_reminders"`
	WeekStartsOnMonday bool   `json:"week_starts_on_monday"`
	DefaultServings    int    `json:"default_servings"`
}

// DefaultSettings is returned until the user saves settings for the first time.
func DefaultSettings() Settings {
	return Settings{
		Theme:            "system",
		AutoCategorize:   true,
		MoveCheckedToEnd: true,
		Currency:         "USD",
		ExpiryReminders:  true,
		DefaultServings:  2,
	}
}

type SettingsPatch struct {
	Theme              *string `json:"theme" validate:"omitempty,oneof=system light dark"`
	DefaultListID      *string `json:"default_list_id"`
	AutoCategorize     *bool   `json:"auto_categorize"`
	MoveCheckedToEnd   *bool   `json:"move_checked_to_end"`
	ShowPrices         *bool   `json:"show_prices"`
	Currency           *string `json:"currency" validate:"omitempty,len=3"`
	AutoSync           *bool   `json:"auto_sync"`
	ExpiryReminders    *bool   `json:"expiry_reminders"`
	WeekStartsOnMonday *bool   `json:"week_starts_on_monday"`
	DefaultServings    *int    `json:"default_servings" validate:"omitempty,min=1"`
}

func (p SettingsPatch) Apply(s *Settings) {
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.DefaultListID != nil {
		s.DefaultListID = *p.DefaultListID
	}
	if p.AutoCategorize != nil {
		s.AutoCategorize = *p.AutoCategorize
	}
	if p.MoveCheckedToEnd != nil {
		s.MoveCheckedToEnd = *p.MoveCheckedToEnd
	}
	if p.ShowPrices != nil {
		s.ShowPrices = *p.ShowPrices
	}
	if p.Currency != nil {
		s.Currency = *p.Currency
	}
	if p.AutoSync != nil {
		s.AutoSync = *p.AutoSync
	}
	if p.ExpiryReminders != nil {
		s.ExpiryReminders = *p.ExpiryReminders
	}
	if p.WeekStartsOnMonday != nil {
		s.WeekStartsOnMonday = *p.WeekStartsOnMonday
	}
	if p.DefaultServings != nil {
		s.DefaultServings = *p.DefaultServings
	}
}

type Favorite struct {
	Name     string    `json:"name"`
	Quantity float64   `json:"quantity"`
	Unit     string    `json:"unit"`
	Category string    `json:"category"`
	AddedAt  time.Time `json:"added_at"`
}

// Recent is a purchased (checked-off) item remembered for quick re-adding.
type Recent struct {
	Name      string    `json:"name"`
	Quantity  float64   `json:"quantity"`
	Unit      string    `json:"unit"`
	Category  string    `json:"category"`
	ListID    string    `json:"list_id"`
	CheckedAt time.Time `json:"checked_at"`
}

type PushSubscription struct {
	Endpoint   string    `json:"endpoint" validate:"required,url"`
	P256dhKey  string    `json:"p256dh_key" validate:"required"`
	AuthKey    string    `json:"auth_key" validate:"required"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}
