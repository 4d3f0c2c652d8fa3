package models

import "time"

// AllowDuplicates controls whether a campaign accepts a lead already
// delivered for the same customer
type AllowDuplicates string

const (
	// AllowDuplicatesAlways imposes no gate
	AllowDuplicatesAlways AllowDuplicates = "always"

	// AllowDuplicatesNever rejects leads ever delivered for the customer
	AllowDuplicatesNever AllowDuplicates = "never"

	// AllowDuplicatesDaily rejects leads delivered for the customer today
	AllowDuplicatesDaily AllowDuplicates = "daily"
)

// CampaignConfig holds a campaign's routing controls
type CampaignConfig struct {
	Status   DocumentStatus `json:"status"`
	Priority int            `json:"priority"` // lower = higher precedence
	Weight   int            `json:"weight"`   // 0-100, tie-break share

	// Daily capping, one optional cap per weekday
	MondayCap    *int `json:"monday_cap,omitempty"`
	TuesdayCap   *int `json:"tuesday_cap,omitempty"`
	WednesdayCap *int `json:"wednesday_cap,omitempty"`
	ThursdayCap  *int `json:"thursday_cap,omitempty"`
	FridayCap    *int `json:"friday_cap,omitempty"`
	SaturdayCap  *int `json:"saturday_cap,omitempty"`
	SundayCap    *int `json:"sunday_cap,omitempty"`

	// Scheduling
	AllDay    bool   `json:"all_day"`
	StartTime string `json:"start_time,omitempty"` // HH:MM
	EndTime   string `json:"end_time,omitempty"`   // HH:MM

	// Global limits
	HourlyCap   *int `json:"hourly_cap,omitempty"`
	CampaignMax *int `json:"campaign_max,omitempty"` // lifetime cap

	AllowDuplicates AllowDuplicates `json:"allow_duplicates"`
	SendFailedTo    string          `json:"send_failed_to,omitempty"` // campaign ID
}

// CapForWeekday returns the configured cap for the given weekday, or nil
// when that day is uncapped
func (c CampaignConfig) CapForWeekday(day time.Weekday) *int {
	switch day {
	case time.Monday:
		return c.MondayCap
	case time.Tuesday:
		return c.TuesdayCap
	case time.Wednesday:
		return c.WednesdayCap
	case time.Thursday:
		return c.ThursdayCap
	case time.Friday:
		return c.FridayCap
	case time.Saturday:
		return c.SaturdayCap
	case time.Sunday:
		return c.SundayCap
	}
	return nil
}

// WithinSchedule reports whether the campaign accepts leads at the given
// time. HH:MM strings compare lexicographically, matching the stored format.
func (c CampaignConfig) WithinSchedule(now time.Time) bool {
	if c.AllDay {
		return true
	}

	current := now.UTC().Format("15:04")
	if c.StartTime != "" && current < c.StartTime {
		return false
	}
	if c.EndTime != "" && current > c.EndTime {
		return false
	}
	return true
}

// Campaign is a routing rule set belonging to a customer that selects and
// delivers leads to one destination
type Campaign struct {
	ID            string         `json:"id"`
	CustomerID    string         `json:"customer_id"`
	Name          string         `json:"name"`
	DestinationID string         `json:"destination_id"`
	SourceIDs     []string       `json:"source_ids"` // empty = all sources accepted
	Config        CampaignConfig `json:"config"`
	Rules         SourceRules    `json:"rules"`
	Mapping       SourceMapping  `json:"mapping"`
	CreatedAt     time.Time      `json:"created_at"`
}

// AcceptsSource reports whether the campaign's allow-list admits the source
func (c *Campaign) AcceptsSource(sourceID string) bool {
	if len(c.SourceIDs) == 0 {
		return true
	}
	for _, id := range c.SourceIDs {
		if id == sourceID {
			return true
		}
	}
	return false
}
