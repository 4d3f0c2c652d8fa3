package models

import (
	"strings"
	"time"
)

// ConfigSnapshot is an immutable view of the routing configuration loaded at
// a point in time. A lead is routed against exactly one snapshot so that
// concurrent admin edits cannot produce a half-old, half-new decision.
type ConfigSnapshot struct {
	LoadedAt time.Time

	Vendors      map[string]*Vendor
	Sources      map[string]*Source
	Customers    map[string]*Customer
	Destinations map[string]*Destination
	Campaigns    []*Campaign

	SystemFields []SystemField

	campaignsByID  map[string]*Campaign
	sourceByAPIKey map[string]*Source
}

// Index builds the lookup maps. Call once after the snapshot is populated.
func (s *ConfigSnapshot) Index() {
	s.campaignsByID = make(map[string]*Campaign, len(s.Campaigns))
	for _, campaign := range s.Campaigns {
		s.campaignsByID[campaign.ID] = campaign
	}
	s.sourceByAPIKey = make(map[string]*Source, len(s.Sources))
	for _, source := range s.Sources {
		if source.APIKey != "" {
			s.sourceByAPIKey[source.APIKey] = source
		}
	}
}

// SourceByAPIKey resolves an ingest API key to its source
func (s *ConfigSnapshot) SourceByAPIKey(apiKey string) (*Source, bool) {
	source, ok := s.sourceByAPIKey[apiKey]
	return source, ok
}

// CampaignByID resolves a campaign, for send_failed_to fallback hops
func (s *ConfigSnapshot) CampaignByID(id string) (*Campaign, bool) {
	campaign, ok := s.campaignsByID[id]
	return campaign, ok
}

// EnabledCampaigns returns campaigns whose own status, owning customer and
// destination approval all permit delivery
func (s *ConfigSnapshot) EnabledCampaigns() []*Campaign {
	var out []*Campaign
	for _, campaign := range s.Campaigns {
		if campaign.Config.Status != StatusEnabled {
			continue
		}
		customer, ok := s.Customers[campaign.CustomerID]
		if !ok || customer.Status != StatusEnabled {
			continue
		}
		destination, ok := s.Destinations[campaign.DestinationID]
		if !ok || !destination.Deliverable() {
			continue
		}
		out = append(out, campaign)
	}
	return out
}

// KnownFieldSet returns the canonical field keys for rule validation
func (s *ConfigSnapshot) KnownFieldSet() map[string]bool {
	set := make(map[string]bool, len(s.SystemFields))
	for _, field := range s.SystemFields {
		set[field.FieldKey] = true
	}
	return set
}

// ResolveFieldKey maps a raw inbound field name to its canonical key via the
// system field registry, consulting aliases case-insensitively. The second
// return is false for unregistered names.
func (s *ConfigSnapshot) ResolveFieldKey(name string) (string, bool) {
	needle := strings.ToLower(strings.TrimSpace(name))
	for _, field := range s.SystemFields {
		if strings.ToLower(field.FieldKey) == needle {
			return field.FieldKey, true
		}
		for _, alias := range field.Aliases {
			if strings.ToLower(alias) == needle {
				return field.FieldKey, true
			}
		}
	}
	return "", false
}
