package routing

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/checkfox/leadroute/internal/caps"
	"github.com/checkfox/leadroute/internal/delivery"
	"github.com/checkfox/leadroute/internal/logger"
	"github.com/checkfox/leadroute/internal/mapping"
	"github.com/checkfox/leadroute/internal/models"
	"github.com/checkfox/leadroute/internal/rules"
)

// DeliveryHistory answers how often a customer has already received a lead
// sharing any of the given fingerprints
type DeliveryHistory interface {
	CountCustomerDeliveries(ctx context.Context, customerID string, fingerprints []string, since time.Time) (int, error)
}

// ResultRecorder persists one routing result per delivery attempt
type ResultRecorder interface {
	AppendRoutingResult(ctx context.Context, result *models.RoutingResult) error
}

// Outcome summarizes what the router did with one lead
type Outcome struct {
	Delivered int
	Failed    int
	Results   []models.RoutingResult
}

// Routed reports whether at least one destination accepted the lead
func (o *Outcome) Routed() bool {
	return o.Delivered > 0
}

// Router selects eligible campaigns for a lead and delivers it. Campaigns
// compete per customer: ascending priority decides between priority tiers and
// a weight-proportional draw breaks ties inside one, so a lead is sent to at
// most one campaign per customer but may fan out across customers.
type Router struct {
	caps       caps.Tracker
	dispatcher delivery.Dispatcher
	history    DeliveryHistory
	recorder   ResultRecorder

	now  func() time.Time
	intn func(n int) int
}

// NewRouter creates a Router wired to production clocks and randomness
func NewRouter(tracker caps.Tracker, dispatcher delivery.Dispatcher, history DeliveryHistory, recorder ResultRecorder) *Router {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Router{
		caps:       tracker,
		dispatcher: dispatcher,
		history:    history,
		recorder:   recorder,
		now:        time.Now,
		intn:       rng.Intn,
	}
}

// Route runs the lead through campaign selection and delivery against one
// configuration snapshot. A dependency error aborts routing; delivery
// failures do not, they fall through to the campaign's failover if one is
// configured.
func (r *Router) Route(ctx context.Context, lead *models.Lead, snapshot *models.ConfigSnapshot) (*Outcome, error) {
	now := r.now().UTC()
	record := rules.RecordFromJSONB(lead.Data)

	candidates := r.eligibleCampaigns(ctx, lead, snapshot, record, now)
	if len(candidates) == 0 {
		logger.Info(ctx, "No eligible campaigns for lead", "lead_id", lead.ID)
		return &Outcome{}, nil
	}

	outcome := &Outcome{}
	for _, group := range groupByCustomer(candidates) {
		if err := r.routeForCustomer(ctx, lead, snapshot, group, now, outcome); err != nil {
			return outcome, err
		}
	}

	return outcome, nil
}

// eligibleCampaigns applies the stateless gates: campaign, customer and
// destination enabled, source allow-list, schedule, and filtering rules.
// Caps and duplicate history are checked later, at selection time.
func (r *Router) eligibleCampaigns(ctx context.Context, lead *models.Lead, snapshot *models.ConfigSnapshot, record rules.Record, now time.Time) []*models.Campaign {
	var out []*models.Campaign
	for _, campaign := range snapshot.EnabledCampaigns() {
		if !campaign.AcceptsSource(lead.SourceID) {
			continue
		}
		if !campaign.Config.WithinSchedule(now) {
			continue
		}
		if !rules.Evaluate(campaign.Rules.Filtering, record) {
			logger.Debug(ctx, "Campaign rules rejected lead",
				"lead_id", lead.ID, "campaign_id", campaign.ID)
			continue
		}
		out = append(out, campaign)
	}
	return out
}

type customerGroup struct {
	customerID string
	campaigns  []*models.Campaign
}

// groupByCustomer partitions candidates per customer, in a stable order
func groupByCustomer(candidates []*models.Campaign) []customerGroup {
	byCustomer := make(map[string][]*models.Campaign)
	var order []string
	for _, campaign := range candidates {
		if _, seen := byCustomer[campaign.CustomerID]; !seen {
			order = append(order, campaign.CustomerID)
		}
		byCustomer[campaign.CustomerID] = append(byCustomer[campaign.CustomerID], campaign)
	}

	sort.Strings(order)
	groups := make([]customerGroup, 0, len(order))
	for _, customerID := range order {
		groups = append(groups, customerGroup{customerID: customerID, campaigns: byCustomer[customerID]})
	}
	return groups
}

// routeForCustomer walks the customer's candidates in priority order,
// drawing weight-proportionally inside each tier, until one campaign both
// clears its duplicate gate and reserves a cap slot. That campaign gets the
// delivery; on failure the campaign's send_failed_to fallback is tried once.
func (r *Router) routeForCustomer(ctx context.Context, lead *models.Lead, snapshot *models.ConfigSnapshot, group customerGroup, now time.Time, outcome *Outcome) error {
	for _, tier := range priorityTiers(group.campaigns) {
		for len(tier) > 0 {
			idx := r.drawWeighted(tier)
			campaign := tier[idx]
			tier = append(tier[:idx], tier[idx+1:]...)

			ok, err := r.passesDuplicateGate(ctx, lead, campaign, now)
			if err != nil {
				return err
			}
			if !ok {
				logger.Debug(ctx, "Customer already received this lead",
					"lead_id", lead.ID, "campaign_id", campaign.ID, "customer_id", campaign.CustomerID)
				continue
			}

			reserved, err := r.caps.TryReserve(ctx, campaign, now)
			if err != nil {
				return err
			}
			if !reserved {
				logger.Info(ctx, "Campaign cap exhausted",
					"lead_id", lead.ID, "campaign_id", campaign.ID)
				continue
			}

			// The slot stays consumed even if delivery fails
			r.deliverWithFallback(ctx, lead, snapshot, campaign, now, outcome)
			return nil
		}
	}
	return nil
}

// priorityTiers sorts campaigns by ascending priority and groups equals
func priorityTiers(campaigns []*models.Campaign) [][]*models.Campaign {
	sorted := make([]*models.Campaign, len(campaigns))
	copy(sorted, campaigns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Config.Priority < sorted[j].Config.Priority
	})

	var tiers [][]*models.Campaign
	for _, campaign := range sorted {
		n := len(tiers)
		if n > 0 && tiers[n-1][0].Config.Priority == campaign.Config.Priority {
			tiers[n-1] = append(tiers[n-1], campaign)
			continue
		}
		tiers = append(tiers, []*models.Campaign{campaign})
	}
	return tiers
}

// drawWeighted picks an index proportionally to campaign weight. Campaigns
// with zero weight only win when the whole tier carries zero weight.
func (r *Router) drawWeighted(tier []*models.Campaign) int {
	total := 0
	for _, campaign := range tier {
		if campaign.Config.Weight > 0 {
			total += campaign.Config.Weight
		}
	}
	if total == 0 {
		return r.intn(len(tier))
	}

	pick := r.intn(total)
	for i, campaign := range tier {
		if campaign.Config.Weight <= 0 {
			continue
		}
		pick -= campaign.Config.Weight
		if pick < 0 {
			return i
		}
	}
	return len(tier) - 1
}

// passesDuplicateGate enforces the campaign's allow_duplicates policy against
// the customer's delivery history
func (r *Router) passesDuplicateGate(ctx context.Context, lead *models.Lead, campaign *models.Campaign, now time.Time) (bool, error) {
	if len(lead.Fingerprints) == 0 {
		return true, nil
	}

	var since time.Time
	switch campaign.Config.AllowDuplicates {
	case models.AllowDuplicatesNever:
		// zero cutoff means all time
	case models.AllowDuplicatesDaily:
		since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return true, nil
	}

	count, err := r.history.CountCustomerDeliveries(ctx, campaign.CustomerID, lead.Fingerprints, since)
	if err != nil {
		return false, err
	}
	return count == 0, nil
}

// deliverWithFallback dispatches to the campaign's destination and, when the
// attempt fails, tries the send_failed_to campaign exactly once
func (r *Router) deliverWithFallback(ctx context.Context, lead *models.Lead, snapshot *models.ConfigSnapshot, campaign *models.Campaign, now time.Time, outcome *Outcome) {
	if r.attemptDelivery(ctx, lead, snapshot, campaign, outcome) {
		return
	}

	fallbackID := campaign.Config.SendFailedTo
	if fallbackID == "" {
		return
	}

	fallback, ok := snapshot.CampaignByID(fallbackID)
	if !ok || fallback.Config.Status != models.StatusEnabled {
		logger.Warn(ctx, "Failover campaign unavailable",
			"lead_id", lead.ID, "campaign_id", campaign.ID, "failover_id", fallbackID)
		return
	}

	reserved, err := r.caps.TryReserve(ctx, fallback, now)
	if err != nil || !reserved {
		logger.Warn(ctx, "Failover campaign refused reservation",
			"lead_id", lead.ID, "failover_id", fallback.ID)
		return
	}

	logger.Info(ctx, "Retrying delivery on failover campaign",
		"lead_id", lead.ID, "campaign_id", campaign.ID, "failover_id", fallback.ID)
	r.attemptDelivery(ctx, lead, snapshot, fallback, outcome)
}

// attemptDelivery denormalizes the lead for the campaign, dispatches it and
// records the routing result. Returns true on a 2xx delivery.
func (r *Router) attemptDelivery(ctx context.Context, lead *models.Lead, snapshot *models.ConfigSnapshot, campaign *models.Campaign, outcome *Outcome) bool {
	destination, ok := snapshot.Destinations[campaign.DestinationID]
	if !ok || !destination.Deliverable() {
		logger.Warn(ctx, "Campaign destination not deliverable",
			"lead_id", lead.ID, "campaign_id", campaign.ID, "destination_id", campaign.DestinationID)
		return false
	}

	// A campaign with no mapping rules forwards the canonical record as is
	payload := lead.Data
	if len(campaign.Mapping.Rules) > 0 {
		payload = mapping.Denormalize(campaign.Mapping.Rules, lead.Data)
	}

	result := models.RoutingResult{
		LeadID:        lead.ID,
		CustomerID:    campaign.CustomerID,
		CampaignID:    campaign.ID,
		CampaignName:  campaign.Name,
		DestinationID: destination.ID,
	}
	result.DestinationName = destination.Name
	if customer, ok := snapshot.Customers[campaign.CustomerID]; ok {
		result.CustomerName = customer.Name
	}

	_, err := r.dispatcher.Dispatch(ctx, destination, payload)
	result.DeliveredAt = r.now().UTC()
	if err != nil {
		msg := err.Error()
		var deliveryErr *models.DeliveryError
		if errors.As(err, &deliveryErr) {
			msg = deliveryErr.Message
		}
		result.Status = models.RoutingFailed
		result.ErrorMessage = &msg
		outcome.Failed++
		logger.Warn(ctx, "Delivery failed",
			"lead_id", lead.ID, "campaign_id", campaign.ID, "destination_id", destination.ID, "error", msg)
	} else {
		result.Status = models.RoutingDelivered
		outcome.Delivered++
		logger.Info(ctx, "Lead delivered",
			"lead_id", lead.ID, "campaign_id", campaign.ID, "destination_id", destination.ID)
	}

	outcome.Results = append(outcome.Results, result)
	if r.recorder != nil {
		if recordErr := r.recorder.AppendRoutingResult(ctx, &result); recordErr != nil {
			logger.Error(ctx, "Failed to persist routing result",
				"lead_id", lead.ID, "campaign_id", campaign.ID, "error", recordErr)
		}
	}

	return result.Status == models.RoutingDelivered
}
