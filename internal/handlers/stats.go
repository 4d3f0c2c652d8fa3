package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/checkfox/leadroute/internal/logger"
	"github.com/checkfox/leadroute/internal/models"
	"github.com/checkfox/leadroute/internal/queue"
	"github.com/checkfox/leadroute/internal/repository"
)

// StatsHandler handles statistics and observability endpoints
type StatsHandler struct {
	leadRepo      repository.LeadRepository
	unknownFields repository.UnknownFieldRepository
	queue         queue.Queue
	now           func() time.Time
}

// NewStatsHandler creates a new StatsHandler
func NewStatsHandler(leadRepo repository.LeadRepository, unknownFields repository.UnknownFieldRepository, q queue.Queue) *StatsHandler {
	return &StatsHandler{
		leadRepo:      leadRepo,
		unknownFields: unknownFields,
		queue:         q,
		now:           time.Now,
	}
}

// LeadCounts represents lead counts grouped by status
type LeadCounts struct {
	New       int `json:"new"`
	Processed int `json:"processed"`
	Rejected  int `json:"rejected"`
	Exported  int `json:"exported"`
	Total     int `json:"total"`
}

// DeliveryCounts buckets delivered and failed routing results over a window
type DeliveryCounts struct {
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// StatsResponse is the aggregate platform snapshot
type StatsResponse struct {
	Leads      LeadCounts                `json:"leads"`
	Deliveries map[string]DeliveryCounts `json:"deliveries"`
	QueueDepth int                       `json:"queue_depth"`
}

// RecentLeadSummary represents a summary of a recent lead
type RecentLeadSummary struct {
	ID              int64   `json:"id"`
	LeadRef         string  `json:"lead_ref"`
	SourceID        string  `json:"source_id"`
	CreatedAt       string  `json:"created_at"`
	Status          string  `json:"status"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
	IsDuplicate     bool    `json:"is_duplicate"`
}

// LeadHistoryResponse represents the full history of a lead
type LeadHistoryResponse struct {
	ID              int64                  `json:"id"`
	LeadRef         string                 `json:"lead_ref"`
	VendorID        string                 `json:"vendor_id"`
	SourceID        string                 `json:"source_id"`
	CreatedAt       string                 `json:"created_at"`
	ProcessedAt     *string                `json:"processed_at,omitempty"`
	Status          string                 `json:"status"`
	RejectionReason *string                `json:"rejection_reason,omitempty"`
	IsDuplicate     bool                   `json:"is_duplicate"`
	RawPayload      map[string]interface{} `json:"raw_payload"`
	Data            map[string]interface{} `json:"data,omitempty"`
	RoutingResults  []RoutingResultSummary `json:"routing_results"`
}

// RoutingResultSummary represents one delivery attempt of a lead
type RoutingResultSummary struct {
	CustomerName    string  `json:"customer_name"`
	CampaignName    string  `json:"campaign_name"`
	DestinationName string  `json:"destination_name"`
	Status          string  `json:"status"`
	ErrorMessage    *string `json:"error_message,omitempty"`
	DeliveredAt     string  `json:"delivered_at"`
}

// HandleStats handles GET /v1/stats
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logger.Info(ctx, "Fetching platform stats")

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts, err := h.leadRepo.GetLeadCountsByStatus(ctx)
	if err != nil {
		logger.LogError(ctx, "Failed to get lead counts", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	total := 0
	for _, count := range counts {
		total += count
	}

	now := h.now().UTC()
	windows := map[string]time.Time{
		"day":      now.Add(-24 * time.Hour),
		"week":     now.Add(-7 * 24 * time.Hour),
		"month":    now.Add(-30 * 24 * time.Hour),
		"all_time": {},
	}

	deliveries := make(map[string]DeliveryCounts, len(windows))
	for name, since := range windows {
		delivered, err := h.leadRepo.CountRoutingResultsSince(ctx, models.RoutingDelivered, since)
		if err != nil {
			logger.LogError(ctx, "Failed to count deliveries", err, "window", name)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		failed, err := h.leadRepo.CountRoutingResultsSince(ctx, models.RoutingFailed, since)
		if err != nil {
			logger.LogError(ctx, "Failed to count failed deliveries", err, "window", name)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		deliveries[name] = DeliveryCounts{Delivered: delivered, Failed: failed}
	}

	depth, err := h.queue.Depth(ctx)
	if err != nil {
		logger.LogError(ctx, "Failed to get queue depth", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	response := StatsResponse{
		Leads: LeadCounts{
			New:       counts[string(models.LeadStatusNew)],
			Processed: counts[string(models.LeadStatusProcessed)],
			Rejected:  counts[string(models.LeadStatusRejected)],
			Exported:  counts[string(models.LeadStatusExported)],
			Total:     total,
		},
		Deliveries: deliveries,
		QueueDepth: depth,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// HandleRecentLeads handles GET /v1/leads/recent
func (h *StatsHandler) HandleRecentLeads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	logger.Info(ctx, "Fetching recent leads")

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	leads, err := h.leadRepo.GetRecentLeads(ctx, 50)
	if err != nil {
		logger.LogError(ctx, "Failed to get recent leads", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	response := make([]RecentLeadSummary, 0, len(leads))
	for _, lead := range leads {
		summary := RecentLeadSummary{
			ID:              lead.ID,
			LeadRef:         lead.LeadRef,
			SourceID:        lead.SourceID,
			CreatedAt:       lead.CreatedAt.Format(time.RFC3339),
			Status:          string(lead.Status),
			RejectionReason: lead.RejectionReason,
			IsDuplicate:     lead.IsDuplicate,
		}
		response = append(response, summary)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// HandleLeadHistory handles GET /v1/leads/{lead_ref}
func (h *StatsHandler) HandleLeadHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	leadRef := mux.Vars(r)["lead_ref"]
	if leadRef == "" {
		http.Error(w, "invalid lead reference", http.StatusBadRequest)
		return
	}

	logger.Info(ctx, "Fetching lead history", "lead_ref", leadRef)

	lead, err := h.leadRepo.GetLeadByRef(ctx, leadRef)
	if err != nil {
		logger.LogError(ctx, "Failed to get lead", err, "lead_ref", leadRef)
		http.Error(w, "lead not found", http.StatusNotFound)
		return
	}

	results := make([]RoutingResultSummary, 0, len(lead.RoutingResults))
	for _, result := range lead.RoutingResults {
		summary := RoutingResultSummary{
			CustomerName:    result.CustomerName,
			CampaignName:    result.CampaignName,
			DestinationName: result.DestinationName,
			Status:          string(result.Status),
			ErrorMessage:    result.ErrorMessage,
			DeliveredAt:     result.DeliveredAt.Format(time.RFC3339),
		}
		results = append(results, summary)
	}

	var processedAt *string
	if lead.ProcessedAt != nil {
		formatted := lead.ProcessedAt.Format(time.RFC3339)
		processedAt = &formatted
	}

	response := LeadHistoryResponse{
		ID:              lead.ID,
		LeadRef:         lead.LeadRef,
		VendorID:        lead.VendorID,
		SourceID:        lead.SourceID,
		CreatedAt:       lead.CreatedAt.Format(time.RFC3339),
		ProcessedAt:     processedAt,
		Status:          string(lead.Status),
		RejectionReason: lead.RejectionReason,
		IsDuplicate:     lead.IsDuplicate,
		RawPayload:      lead.RawPayload,
		Data:            lead.Data,
		RoutingResults:  results,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)
}

// HandleUnknownFields handles GET /v1/sources/{source_id}/unknown-fields
func (h *StatsHandler) HandleUnknownFields(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sourceID := mux.Vars(r)["source_id"]
	if sourceID == "" {
		http.Error(w, "invalid source ID", http.StatusBadRequest)
		return
	}

	logger.Info(ctx, "Fetching unknown fields", "source_id", sourceID)

	fields, err := h.unknownFields.ListBySource(ctx, sourceID)
	if err != nil {
		logger.LogError(ctx, "Failed to list unknown fields", err, "source_id", sourceID)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(fields)
}

// HandleHealth handles GET /health
func (h *StatsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
