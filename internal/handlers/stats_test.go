package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/checkfox/leadroute/internal/models"
	"github.com/checkfox/leadroute/internal/queue"
	"github.com/checkfox/leadroute/internal/repository"
)

// statsLeadRepo serves canned stats data; unused methods come from the embedded interface
type statsLeadRepo struct {
	repository.LeadRepository
	counts       map[string]int
	resultCounts map[models.RoutingResultStatus]int
	recent       []*models.Lead
	leadsByRef   map[string]*models.Lead
}

func (s *statsLeadRepo) GetLeadCountsByStatus(ctx context.Context) (map[string]int, error) {
	return s.counts, nil
}

func (s *statsLeadRepo) CountRoutingResultsSince(ctx context.Context, status models.RoutingResultStatus, since time.Time) (int, error) {
	return s.resultCounts[status], nil
}

func (s *statsLeadRepo) GetRecentLeads(ctx context.Context, limit int) ([]*models.Lead, error) {
	return s.recent, nil
}

func (s *statsLeadRepo) GetLeadByRef(ctx context.Context, leadRef string) (*models.Lead, error) {
	lead, ok := s.leadsByRef[leadRef]
	if !ok {
		return nil, errors.New("lead not found")
	}
	return lead, nil
}

// depthQueue reports a fixed queue depth
type depthQueue struct {
	queue.Queue
	depth int
}

func (q *depthQueue) Depth(ctx context.Context) (int, error) {
	return q.depth, nil
}

// stubUnknownFields serves canned unknown field listings
type stubUnknownFields struct {
	repository.UnknownFieldRepository
	fields []*models.UnknownField
}

func (s *stubUnknownFields) ListBySource(ctx context.Context, sourceID string) ([]*models.UnknownField, error) {
	return s.fields, nil
}

func TestHandleStats(t *testing.T) {
	leadRepo := &statsLeadRepo{
		counts: map[string]int{
			"new":       3,
			"processed": 10,
			"rejected":  4,
			"exported":  2,
		},
		resultCounts: map[models.RoutingResultStatus]int{
			models.RoutingDelivered: 12,
			models.RoutingFailed:    5,
		},
	}
	handler := NewStatsHandler(leadRepo, &stubUnknownFields{}, &depthQueue{depth: 7})

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rr := httptest.NewRecorder()
	handler.HandleStats(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var response StatsResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Leads.New != 3 || response.Leads.Processed != 10 || response.Leads.Rejected != 4 || response.Leads.Exported != 2 {
		t.Errorf("Unexpected lead counts: %+v", response.Leads)
	}
	if response.Leads.Total != 19 {
		t.Errorf("Expected total 19, got %d", response.Leads.Total)
	}
	if response.QueueDepth != 7 {
		t.Errorf("Expected queue depth 7, got %d", response.QueueDepth)
	}

	for _, window := range []string{"day", "week", "month", "all_time"} {
		bucket, ok := response.Deliveries[window]
		if !ok {
			t.Errorf("Expected deliveries bucket %q", window)
			continue
		}
		if bucket.Delivered != 12 || bucket.Failed != 5 {
			t.Errorf("Unexpected counts for window %q: %+v", window, bucket)
		}
	}
}

func TestHandleRecentLeads(t *testing.T) {
	reason := "duplicate"
	leadRepo := &statsLeadRepo{
		recent: []*models.Lead{
			{
				ID:        2,
				LeadRef:   "LD-BBBBBB",
				SourceID:  "src-1",
				Status:    models.LeadStatusRejected,
				CreatedAt: time.Date(2024, 3, 12, 15, 0, 0, 0, time.UTC),

				RejectionReason: &reason,
				IsDuplicate:     true,
			},
			{
				ID:        1,
				LeadRef:   "LD-AAAAAA",
				SourceID:  "src-1",
				Status:    models.LeadStatusProcessed,
				CreatedAt: time.Date(2024, 3, 12, 14, 0, 0, 0, time.UTC),
			},
		},
	}
	handler := NewStatsHandler(leadRepo, &stubUnknownFields{}, &depthQueue{})

	req := httptest.NewRequest(http.MethodGet, "/v1/leads/recent", nil)
	rr := httptest.NewRecorder()
	handler.HandleRecentLeads(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var response []RecentLeadSummary
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(response) != 2 {
		t.Fatalf("Expected 2 leads, got %d", len(response))
	}
	if response[0].LeadRef != "LD-BBBBBB" {
		t.Errorf("Expected most recent lead first, got %s", response[0].LeadRef)
	}
	if response[0].RejectionReason == nil || *response[0].RejectionReason != "duplicate" {
		t.Error("Expected rejection reason to be included")
	}
	if !response[0].IsDuplicate {
		t.Error("Expected duplicate flag to be included")
	}
}

func TestHandleLeadHistory(t *testing.T) {
	errMsg := "destination returned status 500"
	processedAt := time.Date(2024, 3, 12, 14, 30, 5, 0, time.UTC)
	leadRepo := &statsLeadRepo{
		leadsByRef: map[string]*models.Lead{
			"LD-AAAAAA": {
				ID:          1,
				LeadRef:     "LD-AAAAAA",
				VendorID:    "ven-1",
				SourceID:    "src-1",
				Status:      models.LeadStatusProcessed,
				RawPayload:  models.JSONB{"Email": "jane@example.com"},
				Data:        models.JSONB{"email": "jane@example.com"},
				CreatedAt:   time.Date(2024, 3, 12, 14, 30, 0, 0, time.UTC),
				ProcessedAt: &processedAt,
				RoutingResults: []models.RoutingResult{
					{
						CustomerName:    "Acme Solar",
						CampaignName:    "CA Standard",
						DestinationName: "Acme CRM",
						Status:          models.RoutingFailed,
						ErrorMessage:    &errMsg,
						DeliveredAt:     time.Date(2024, 3, 12, 14, 30, 3, 0, time.UTC),
					},
					{
						CustomerName:    "Acme Solar",
						CampaignName:    "CA Overflow",
						DestinationName: "Acme Backup",
						Status:          models.RoutingDelivered,
						DeliveredAt:     processedAt,
					},
				},
			},
		},
	}
	handler := NewStatsHandler(leadRepo, &stubUnknownFields{}, &depthQueue{})

	router := mux.NewRouter()
	router.HandleFunc("/v1/leads/{lead_ref}", handler.HandleLeadHistory).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/v1/leads/LD-AAAAAA", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var response LeadHistoryResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response.LeadRef != "LD-AAAAAA" {
		t.Errorf("Expected lead_ref LD-AAAAAA, got %s", response.LeadRef)
	}
	if response.ProcessedAt == nil {
		t.Error("Expected processed_at to be set")
	}
	if len(response.RoutingResults) != 2 {
		t.Fatalf("Expected 2 routing results, got %d", len(response.RoutingResults))
	}
	if response.RoutingResults[0].Status != "failed" || response.RoutingResults[0].ErrorMessage == nil {
		t.Errorf("Expected first result failed with error, got %+v", response.RoutingResults[0])
	}
	if response.RoutingResults[1].Status != "delivered" {
		t.Errorf("Expected second result delivered, got %+v", response.RoutingResults[1])
	}
}

func TestHandleLeadHistory_NotFound(t *testing.T) {
	handler := NewStatsHandler(&statsLeadRepo{leadsByRef: map[string]*models.Lead{}}, &stubUnknownFields{}, &depthQueue{})

	router := mux.NewRouter()
	router.HandleFunc("/v1/leads/{lead_ref}", handler.HandleLeadHistory).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/v1/leads/LD-MISSING", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rr.Code)
	}
}

func TestHandleUnknownFields(t *testing.T) {
	sample := "CA-94110"
	unknownFields := &stubUnknownFields{
		fields: []*models.UnknownField{
			{
				ID:            1,
				SourceID:      "src-1",
				FieldName:     "ZipPlusFour",
				SampleValue:   &sample,
				DetectedCount: 12,
				Status:        models.UnknownFieldUnmapped,
			},
		},
	}
	handler := NewStatsHandler(&statsLeadRepo{}, unknownFields, &depthQueue{})

	router := mux.NewRouter()
	router.HandleFunc("/v1/sources/{source_id}/unknown-fields", handler.HandleUnknownFields).Methods(http.MethodGet)

	req := httptest.NewRequest(http.MethodGet, "/v1/sources/src-1/unknown-fields", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var response []*models.UnknownField
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(response) != 1 {
		t.Fatalf("Expected 1 unknown field, got %d", len(response))
	}
	if response[0].FieldName != "ZipPlusFour" || response[0].DetectedCount != 12 {
		t.Errorf("Unexpected unknown field: %+v", response[0])
	}
}

func TestHandleHealth(t *testing.T) {
	handler := NewStatsHandler(&statsLeadRepo{}, &stubUnknownFields{}, &depthQueue{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	handler.HandleHealth(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["status"] != "ok" {
		t.Errorf("Expected status ok, got %q", response["status"])
	}
}
