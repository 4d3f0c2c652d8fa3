package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/checkfox/leadroute/internal/client"
	"github.com/checkfox/leadroute/internal/dedup"
	"github.com/checkfox/leadroute/internal/delivery"
	"github.com/checkfox/leadroute/internal/logger"
	"github.com/checkfox/leadroute/internal/mapping"
	"github.com/checkfox/leadroute/internal/models"
	"github.com/checkfox/leadroute/internal/queue"
	"github.com/checkfox/leadroute/internal/repository"
	"github.com/checkfox/leadroute/internal/routing"
	"github.com/checkfox/leadroute/internal/rules"
)

// LeadRouter runs the routing stage; satisfied by routing.Router
type LeadRouter interface {
	Route(ctx context.Context, lead *models.Lead, snapshot *models.ConfigSnapshot) (*routing.Outcome, error)
}

// Validator runs the optional third-party validation hook; satisfied by
// client.ValidationClient
type Validator interface {
	Validate(ctx context.Context, cfg models.SourceValidationConfig, value string) (*client.ValidationResult, error)
}

// Processor drains route_lead jobs and runs each lead through the pipeline:
// normalize, validate, duplicate check, source rules, campaign routing.
type Processor struct {
	queue         queue.Queue
	leadRepo      repository.LeadRepository
	snapshots     repository.SnapshotRepository
	unknownFields repository.UnknownFieldRepository
	detector      dedup.Detector
	router        LeadRouter
	validator     Validator
	dispatcher    delivery.Dispatcher

	pollInterval time.Duration
	retryDelay   time.Duration
	concurrency  int
	shutdownChan chan struct{}
}

// ProcessorConfig holds configuration for the worker processor
type ProcessorConfig struct {
	Queue         queue.Queue
	LeadRepo      repository.LeadRepository
	Snapshots     repository.SnapshotRepository
	UnknownFields repository.UnknownFieldRepository
	Detector      dedup.Detector
	Router        LeadRouter
	Validator     Validator
	Dispatcher    delivery.Dispatcher
	PollInterval  time.Duration
	RetryDelay    time.Duration
	Concurrency   int
}

// NewProcessor creates a new worker processor
func NewProcessor(config ProcessorConfig) *Processor {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 30 * time.Second
	}
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}

	return &Processor{
		queue:         config.Queue,
		leadRepo:      config.LeadRepo,
		snapshots:     config.Snapshots,
		unknownFields: config.UnknownFields,
		detector:      config.Detector,
		router:        config.Router,
		validator:     config.Validator,
		dispatcher:    config.Dispatcher,
		pollInterval:  config.PollInterval,
		retryDelay:    config.RetryDelay,
		concurrency:   config.Concurrency,
		shutdownChan:  make(chan struct{}),
	}
}

// Start begins the worker polling loops with graceful shutdown. Each poll
// goroutine dequeues independently; SKIP LOCKED keeps them from contending
// over the same job.
func (p *Processor) Start(ctx context.Context) error {
	logger.Info(ctx, "Starting worker processor",
		"poll_interval", p.pollInterval, "concurrency", p.concurrency)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.pollLoop(loopCtx)
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		logger.Info(ctx, "Context cancelled, shutting down gracefully")
		err = ctx.Err()

	case <-sigChan:
		logger.Info(ctx, "Received shutdown signal, shutting down gracefully")

	case <-p.shutdownChan:
		logger.Info(ctx, "Shutdown requested, shutting down gracefully")
	}

	cancel()
	wg.Wait()
	return err
}

// pollLoop polls for jobs until the context is cancelled
func (p *Processor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if err := p.pollAndProcess(ctx); err != nil {
				logger.LogError(ctx, "Error polling and processing jobs", err)
				// Continue polling even if there's an error
			}
		}
	}
}

// Shutdown signals the worker to stop gracefully
func (p *Processor) Shutdown() {
	close(p.shutdownChan)
}

// pollAndProcess polls for a job and processes it
func (p *Processor) pollAndProcess(ctx context.Context) error {
	job, err := p.queue.Dequeue(ctx)
	if err != nil {
		if queue.IsUnavailableError(err) {
			logger.Warn(ctx, "Queue unavailable, retrying on next poll", "error", err.Error())
			return nil
		}
		return fmt.Errorf("failed to dequeue job: %w", err)
	}

	if job == nil {
		return nil
	}

	logger.Info(ctx, "Processing job", "job_id", job.ID, "job_type", job.Type)

	var processErr error
	switch job.Type {
	case queue.JobTypeRouteLead:
		processErr = p.processLead(ctx, job)
	default:
		processErr = fmt.Errorf("unknown job type: %s", job.Type)
	}

	if processErr != nil {
		// A dependency outage is transient; keep the job and retry later
		var depErr *models.DependencyUnavailableError
		if errors.As(processErr, &depErr) {
			logger.Warn(ctx, "Dependency unavailable, rescheduling job",
				"job_id", job.ID, "dependency", depErr.Dependency, "delay", p.retryDelay)
			if err := p.queue.Retry(ctx, job.ID, p.retryDelay); err != nil {
				logger.LogError(ctx, "Failed to reschedule job", err, "job_id", job.ID)
			}
			return processErr
		}

		logger.LogError(ctx, "Job failed", processErr, "job_id", job.ID)
		if err := p.queue.Fail(ctx, job.ID, processErr.Error()); err != nil {
			logger.LogError(ctx, "Failed to mark job as failed", err, "job_id", job.ID)
		}
		return processErr
	}

	if err := p.queue.Complete(ctx, job.ID); err != nil {
		logger.LogError(ctx, "Failed to mark job as completed", err, "job_id", job.ID)
		return err
	}

	logger.Info(ctx, "Job completed successfully", "job_id", job.ID)
	return nil
}

// processLead runs a single lead through the full routing pipeline
func (p *Processor) processLead(ctx context.Context, job *queue.Job) error {
	startTime := time.Now()

	leadID, ok := queue.GetLeadID(job.Payload)
	if !ok {
		return fmt.Errorf("%w: missing lead_id", queue.ErrInvalidPayload)
	}

	ctx = context.WithValue(ctx, logger.LeadIDKey, leadID)
	logger.Info(ctx, "Processing lead")

	lead, err := p.leadRepo.GetLeadByID(ctx, leadID)
	if err != nil {
		return fmt.Errorf("failed to load lead %d: %w", leadID, err)
	}

	if lead.Status.IsTerminal() {
		logger.Info(ctx, "Lead already in terminal state, skipping", "status", lead.Status)
		return nil
	}

	snapshot, err := p.snapshots.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration snapshot: %w", err)
	}

	source, ok := snapshot.Sources[lead.SourceID]
	if !ok {
		return p.reject(ctx, lead, models.RejectionReasonValidationFailed,
			fmt.Sprintf("source %s no longer configured", lead.SourceID))
	}

	p.normalize(ctx, lead, source)

	if rejected, err := p.validate(ctx, lead, source); err != nil || rejected {
		p.logDuration(ctx, startTime)
		return err
	}

	// Duplicates are settled before filtering rules so a lead that trips
	// both gates carries the duplicate reason, and every surviving lead
	// has its fingerprints on record
	if rejected, err := p.checkDuplicates(ctx, lead, source, snapshot); err != nil || rejected {
		p.logDuration(ctx, startTime)
		return err
	}

	if rejected := p.applySourceRules(ctx, lead, source, snapshot); rejected {
		p.logDuration(ctx, startTime)
		return nil
	}

	outcome, err := p.router.Route(ctx, lead, snapshot)
	if err != nil {
		return err
	}

	p.finalize(ctx, lead, outcome)
	p.logDuration(ctx, startTime)
	return nil
}

// normalize maps the raw payload to canonical fields and records any inbound
// keys the mapping does not know about
func (p *Processor) normalize(ctx context.Context, lead *models.Lead, source *models.Source) {
	data, unknown := mapping.Normalize(source.Mapping.Rules, lead.RawPayload)
	lead.Data = data

	for _, fieldName := range unknown {
		sample := ""
		if v, ok := lead.RawPayload[fieldName]; ok && v != nil {
			sample = fmt.Sprintf("%v", v)
		}
		if err := p.unknownFields.RecordSighting(ctx, source.ID, fieldName, sample); err != nil {
			// Unknown field tracking never blocks routing
			logger.Warn(ctx, "Failed to record unknown field",
				"source_id", source.ID, "field", fieldName, "error", err)
		}
	}

	if len(unknown) > 0 {
		logger.Info(ctx, "Unmapped inbound fields detected",
			"source_id", source.ID, "count", len(unknown))
	}
}

// validate runs the source's third-party validation hook, rejecting the lead
// on a negative verdict. A hook transport failure is logged and waved
// through so an external outage cannot stall the pipeline.
func (p *Processor) validate(ctx context.Context, lead *models.Lead, source *models.Source) (bool, error) {
	if p.validator == nil || !source.Validation.Enabled() {
		return false, nil
	}

	value, ok := lead.StringField(source.Validation.ValidationField)
	if !ok {
		logger.Info(ctx, "Validation field absent from lead, skipping hook",
			"field", source.Validation.ValidationField)
		return false, nil
	}

	result, err := p.validator.Validate(ctx, source.Validation, value)
	if err != nil {
		logger.Warn(ctx, "Validation hook unreachable, accepting lead", "error", err)
		return false, nil
	}

	if !result.Valid {
		logger.Info(ctx, "Third-party validation rejected lead",
			"field", source.Validation.ValidationField, "status_code", result.StatusCode)
		return true, p.reject(ctx, lead, models.RejectionReasonValidationFailed, "")
	}

	return false, nil
}

// applySourceRules evaluates the source's filtering rules. Filtered leads are
// rejected, optionally after a courtesy delivery to the source's
// send_filtered_leads_to destination.
func (p *Processor) applySourceRules(ctx context.Context, lead *models.Lead, source *models.Source, snapshot *models.ConfigSnapshot) bool {
	if source.Rules.Filtering == nil {
		return false
	}

	record := rules.RecordFromJSONB(lead.Data)
	if rules.Evaluate(source.Rules.Filtering, record) {
		return false
	}

	logger.Info(ctx, "Source rules filtered lead", "source_id", source.ID)
	p.sendFiltered(ctx, lead, source, snapshot)

	if err := p.reject(ctx, lead, models.RejectionReasonSourceRules, ""); err != nil {
		logger.LogError(ctx, "Failed to persist rejection", err)
	}
	return true
}

// sendFiltered forwards a filtered lead to the side-channel destination when
// one is configured. The outcome is recorded but never changes the lead's
// rejection.
func (p *Processor) sendFiltered(ctx context.Context, lead *models.Lead, source *models.Source, snapshot *models.ConfigSnapshot) {
	destID := source.Config.SendFilteredLeadsTo
	if destID == "" || p.dispatcher == nil {
		return
	}

	destination, ok := snapshot.Destinations[destID]
	if !ok || !destination.Deliverable() {
		logger.Warn(ctx, "Filtered-lead destination not deliverable",
			"source_id", source.ID, "destination_id", destID)
		return
	}

	result := models.RoutingResult{
		LeadID:          lead.ID,
		CustomerID:      destination.CustomerID,
		DestinationID:   destination.ID,
		DestinationName: destination.Name,
		DeliveredAt:     time.Now().UTC(),
	}

	if _, err := p.dispatcher.Dispatch(ctx, destination, lead.Data); err != nil {
		msg := err.Error()
		result.Status = models.RoutingFailed
		result.ErrorMessage = &msg
		logger.Warn(ctx, "Filtered-lead delivery failed",
			"destination_id", destID, "error", msg)
	} else {
		result.Status = models.RoutingDelivered
		logger.Info(ctx, "Filtered lead forwarded", "destination_id", destID)
	}

	if err := p.leadRepo.AppendRoutingResult(ctx, &result); err != nil {
		logger.LogError(ctx, "Failed to persist filtered-lead result", err)
	}
}

// checkDuplicates fingerprints the lead and consults the duplicate store.
// Depending on source policy a duplicate is rejected, suppressed, or
// accepted flagged. Rejected duplicates still get the courtesy forward to
// the source's send_filtered_leads_to destination.
func (p *Processor) checkDuplicates(ctx context.Context, lead *models.Lead, source *models.Source, snapshot *models.ConfigSnapshot) (bool, error) {
	outcome, err := p.detector.CheckAndRecord(ctx, source, lead)
	if err != nil {
		return false, err
	}

	lead.Fingerprints = models.StringList(outcome.Fingerprints)
	lead.IsDuplicate = outcome.Duplicate

	if !outcome.Reject {
		if outcome.Duplicate {
			logger.Info(ctx, "Duplicate accepted flagged", "source_id", source.ID)
		}
		return false, nil
	}

	logger.Info(ctx, "Duplicate lead rejected",
		"source_id", source.ID, "reason", outcome.Reason)
	p.sendFiltered(ctx, lead, source, snapshot)
	return true, p.reject(ctx, lead, outcome.Reason, "")
}

// finalize settles the lead's terminal status from the routing outcome
func (p *Processor) finalize(ctx context.Context, lead *models.Lead, outcome *routing.Outcome) {
	oldStatus := lead.Status

	switch {
	case outcome.Routed():
		if err := lead.MarkProcessed(); err != nil {
			logger.LogError(ctx, "Invalid status transition", err)
			return
		}
	case len(outcome.Results) == 0:
		reason := models.RejectionReasonNoEligibleCampaign
		if err := lead.MarkRejected(reason); err != nil {
			logger.LogError(ctx, "Invalid status transition", err)
			return
		}
	default:
		if err := lead.MarkRejected(models.RejectionReasonAllDeliveriesFailed); err != nil {
			logger.LogError(ctx, "Invalid status transition", err)
			return
		}
	}

	if err := p.leadRepo.UpdateLeadRouted(ctx, lead); err != nil {
		logger.LogError(ctx, "Failed to persist routed lead", err)
		return
	}

	logger.LogStatusTransition(ctx, lead.ID, string(oldStatus), string(lead.Status))
	logger.Info(ctx, "Lead routing settled",
		"delivered", outcome.Delivered, "failed", outcome.Failed, "final_status", lead.Status)
}

// reject marks the lead rejected and persists the pipeline state
func (p *Processor) reject(ctx context.Context, lead *models.Lead, reason, detail string) error {
	oldStatus := lead.Status
	if err := lead.MarkRejected(reason); err != nil {
		return err
	}

	if err := p.leadRepo.UpdateLeadRouted(ctx, lead); err != nil {
		return fmt.Errorf("failed to persist rejection: %w", err)
	}

	logger.LogStatusTransition(ctx, lead.ID, string(oldStatus), string(lead.Status))
	if detail != "" {
		logger.Info(ctx, "Lead rejected", "reason", reason, "detail", detail)
	} else {
		logger.Info(ctx, "Lead rejected", "reason", reason)
	}
	return nil
}

func (p *Processor) logDuration(ctx context.Context, startTime time.Time) {
	logger.LogSlowOperation(ctx, "route_lead", time.Since(startTime))
}
