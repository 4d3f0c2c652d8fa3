package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"

	"github.com/checkfox/leadroute/internal/models"
)

// Outcome is the duplicate decision for one lead
type Outcome struct {
	// Duplicate is true when any configured fingerprint was seen before
	Duplicate bool

	// Reject is true when policy suppresses the lead: suppression-list
	// sources and the default policy reject, append_dupes accepts flagged
	Reject bool

	// Reason is the rejection reason to record when Reject is set
	Reason string

	// Fingerprints are the dedup keys computed for this lead, stored on the
	// lead for later delivered-duplicate checks
	Fingerprints []string
}

// Detector fingerprints leads on configured field sets and suppresses
// re-acceptance within the source's window
type Detector interface {
	// CheckAndRecord checks the lead's fingerprints against the index and
	// records them in one pass. Fingerprints match with OR semantics: any
	// configured field seen before counts as duplicate. Reprocessing the
	// same lead is idempotent; its own recorded fingerprints never flag it.
	CheckAndRecord(ctx context.Context, source *models.Source, lead *models.Lead) (Outcome, error)
}

// RedisDetector is the Redis-backed Detector. Each fingerprint is written
// with SET NX plus the source's window as TTL, holding the recording lead's
// ref as the value, so check-and-record is atomic per key and a retried lead
// recognizes its own earlier writes. The index is shared platform-wide
// unless the source opts out of global checks, in which case keys are scoped
// to the source.
type RedisDetector struct {
	rdb *redis.Client
}

// NewRedisDetector creates a Detector on an existing Redis client
func NewRedisDetector(rdb *redis.Client) *RedisDetector {
	return &RedisDetector{rdb: rdb}
}

// CheckAndRecord implements Detector
func (d *RedisDetector) CheckAndRecord(ctx context.Context, source *models.Source, lead *models.Lead) (Outcome, error) {
	cfg := source.Config

	fingerprints := Fingerprints(cfg.DupeFields, lead.Data)
	outcome := Outcome{Fingerprints: fingerprints}

	if !cfg.DupeCheck || len(fingerprints) == 0 {
		return outcome, nil
	}

	window := cfg.DupeWindow()

	pipe := d.rdb.Pipeline()
	written := make([]*redis.BoolCmd, len(fingerprints))
	for i, fp := range fingerprints {
		// Zero expiration keeps the key forever (permanent non-reacceptance)
		written[i] = pipe.SetNX(ctx, d.key(source, fp), lead.LeadRef, window)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return outcome, models.NewDependencyUnavailableError("dedup index", err)
	}

	var taken []string
	for i, cmd := range written {
		if !cmd.Val() {
			taken = append(taken, d.key(source, fingerprints[i]))
		}
	}

	if len(taken) == 0 {
		return outcome, nil
	}

	// A key this lead wrote on an earlier attempt is not a hit; a failed
	// stage downstream of dedup retries the whole job, and the retry must
	// not collide with its own first pass.
	owners, err := d.rdb.MGet(ctx, taken...).Result()
	if err != nil {
		return outcome, models.NewDependencyUnavailableError("dedup index", err)
	}
	for _, owner := range owners {
		if owner == nil {
			// Key expired between the write and the read
			continue
		}
		if ref, ok := owner.(string); ok && ref == lead.LeadRef {
			continue
		}
		outcome.Duplicate = true
		break
	}

	if !outcome.Duplicate {
		return outcome, nil
	}

	switch {
	case cfg.UseAsSuppressionList:
		outcome.Reject = true
		outcome.Reason = models.RejectionReasonSuppressed
	case cfg.AppendDupes:
		outcome.Reject = false
	default:
		outcome.Reject = true
		outcome.Reason = models.RejectionReasonDuplicate
	}

	return outcome, nil
}

func (d *RedisDetector) key(source *models.Source, fingerprint string) string {
	if source.Config.ExcludeFromGlobalDupeChecks {
		return fmt.Sprintf("dedup:src:%s:%s", source.ID, fingerprint)
	}
	return fmt.Sprintf("dedup:global:%s", fingerprint)
}

// Fingerprints derives one deterministic fingerprint per configured field
// with a present, non-empty value. Values are trimmed and lowercased first
// so formatting noise does not defeat the check.
func Fingerprints(fields []string, data models.JSONB) []string {
	var fingerprints []string
	for _, field := range fields {
		value, ok := data[field]
		if !ok || value == nil {
			continue
		}

		normalized := strings.ToLower(strings.TrimSpace(fmt.Sprintf("%v", value)))
		if normalized == "" {
			continue
		}

		sum := sha256.Sum256([]byte(field + "\x1f" + normalized))
		fingerprints = append(fingerprints, hex.EncodeToString(sum[:]))
	}
	return fingerprints
}
