package caps

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/checkfox/leadroute/internal/models"
)

// Tracker reserves admission slots against a campaign's weekday, hourly and
// lifetime caps. Reservations are atomic across concurrent callers: a slot
// is taken only if every enabled counter stays within its limit.
type Tracker interface {
	// TryReserve atomically increments the campaign's counters if all caps
	// allow another admission. Returns false when any cap is exhausted; the
	// counters are then left untouched.
	TryReserve(ctx context.Context, campaign *models.Campaign, now time.Time) (bool, error)

	// Remaining reports how many admissions each capped axis still allows.
	// A nil entry means the axis is uncapped.
	Remaining(ctx context.Context, campaign *models.Campaign, now time.Time) (Remaining, error)
}

// Remaining holds per-axis headroom; nil means unlimited
type Remaining struct {
	Day      *int
	Hour     *int
	Lifetime *int
}

// Allows reports whether every capped axis still has headroom
func (r Remaining) Allows() bool {
	for _, v := range []*int{r.Day, r.Hour, r.Lifetime} {
		if v != nil && *v <= 0 {
			return false
		}
	}
	return true
}

const (
	dayKeyTTL  = 48 * time.Hour
	hourKeyTTL = 2 * time.Hour
)

// reserveScript checks all three counters and increments them in one atomic
// step. A limit of -1 disables the check for that axis; counters are still
// incremented so Remaining and reporting stay accurate.
var reserveScript = redis.NewScript(`
local day = tonumber(redis.call('GET', KEYS[1]) or '0')
local hour = tonumber(redis.call('GET', KEYS[2]) or '0')
local total = tonumber(redis.call('GET', KEYS[3]) or '0')

local day_limit = tonumber(ARGV[1])
local hour_limit = tonumber(ARGV[2])
local total_limit = tonumber(ARGV[3])

if day_limit >= 0 and day + 1 > day_limit then return 0 end
if hour_limit >= 0 and hour + 1 > hour_limit then return 0 end
if total_limit >= 0 and total + 1 > total_limit then return 0 end

redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[4])
redis.call('INCR', KEYS[2])
redis.call('EXPIRE', KEYS[2], ARGV[5])
redis.call('INCR', KEYS[3])
return 1
`)

// RedisTracker is the Redis-backed Tracker. Counter keys are bucketed on
// UTC day and clock-hour boundaries, so caps reset at those boundaries
// regardless of which worker observes them first.
type RedisTracker struct {
	rdb *redis.Client
}

// NewRedisTracker creates a Tracker on an existing Redis client
func NewRedisTracker(rdb *redis.Client) *RedisTracker {
	return &RedisTracker{rdb: rdb}
}

// TryReserve implements Tracker
func (t *RedisTracker) TryReserve(ctx context.Context, campaign *models.Campaign, now time.Time) (bool, error) {
	now = now.UTC()

	keys := []string{
		dayKey(campaign.ID, now),
		hourKey(campaign.ID, now),
		totalKey(campaign.ID),
	}
	args := []interface{}{
		limitArg(campaign.Config.CapForWeekday(now.Weekday())),
		limitArg(campaign.Config.HourlyCap),
		limitArg(campaign.Config.CampaignMax),
		int(dayKeyTTL.Seconds()),
		int(hourKeyTTL.Seconds()),
	}

	granted, err := reserveScript.Run(ctx, t.rdb, keys, args...).Int()
	if err != nil {
		return false, models.NewDependencyUnavailableError("cap store", err)
	}

	return granted == 1, nil
}

// Remaining implements Tracker
func (t *RedisTracker) Remaining(ctx context.Context, campaign *models.Campaign, now time.Time) (Remaining, error) {
	now = now.UTC()

	values, err := t.rdb.MGet(ctx,
		dayKey(campaign.ID, now),
		hourKey(campaign.ID, now),
		totalKey(campaign.ID),
	).Result()
	if err != nil {
		return Remaining{}, models.NewDependencyUnavailableError("cap store", err)
	}

	return Remaining{
		Day:      headroom(campaign.Config.CapForWeekday(now.Weekday()), values[0]),
		Hour:     headroom(campaign.Config.HourlyCap, values[1]),
		Lifetime: headroom(campaign.Config.CampaignMax, values[2]),
	}, nil
}

func limitArg(limit *int) int {
	if limit == nil {
		return -1
	}
	return *limit
}

func headroom(limit *int, raw interface{}) *int {
	if limit == nil {
		return nil
	}

	used := 0
	if s, ok := raw.(string); ok {
		fmt.Sscanf(s, "%d", &used)
	}

	left := *limit - used
	if left < 0 {
		left = 0
	}
	return &left
}

func dayKey(campaignID string, now time.Time) string {
	return fmt.Sprintf("caps:%s:day:%s", campaignID, now.Format("2006-01-02"))
}

func hourKey(campaignID string, now time.Time) string {
	return fmt.Sprintf("caps:%s:hour:%s", campaignID, now.Format("2006-01-02T15"))
}

func totalKey(campaignID string) string {
	return fmt.Sprintf("caps:%s:total", campaignID)
}
