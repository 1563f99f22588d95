// Package guard implements the permission enforcement loop: it polls group
// audit logs for instance creations and closes instances opened by members
// without the required permission.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"groupwarden/internal/cache"
	"groupwarden/internal/dedup"
	"groupwarden/internal/metrics"
	"groupwarden/internal/platform"
	"groupwarden/internal/policy"
	"groupwarden/internal/tracing"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GroupSource lists the groups the daemon is authorized to moderate.
type GroupSource interface {
	AuthorizedGroupIDs() []string
}

// StaticGroups is a fixed authorized-group list.
type StaticGroups []string

func (g StaticGroups) AuthorizedGroupIDs() []string { return g }

// ConfigSource provides per-group rule configuration.
type ConfigSource interface {
	GetGroupConfig(ctx context.Context, groupID string) (*policy.GroupConfig, error)
}

// AuditLogSource fetches recent audit events for a group, newest first.
type AuditLogSource interface {
	GetGroupAuditLogs(ctx context.Context, groupID string, limit int) ([]platform.AuditEvent, error)
}

// RoleSource fetches a group's role definitions.
type RoleSource interface {
	GetGroupRoles(ctx context.Context, groupID string) ([]platform.Role, error)
}

// MemberSource resolves a user's membership record within a group.
// Returns platform.ErrNotFound for users no longer in the group.
type MemberSource interface {
	GetGroupMember(ctx context.Context, groupID, userID string) (*platform.Member, error)
}

// InstanceCloser closes a running instance.
type InstanceCloser interface {
	CloseInstance(ctx context.Context, worldID, instanceID string) error
}

// GuardState remembers which instances are already closed so they are not
// acted on twice.
type GuardState interface {
	IsClosed(instanceKey string) bool
	MarkClosed(instanceKey string) error
}

// AuditTrail records enforcement actions. Append-only.
type AuditTrail interface {
	CreateAuditRecord(ctx context.Context, rec ActionRecord) error
}

// Publisher notifies live UI observers.
type Publisher interface {
	Publish(event string, payload any)
}

// PassResult summarizes one enforcement pass.
type PassResult struct {
	TotalClosed   int `json:"total_closed"`
	GroupsChecked int `json:"groups_checked"`
}

// Loop runs the enforcement pass. Passes are not re-entrant; the scheduler
// must not overlap invocations. All upstream calls within a pass are issued
// sequentially to stay within upstream rate limits.
type Loop struct {
	groups     GroupSource
	configs    ConfigSource
	auditLogs  AuditLogSource
	roles      RoleSource
	members    MemberSource
	closer     InstanceCloser
	guardState GuardState
	registry   *dedup.Registry
	roleCache  *cache.TTL[string, []platform.Role]
	trail      AuditTrail
	bus        Publisher

	rateLimit   *RateLimitState
	pauseWindow time.Duration
	pageSize    int
	now         func() time.Time
}

// LoopOptions configures the enforcement loop.
type LoopOptions struct {
	Groups     GroupSource
	Configs    ConfigSource
	AuditLogs  AuditLogSource
	Roles      RoleSource
	Members    MemberSource
	Closer     InstanceCloser
	GuardState GuardState
	Registry   *dedup.Registry
	Trail      AuditTrail
	Bus        Publisher

	// RateLimit may be shared between loops; if nil a fresh state is used.
	RateLimit *RateLimitState

	// PauseWindow is how long a rate-limit signal pauses all enforcement.
	// If zero, 30 minutes is used.
	PauseWindow time.Duration

	// AuditPageSize bounds the audit fetch per group. If zero, 50 is used.
	AuditPageSize int

	// RoleCacheSize and RoleCacheTTL bound the role cache. Defaults: 256, 10m.
	RoleCacheSize int
	RoleCacheTTL  time.Duration

	// Now overrides the clock for tests.
	Now func() time.Time
}

// NewLoop creates an enforcement loop.
func NewLoop(opts LoopOptions) *Loop {
	if opts.RateLimit == nil {
		opts.RateLimit = NewRateLimitState()
	}
	if opts.PauseWindow == 0 {
		opts.PauseWindow = 30 * time.Minute
	}
	if opts.AuditPageSize == 0 {
		opts.AuditPageSize = 50
	}
	if opts.RoleCacheSize == 0 {
		opts.RoleCacheSize = 256
	}
	if opts.RoleCacheTTL == 0 {
		opts.RoleCacheTTL = 10 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Loop{
		groups:      opts.Groups,
		configs:     opts.Configs,
		auditLogs:   opts.AuditLogs,
		roles:       opts.Roles,
		members:     opts.Members,
		closer:      opts.Closer,
		guardState:  opts.GuardState,
		registry:    opts.Registry,
		roleCache:   cache.NewTTL[string, []platform.Role](opts.RoleCacheSize, opts.RoleCacheTTL),
		trail:       opts.Trail,
		bus:         opts.Bus,
		rateLimit:   opts.RateLimit,
		pauseWindow: opts.PauseWindow,
		pageSize:    opts.AuditPageSize,
		now:         opts.Now,
	}
}

// Paused reports the loop's current pause state.
func (l *Loop) Paused() (bool, time.Time) {
	return l.rateLimit.Paused(l.now())
}

// errPassAborted signals a rate-limit abort of the remaining pass. The
// partial result accumulated so far is still returned.
var errPassAborted = errors.New("guard: pass aborted by rate limit")

// RunPass performs one bounded enforcement pass over all authorized groups.
// It is intended to be invoked periodically by a scheduler and never blocks
// beyond the sequential upstream calls it issues.
func (l *Loop) RunPass(ctx context.Context) (PassResult, error) {
	var result PassResult

	if paused, until := l.rateLimit.Paused(l.now()); paused {
		log.Debug().Time("paused_until", until).Msg("guard: pass skipped, rate limit pause active")
		return result, nil
	}

	ctx, span := tracing.GuardPassSpan(ctx)
	defer span.End()

	metrics.GuardPassesTotal.Inc()

	if err := l.registry.Load(); err != nil {
		// Without the dedup registry we cannot guarantee at-most-once
		// enforcement, so the pass does not proceed.
		log.Error().Err(err).Msg("guard: failed to load processed-event registry")
		return result, fmt.Errorf("failed to load registry: %w", err)
	}

	// Persist whatever was marked processed, even on an early abort.
	defer func() {
		if err := l.registry.Persist(); err != nil {
			log.Error().Err(err).Msg("guard: failed to persist processed-event registry")
		}
	}()

	for _, groupID := range l.groups.AuthorizedGroupIDs() {
		err := l.checkGroup(ctx, groupID, &result)
		if errors.Is(err, errPassAborted) {
			log.Warn().Str("group_id", groupID).Msg("guard: rate limited, aborting pass")
			return result, nil
		}
		if err != nil {
			// One group's failure must not abort the whole pass
			log.Error().Err(err).Str("group_id", groupID).Msg("guard: group check failed")
		}
	}

	log.Info().
		Int("groups_checked", result.GroupsChecked).
		Int("total_closed", result.TotalClosed).
		Msg("guard: pass complete")

	return result, nil
}

func (l *Loop) checkGroup(ctx context.Context, groupID string, result *PassResult) error {
	cfg, err := l.configs.GetGroupConfig(ctx, groupID)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg == nil || !hasEnabledGuardRule(cfg) {
		return nil
	}

	result.GroupsChecked++

	events, err := l.auditLogs.GetGroupAuditLogs(ctx, groupID, l.pageSize)
	if err != nil {
		if errors.Is(err, platform.ErrRateLimited) {
			l.pause()
			return errPassAborted
		}
		return fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	pending := make([]platform.AuditEvent, 0, len(events))
	for _, ev := range events {
		if ev.EventType != platform.EventTypeInstanceCreate {
			continue
		}
		if l.registry.Contains(dedup.Key(groupID, ev.ID)) {
			continue
		}
		pending = append(pending, ev)
	}
	if len(pending) == 0 {
		return nil
	}

	// Role data must be fresh before any authorization decision. A failed
	// refetch skips the group without marking events processed, so they
	// are retried next pass.
	roles, ok := l.roleCache.Get(groupID)
	if !ok {
		roles, err = l.roles.GetGroupRoles(ctx, groupID)
		if err != nil {
			return fmt.Errorf("failed to fetch roles: %w", err)
		}
		l.roleCache.Set(groupID, roles)
	}
	table := permissionTable(roles)

	for _, ev := range pending {
		if err := l.checkEvent(ctx, groupID, ev, table, result); errors.Is(err, errPassAborted) {
			return err
		}
	}
	return nil
}

func (l *Loop) checkEvent(ctx context.Context, groupID string, ev platform.AuditEvent, table map[string][]string, result *PassResult) error {
	// Marked processed before evaluation: at most one enforcement attempt
	// per event, even if this pass fails midway.
	l.registry.Add(dedup.Key(groupID, ev.ID))
	metrics.GuardEventsProcessedTotal.Inc()

	worldID, instID, ok := parseInstanceTarget(ev.TargetID)
	if !ok {
		log.Warn().Str("target", ev.TargetID).Str("event_id", ev.ID).
			Msg("guard: malformed instance target, skipping")
		return nil
	}

	key := instanceKey(worldID, instID)
	if l.guardState.IsClosed(key) {
		return nil
	}

	var reason string
	member, err := l.members.GetGroupMember(ctx, groupID, ev.ActorID)
	switch {
	case errors.Is(err, platform.ErrNotFound):
		reason = fmt.Sprintf("Creator %s is not a member of the group", ev.ActorID)
	case err != nil:
		// Transient lookup failure: skip this event. It stays marked
		// processed and will not be retried.
		log.Warn().Err(err).Str("actor_id", ev.ActorID).Str("event_id", ev.ID).
			Msg("guard: member lookup failed, skipping event")
		return nil
	case canCreateInstances(member.RoleIDs, table):
		return nil
	default:
		reason = fmt.Sprintf("Creator %s lacks instance creation permission", ev.ActorID)
	}

	err = l.closer.CloseInstance(ctx, worldID, instID)
	switch {
	case errors.Is(err, platform.ErrRateLimited):
		l.pause()
		return errPassAborted
	case errors.Is(err, platform.ErrAlreadyClosed):
		// Already closed upstream counts as a successful closure
	case err != nil:
		log.Error().Err(err).Str("world_id", worldID).Str("instance_id", instID).
			Msg("guard: failed to close instance")
		return nil
	}

	result.TotalClosed++
	metrics.GuardInstancesClosedTotal.Inc()

	if err := l.guardState.MarkClosed(key); err != nil {
		log.Error().Err(err).Str("instance", key).Msg("guard: failed to mark instance closed")
	}

	now := l.now()
	record := ActionRecord{
		ID:               uuid.NewString(),
		Timestamp:        now,
		ActorID:          ev.ActorID,
		ActorDisplayName: ev.ActorDisplayName,
		GroupID:          groupID,
		Action:           ActionInstanceClosed,
		Reason:           reason,
		Module:           ModuleInstanceGuard,
		Details: map[string]string{
			"world_id":    worldID,
			"instance_id": instID,
			"event_id":    ev.ID,
		},
	}
	if err := l.trail.CreateAuditRecord(ctx, record); err != nil {
		log.Error().Err(err).Str("instance", key).Msg("guard: failed to write audit record")
	}

	if l.bus != nil {
		l.bus.Publish(EventInstanceClosed, ClosedInstanceEvent{
			GroupID:          groupID,
			WorldID:          worldID,
			InstanceID:       instID,
			ActorID:          ev.ActorID,
			ActorDisplayName: ev.ActorDisplayName,
			Reason:           reason,
			ClosedAt:         now,
		})
	}

	log.Info().
		Str("group_id", groupID).
		Str("world_id", worldID).
		Str("instance_id", instID).
		Str("actor_id", ev.ActorID).
		Str("reason", reason).
		Msg("guard: closed unauthorized instance")

	return nil
}

func (l *Loop) pause() {
	until := l.now().Add(l.pauseWindow)
	l.rateLimit.PauseUntil(until)
	metrics.GuardRateLimitPausesTotal.Inc()
	log.Warn().Time("paused_until", until).Msg("guard: rate limited, pausing all enforcement")
}

func hasEnabledGuardRule(cfg *policy.GroupConfig) bool {
	for i := range cfg.Rules {
		if cfg.Rules[i].Enabled && cfg.Rules[i].Type == policy.RuleInstancePermissionGuard {
			return true
		}
	}
	return false
}
