// Package moderation implements the decision layer for group moderation:
// blacklist membership, anti-fake identity checks, anti-flood windows and
// the global command rate limit. The engine only decides and records state;
// protocol side effects (removals, notices) belong to the callers.
package moderation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/lucasvml/wishbot/internal/database"
	"github.com/lucasvml/wishbot/internal/jid"
)

// Engine evaluates moderation rules against stored group and user state.
type Engine struct {
	store  database.Store
	logger *slog.Logger

	// now is replaceable for tests.
	now func() time.Time
}

// NewEngine creates a moderation engine over the given store.
func NewEngine(store database.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		store:  store,
		logger: logger.With("component", "moderation"),
		now:    time.Now,
	}
}

// IsBlacklisted reports whether the user is on the group's blacklist.
// Enforcement (removal, notice) is the caller's job and requires the bot to
// hold admin rights, checked at enforcement time.
func (e *Engine) IsBlacklisted(group *database.Group, userID string) bool {
	if group == nil {
		return false
	}
	return slices.Contains(group.Settings.Blacklist, jid.User(userID))
}

// AntiFakeAllowed reports whether the user may stay in the group under the
// anti-fake rule. The caller supplies whether the user currently holds group
// admin rights and the bot's own id; both exempt the user unconditionally.
func (e *Engine) AntiFakeAllowed(group *database.Group, userID, botID string, userIsAdmin bool) bool {
	if group == nil || !group.Settings.AntiFake.Enabled {
		return true
	}

	userID = jid.User(userID)
	if userID == "" || userID == jid.User(botID) || userIsAdmin {
		return true
	}
	if slices.Contains(group.Settings.AntiFake.AllowedIDs, userID) {
		return true
	}

	phone := jid.Phone(userID)
	for _, prefix := range group.Settings.AntiFake.AllowedPrefixes {
		if prefix != "" && strings.HasPrefix(phone, prefix) {
			return true
		}
	}
	return false
}

// EnsureAntiFakeEnforceable checks whether anti-fake can actually be applied
// in the group. When the rule is enabled but the bot lacks admin rights it
// fails open: the rule is disabled and persisted so the group does not keep
// tripping on an unenforceable policy. Returns true when enforcement may
// proceed.
func (e *Engine) EnsureAntiFakeEnforceable(ctx context.Context, group *database.Group, botIsAdmin bool) (bool, error) {
	if group == nil || !group.Settings.AntiFake.Enabled {
		return false, nil
	}
	if botIsAdmin {
		return true, nil
	}

	e.logger.WarnContext(ctx, "Disabling anti-fake, bot lacks admin rights",
		"group_id", group.ID)
	err := e.store.UpdateGroupSettings(ctx, group.ID, func(s *database.GroupSettings) {
		s.AntiFake.Enabled = false
	})
	if err != nil {
		return false, fmt.Errorf("failed to disable anti-fake for %s: %w", group.ID, err)
	}
	group.Settings.AntiFake.Enabled = false
	return false, nil
}

// RecordMessage advances the participant's anti-flood window for one
// qualifying message and reports whether the message crossed the flood
// boundary. Enforcement is external policy.
func (e *Engine) RecordMessage(ctx context.Context, group *database.Group, participant *database.Participant) (bool, error) {
	if group == nil || participant == nil || !group.Settings.AntiFlood.Enabled {
		return false, nil
	}

	limits := group.Settings.AntiFlood
	now := e.now().Unix()

	count := participant.FloodCount + 1
	windowExpires := participant.FloodWindowExpires
	if now > windowExpires {
		count = 1
		windowExpires = now + limits.WindowSeconds
	}

	err := e.store.UpdateParticipantFlood(ctx, participant.GroupID, participant.UserID, count, windowExpires)
	if err != nil {
		return false, err
	}
	participant.FloodCount = count
	participant.FloodWindowExpires = windowExpires

	flooded := count > int64(limits.MaxMessages)
	if flooded {
		e.logger.InfoContext(ctx, "Flood boundary crossed",
			"group_id", participant.GroupID, "user_id", participant.UserID, "count", count)
	}
	return flooded, nil
}

// CommandVerdict is the outcome of a command rate limit check.
type CommandVerdict struct {
	// Allowed reports whether the command may execute.
	Allowed bool
	// JustLimited reports whether this attempt is the one that tripped the
	// limit, so callers can announce the block duration on it.
	JustLimited bool
}

// AllowCommand applies the global per-user command rate limit. While a user
// is limited, attempts are rejected without advancing the window; once the
// block expires the window resets and the attempt counts as the first of a
// fresh window.
func (e *Engine) AllowCommand(ctx context.Context, user *database.User, rate database.CommandRate) (CommandVerdict, error) {
	if user == nil || !rate.Enabled {
		return CommandVerdict{Allowed: true}, nil
	}

	now := e.now().Unix()

	if user.RateLimited {
		if now < user.RateLimitExpires {
			return CommandVerdict{}, nil
		}
		// Block elapsed: clear the flag and start a fresh window.
		err := e.store.UpdateUserRate(ctx, user.ID, false, 0, 1, now+rate.IntervalSecs)
		if err != nil {
			return CommandVerdict{}, err
		}
		user.RateLimited = false
		user.RateCount = 1
		user.RateWindowExpires = now + rate.IntervalSecs
		return CommandVerdict{Allowed: true}, nil
	}

	count := user.RateCount + 1
	windowExpires := user.RateWindowExpires
	if now > windowExpires {
		count = 1
		windowExpires = now + rate.IntervalSecs
	}

	if count > rate.MaxCommands {
		limitExpires := now + rate.BlockTimeSecs
		err := e.store.UpdateUserRate(ctx, user.ID, true, limitExpires, count, windowExpires)
		if err != nil {
			return CommandVerdict{}, err
		}
		user.RateLimited = true
		user.RateLimitExpires = limitExpires

		e.logger.InfoContext(ctx, "User rate limited",
			"user_id", user.ID, "count", count, "block_seconds", rate.BlockTimeSecs)
		return CommandVerdict{JustLimited: true}, nil
	}

	err := e.store.UpdateUserRate(ctx, user.ID, false, 0, count, windowExpires)
	if err != nil {
		return CommandVerdict{}, err
	}
	user.RateCount = count
	user.RateWindowExpires = windowExpires
	return CommandVerdict{Allowed: true}, nil
}

var linkPattern = regexp.MustCompile(`(?i)(?:https?://|www\.)\S+`)

// ContainsForbiddenLink reports whether the message text carries a link whose
// host is outside the group's anti-link allow-list. Subdomains of an allowed
// domain pass.
func (e *Engine) ContainsForbiddenLink(group *database.Group, text string) bool {
	if group == nil || !group.Settings.AntiLink.Enabled || text == "" {
		return false
	}

	for _, match := range linkPattern.FindAllString(text, -1) {
		host := linkHost(match)
		if host == "" {
			continue
		}
		if !domainAllowed(host, group.Settings.AntiLink.AllowedDomains) {
			return true
		}
	}
	return false
}

func linkHost(raw string) string {
	host := strings.ToLower(raw)
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")
	if cut := strings.IndexAny(host, "/?#"); cut >= 0 {
		host = host[:cut]
	}
	if at := strings.LastIndex(host, "@"); at >= 0 {
		host = host[at+1:]
	}
	if cut := strings.Index(host, ":"); cut >= 0 {
		host = host[:cut]
	}
	return strings.Trim(host, ".")
}

func domainAllowed(host string, allowed []string) bool {
	for _, domain := range allowed {
		domain = strings.ToLower(strings.TrimSpace(domain))
		if domain == "" {
			continue
		}
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// MatchesWordFilter reports whether the message text contains any filtered
// word for the group. Matching is case-insensitive on whole tokens.
func (e *Engine) MatchesWordFilter(group *database.Group, text string) bool {
	if group == nil || len(group.Settings.WordFilter) == 0 || text == "" {
		return false
	}

	lowered := strings.ToLower(text)
	for _, word := range group.Settings.WordFilter {
		if word != "" && strings.Contains(lowered, strings.ToLower(word)) {
			return true
		}
	}
	return false
}
