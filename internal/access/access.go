// Package access is the Access Control & Alerts component: it tracks
// which users may act on which vault, logs graded security events for
// suspicious activity, and blocks a user after repeated failed access
// attempts. Grounded line-for-line on
// original_source/src/access_control.rs's AccessControlManager, with its
// tokio::sync::RwLock replaced by sync.RWMutex and its tracing::warn/error
// calls replaced by the zerolog component logger used throughout this
// backend.
package access

import (
	"fmt"
	"sync"
	"time"

	"github.com/withobsrvr/vault-backend/internal/logging"
)

// EventType enumerates the kinds of security event this package emits.
type EventType string

const (
	EventUnauthorizedAccessAttempt EventType = "unauthorized_access_attempt"
	EventSuspiciousWithdrawal      EventType = "suspicious_withdrawal"
	EventRapidTransactionSequence  EventType = "rapid_transaction_sequence"
	EventLargeUnexpectedTransfer   EventType = "large_unexpected_transfer"
	EventAccountStateChange        EventType = "account_state_change"
)

// Severity grades how serious a SecurityEvent is. Ordered so comparisons
// like `severity >= Medium` behave the way original_source orders its enum.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// SecurityEvent is one logged occurrence.
type SecurityEvent struct {
	EventType EventType
	User      string
	Vault     string
	Timestamp time.Time
	Details   string
	Severity  Severity
}

// Manager tracks per-vault authorized users, the security event log, and
// per-user failed-attempt counters.
type Manager struct {
	mu              sync.RWMutex
	authorizedUsers map[string][]string // vault -> users
	securityEvents  []SecurityEvent
	failedAttempts  map[string]uint32 // user -> failed attempts
	logger          *logging.ComponentLogger
}

// New creates an empty Manager.
func New(logger *logging.ComponentLogger) *Manager {
	if logger == nil {
		logger = logging.New("access")
	}
	return &Manager{
		authorizedUsers: make(map[string][]string),
		failedAttempts:  make(map[string]uint32),
		logger:          logger,
	}
}

// AuthorizeUser allows user to access vault. List semantics match
// access_control.rs: authorizing the same user twice appends a duplicate
// entry rather than deduplicating.
func (m *Manager) AuthorizeUser(vault, user string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authorizedUsers[vault] = append(m.authorizedUsers[vault], user)
	m.logger.Info().Str("user", user).Str("vault", vault).Msg("user added to vault")
}

// IsAuthorized reports whether user may access vault.
func (m *Manager) IsAuthorized(vault, user string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.authorizedUsers[vault] {
		if u == user {
			return true
		}
	}
	return false
}

// RecordUnauthorizedAttempt logs a High-severity event for an access
// attempt against a vault the user isn't authorized for, and increments
// that user's failed-attempt counter. At 3 or more attempts an elevated
// log line is emitted; IsUserBlocked reports true at 5 or more.
func (m *Manager) RecordUnauthorizedAttempt(user, vault, details string) {
	event := SecurityEvent{
		EventType: EventUnauthorizedAccessAttempt,
		User:      user,
		Vault:     vault,
		Timestamp: time.Now().UTC(),
		Details:   details,
		Severity:  SeverityHigh,
	}

	m.mu.Lock()
	m.securityEvents = append(m.securityEvents, event)
	m.failedAttempts[user]++
	count := m.failedAttempts[user]
	m.mu.Unlock()

	m.logger.Warn().Str("user", user).Str("vault", vault).Str("details", details).Msg("unauthorized access attempt")

	if count >= 3 {
		m.logger.Error().Str("user", user).Uint32("attempts", count).Msg("repeated failed access attempts, suspicious activity")
	}
}

// RecordSuspiciousWithdrawal logs a withdrawal that looks unusual relative
// to the user's average. Severity is Critical when amount exceeds 10x the
// average, Medium otherwise.
func (m *Manager) RecordSuspiciousWithdrawal(user, vault string, amount, averageWithdrawal uint64) {
	severity := SeverityMedium
	if amount > averageWithdrawal*10 {
		severity = SeverityCritical
	}

	event := SecurityEvent{
		EventType: EventSuspiciousWithdrawal,
		User:      user,
		Vault:     vault,
		Timestamp: time.Now().UTC(),
		Details:   formatAmountDetails(amount, averageWithdrawal),
		Severity:  severity,
	}

	m.mu.Lock()
	m.securityEvents = append(m.securityEvents, event)
	m.mu.Unlock()

	m.logger.Warn().Str("user", user).Str("vault", vault).Uint64("amount", amount).Msg("unusual withdrawal")
}

// RecordRapidTransactions logs a burst of transactions inside a short
// window. Always High severity, matching access_control.rs.
func (m *Manager) RecordRapidTransactions(user, vault string, transactionCount uint32, timeWindowSecs uint64) {
	event := SecurityEvent{
		EventType: EventRapidTransactionSequence,
		User:      user,
		Vault:     vault,
		Timestamp: time.Now().UTC(),
		Details:   formatRapidDetails(transactionCount, timeWindowSecs),
		Severity:  SeverityHigh,
	}

	m.mu.Lock()
	m.securityEvents = append(m.securityEvents, event)
	m.mu.Unlock()

	m.logger.Warn().Str("user", user).Str("vault", vault).Uint32("count", transactionCount).Msg("rapid transaction sequence detected")
}

// GetSecurityEvents returns a snapshot copy of every recorded event.
func (m *Manager) GetSecurityEvents() []SecurityEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SecurityEvent, len(m.securityEvents))
	copy(out, m.securityEvents)
	return out
}

// GetAlertsBySeverity returns a snapshot copy of events at or above
// minSeverity.
func (m *Manager) GetAlertsBySeverity(minSeverity Severity) []SecurityEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []SecurityEvent
	for _, e := range m.securityEvents {
		if e.Severity >= minSeverity {
			out = append(out, e)
		}
	}
	return out
}

// ClearFailedAttempts resets user's failed-attempt counter, matching the
// "after successful action" convention from access_control.rs.
func (m *Manager) ClearFailedAttempts(user string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.failedAttempts, user)
}

// GetFailedAttempts returns user's current failed-attempt count.
func (m *Manager) GetFailedAttempts(user string) uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.failedAttempts[user]
}

// IsUserBlocked reports whether user has 5 or more failed attempts.
func (m *Manager) IsUserBlocked(user string) bool {
	return m.GetFailedAttempts(user) >= 5
}

func formatAmountDetails(amount, average uint64) string {
	return fmt.Sprintf("withdrawal %d (usually around %d)", amount, average)
}

func formatRapidDetails(count uint32, windowSecs uint64) string {
	return fmt.Sprintf("%d transactions in %d seconds", count, windowSecs)
}
