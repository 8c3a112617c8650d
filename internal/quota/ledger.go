package quota

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// Snapshot is the persisted form of the ledger.
type Snapshot struct {
	Usage     map[string]int64
	ResetDate string
}

type Persister interface {
	Load() (Snapshot, error)
	Save(Snapshot) error
}

// Ledger tracks daily token usage per credential identifier and picks the
// credential for the next model call.
type Ledger struct {
	mu        sync.Mutex
	usage     map[string]int64
	resetDate string
	persister Persister
	logger    *zap.Logger
}

// New loads the ledger from p. Unreadable state is logged and replaced by
// zero usage; ids are registered with zero usage when not yet known.
func New(p Persister, ids []string, logger *zap.Logger) *Ledger {
	l := &Ledger{
		usage:     make(map[string]int64),
		persister: p,
		logger:    logger,
	}

	snap, err := p.Load()
	if err != nil {
		logger.Warn("Failed to load quota ledger, starting from zero", zap.Error(err))
	} else {
		for id, used := range snap.Usage {
			l.usage[id] = used
		}
		l.resetDate = snap.ResetDate
	}

	for _, id := range ids {
		if _, ok := l.usage[id]; !ok {
			l.usage[id] = 0
		}
	}
	return l
}

// Select returns the candidate with the lowest recorded usage among those
// not blacklisted and still able to afford estimatedCost+safetyMargin within
// dailyBudget. Ties go to the earliest candidate.
func (l *Ledger) Select(candidates []string, blacklist map[string]bool, estimatedCost, safetyMargin, dailyBudget int64) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	best := ""
	var bestUsage int64
	found := false
	for _, id := range candidates {
		if blacklist[id] {
			continue
		}
		used := l.usage[id]
		if used+estimatedCost+safetyMargin > dailyBudget {
			continue
		}
		if !found || used < bestUsage {
			best, bestUsage, found = id, used, true
		}
	}
	return best, found
}

// RecordUsage adds tokens to id and persists right away. A persistence
// failure is logged; the in-memory total stays authoritative.
func (l *Ledger) RecordUsage(id string, tokens int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.usage[id] += tokens
	l.persistLocked()
}

// MaybeResetForNewDay zeroes every credential when today's date differs
// from the last reset date. It reports whether a reset happened.
func (l *Ledger) MaybeResetForNewDay(today time.Time) bool {
	date := today.Format(dateLayout)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.resetDate == date {
		return false
	}
	for id := range l.usage {
		l.usage[id] = 0
	}
	l.resetDate = date
	l.persistLocked()
	l.logger.Info("Daily quota usage reset", zap.String("date", date))
	return true
}

func (l *Ledger) Usage(id string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usage[id]
}

func (l *Ledger) ResetDate() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resetDate
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// IDs returns the known credential identifiers in sorted order.
func (l *Ledger) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make([]string, 0, len(l.usage))
	for id := range l.usage {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *Ledger) snapshotLocked() Snapshot {
	usage := make(map[string]int64, len(l.usage))
	for id, used := range l.usage {
		usage[id] = used
	}
	return Snapshot{Usage: usage, ResetDate: l.resetDate}
}

func (l *Ledger) persistLocked() {
	if err := l.persister.Save(l.snapshotLocked()); err != nil {
		l.logger.Error("Failed to persist quota ledger", zap.Error(err))
	}
}
