// Package history keeps the ordered interaction log replayed to the model
// each turn and decides which entries fit in the context window.
//
// The log is append-only. Entries are never edited, reordered or truncated;
// Render selects whole entries by recency while pinned entries (the system
// preamble and the task) are always kept.
package history

import (
	"encoding/json"
	"os"
	"time"

	"github.com/m4xw311/superagent/errors"
)

type Role string

const (
	RoleSystem      Role = "system"
	RoleTask        Role = "task"
	RoleThought     Role = "thought"
	RoleAction      Role = "action"
	RoleObservation Role = "observation"
)

// Entry is one immutable unit of the log.
type Entry struct {
	Seq       int       `json:"seq"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Pinned    bool      `json:"pinned,omitempty"`
	Cost      int       `json:"cost"`
}

// Manager is the context manager for one agent run. It is not safe for
// concurrent use; the agent loop owns it exclusively.
type Manager struct {
	entries   []Entry
	estimator Estimator
	now       func() time.Time
}

func New(estimator Estimator) *Manager {
	if estimator == nil {
		estimator = CharEstimator{}
	}
	return &Manager{estimator: estimator, now: time.Now}
}

// Append adds an entry to the end of the log and returns the stored copy.
func (m *Manager) Append(e Entry) Entry {
	e.Seq = len(m.entries) + 1
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	e.Cost = m.estimator.Estimate(e.Content)
	m.entries = append(m.entries, e)
	return e
}

// Pin appends an entry that is exempt from eviction.
func (m *Manager) Pin(e Entry) Entry {
	e.Pinned = true
	return m.Append(e)
}

// Render returns the entries that fit in budget, in chronological order.
// Pinned entries are always included and do not consume budget. Unpinned
// entries are taken newest-first until the next one would exceed the budget;
// that entry and everything older is dropped.
func (m *Manager) Render(budget int) []Entry {
	keep := make([]bool, len(m.entries))
	used := 0
	full := false
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.Pinned {
			keep[i] = true
			continue
		}
		if full {
			continue
		}
		if used+e.Cost > budget {
			full = true
			continue
		}
		used += e.Cost
		keep[i] = true
	}

	out := make([]Entry, 0, len(m.entries))
	for i, e := range m.entries {
		if keep[i] {
			out = append(out, e)
		}
	}
	return out
}

// Dropped reports how many entries Render(budget) would evict.
func (m *Manager) Dropped(budget int) int {
	return len(m.entries) - len(m.Render(budget))
}

// Entries returns a copy of the full log.
func (m *Manager) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Manager) Len() int { return len(m.entries) }

// Cost sums the estimated cost of the given entries.
func Cost(entries []Entry) int {
	total := 0
	for _, e := range entries {
		total += e.Cost
	}
	return total
}

type transcript struct {
	WrittenAt time.Time `json:"written_at"`
	Entries   []Entry   `json:"entries"`
}

// WriteTranscript dumps the full log as indented JSON for diagnostics.
func (m *Manager) WriteTranscript(path string) error {
	data, err := json.MarshalIndent(transcript{WrittenAt: m.now(), Entries: m.entries}, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to serialize transcript")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "failed to write transcript %s", path)
	}
	return nil
}
