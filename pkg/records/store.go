package records

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a consistent copy of the full application state, taken under
// one lock so the record list, bonus figures, and UI preferences can never
// tear against each other.
type Snapshot struct {
	Records      []MedicalRecord `json:"records"`
	Visible      []MedicalRecord `json:"visible"`
	PendingCount int             `json:"pendingCount"`
	BonusTotal   float64         `json:"bonusTotal"`
	BonusRate    float64         `json:"bonusRate"`
	Theme        Theme           `json:"theme"`
	Filter       Filter          `json:"filter"`
}

// Store is the single source of truth for application state. All methods
// are safe for concurrent use; mutations are atomic and observers are
// notified with a snapshot after the lock is released.
type Store struct {
	mu         sync.RWMutex
	records    []MedicalRecord // newest first
	bonusTotal float64
	bonusRate  float64
	theme      Theme
	filter     Filter
	listeners  []func(Snapshot)

	now   func() time.Time
	newID func() string
}

// NewStore creates a store with the given starting bonus rate and theme
// and an empty record list.
func NewStore(bonusRate float64, theme Theme) *Store {
	return &Store{
		bonusRate: bonusRate,
		theme:     theme,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// OnChange registers fn to be called with a snapshot after every mutation.
// Callbacks run synchronously on the mutating goroutine, outside the store
// lock, in registration order.
func (s *Store) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// AddRecord creates a record from in, filling defaults for missing fields,
// and prepends it to the list so the newest entry renders first. The input
// is never rejected.
func (s *Store) AddRecord(in Input) MedicalRecord {
	s.mu.Lock()
	rec := MedicalRecord{
		ID:           s.newID(),
		PatientName:  in.PatientName,
		PatientAge:   in.PatientAge,
		Department:   Department(in.Department),
		Observations: in.Observations,
		CreatedAt:    s.now(),
		Status:       StatusPending,
	}
	if rec.PatientName == "" {
		rec.PatientName = DefaultPatientName
	}
	if rec.PatientAge < 0 {
		rec.PatientAge = 0
	}
	if rec.Department == "" {
		rec.Department = DefaultDepartment
	}
	s.records = append([]MedicalRecord{rec}, s.records...)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
	return rec
}

// UploadAllPending marks every pending record uploaded, stamping each with
// the bonus rate in effect right now, and credits the total. It returns the
// number of records uploaded and the amount credited. With nothing pending
// it returns (0, 0) and changes nothing.
func (s *Store) UploadAllPending() (int, float64) {
	s.mu.Lock()
	count := 0
	for i := range s.records {
		if s.records[i].Status != StatusPending {
			continue
		}
		s.records[i].Status = StatusUploaded
		s.records[i].BonusEarned = s.bonusRate
		count++
	}
	credited := float64(count) * s.bonusRate
	s.bonusTotal += credited
	var snap Snapshot
	if count > 0 {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if count > 0 {
		s.notify(snap)
	}
	return count, credited
}

// ClearAll removes every record. Earned bonus, the bonus rate, the theme,
// and the active filter all survive.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.records = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// SetTheme switches the UI theme.
func (s *Store) SetTheme(t Theme) {
	s.mu.Lock()
	s.theme = t
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// SetBonusRate changes the per-record bonus rate. Already-uploaded records
// keep the rate they were stamped with.
func (s *Store) SetBonusRate(rate float64) {
	s.mu.Lock()
	s.bonusRate = rate
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// SetFilter replaces the active view filter.
func (s *Store) SetFilter(f Filter) {
	s.mu.Lock()
	s.filter = f
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

// Theme returns the current UI theme.
func (s *Store) Theme() Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

// BonusRate returns the current per-record bonus rate.
func (s *Store) BonusRate() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bonusRate
}

// BonusTotal returns the accumulated earned bonus.
func (s *Store) BonusTotal() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bonusTotal
}

// Records returns a copy of the full record list, newest first.
func (s *Store) Records() []MedicalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]MedicalRecord, len(s.records))
	copy(out, s.records)
	return out
}

// View returns the records matching the active filter, preserving list
// order. An empty filter returns everything.
func (s *Store) View() []MedicalRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visibleLocked()
}

// Snapshot returns a consistent copy of all state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) visibleLocked() []MedicalRecord {
	out := make([]MedicalRecord, 0, len(s.records))
	for _, r := range s.records {
		if s.filter.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) snapshotLocked() Snapshot {
	all := make([]MedicalRecord, len(s.records))
	copy(all, s.records)
	pending := 0
	for _, r := range s.records {
		if r.Status == StatusPending {
			pending++
		}
	}
	return Snapshot{
		Records:      all,
		Visible:      s.visibleLocked(),
		PendingCount: pending,
		BonusTotal:   s.bonusTotal,
		BonusRate:    s.bonusRate,
		Theme:        s.theme,
		Filter:       s.filter,
	}
}

func (s *Store) notify(snap Snapshot) {
	s.mu.RLock()
	fns := make([]func(Snapshot), len(s.listeners))
	copy(fns, s.listeners)
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(snap)
	}
}
