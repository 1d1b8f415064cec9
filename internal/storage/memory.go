package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"rotabot/internal/marker"
	"rotabot/internal/rotation"
	"rotabot/internal/schedule"
)

// Memory is a process-local Store. Each method holds one lock, which gives
// the same per-row atomicity as the sqlite driver.
type Memory struct {
	mu        sync.Mutex
	closed    bool
	overrides map[schedule.Date]schedule.Override
	markers   map[string]marker.Markers
	rotations map[rotation.Role]rotation.State
	members   map[rotation.MemberID]rotation.Member
}

func NewMemory() *Memory {
	return &Memory{
		overrides: map[schedule.Date]schedule.Override{},
		markers:   map[string]marker.Markers{},
		rotations: map[rotation.Role]rotation.State{},
		members:   map[rotation.MemberID]rotation.Member{},
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetOverride(_ context.Context, original schedule.Date) (schedule.Override, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return schedule.Override{}, false, ErrClosed
	}
	o, ok := m.overrides[original]
	return copyOverride(o), ok, nil
}

func (m *Memory) OverridesMovedTo(_ context.Context, target schedule.Date) ([]schedule.Override, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []schedule.Override
	for _, o := range m.overrides {
		if o.MovedTo != nil && o.MovedTo.Date == target {
			out = append(out, copyOverride(o))
		}
	}
	slices.SortFunc(out, func(a, b schedule.Override) int {
		return a.OriginalDate.DayNumber() - b.OriginalDate.DayNumber()
	})
	return out, nil
}

func (m *Memory) UpsertOverride(_ context.Context, o schedule.Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = time.Now()
	}
	m.overrides[o.OriginalDate] = copyOverride(o)
	return nil
}

func (m *Memory) DeleteOverride(_ context.Context, original schedule.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.overrides, original)
	return nil
}

func copyOverride(o schedule.Override) schedule.Override {
	if o.MovedTo != nil {
		dt := *o.MovedTo
		o.MovedTo = &dt
	}
	return o
}

func (m *Memory) GetMarkers(_ context.Context, occurrenceID string) (marker.Markers, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return marker.Markers{}, false, ErrClosed
	}
	mk, ok := m.markers[occurrenceID]
	return mk, ok, nil
}

func (m *Memory) SetAnnounced(_ context.Context, occurrenceID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	mk := m.markers[occurrenceID]
	mk.OccurrenceID = occurrenceID
	mk.Announced = true
	mk.AnnouncedAt = now
	m.markers[occurrenceID] = mk
	return nil
}

func (m *Memory) SetAdvanced(_ context.Context, occurrenceID string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	mk := m.markers[occurrenceID]
	mk.OccurrenceID = occurrenceID
	mk.Advanced = true
	mk.AdvancedAt = now
	m.markers[occurrenceID] = mk
	return nil
}

func (m *Memory) GetRotation(_ context.Context, role rotation.Role) (rotation.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return rotation.State{}, ErrClosed
	}
	st := m.rotations[role]
	return rotation.State{Members: slices.Clone(st.Members), Index: st.Index}, nil
}

func (m *Memory) SaveRotation(_ context.Context, role rotation.Role, st rotation.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.rotations[role] = st.Normalized()
	return nil
}

func (m *Memory) RememberMember(_ context.Context, mem rotation.Member) error {
	if mem.ID == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	prev := m.members[mem.ID]
	if mem.Name == "" {
		mem.Name = prev.Name
	}
	if mem.Username == "" {
		mem.Username = prev.Username
	}
	if mem.SeenAt.IsZero() {
		mem.SeenAt = time.Now()
	}
	m.members[mem.ID] = mem
	return nil
}

func (m *Memory) LookupMember(_ context.Context, id rotation.MemberID) (rotation.Member, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return rotation.Member{}, false, ErrClosed
	}
	mem, ok := m.members[id]
	return mem, ok, nil
}
