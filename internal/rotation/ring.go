package rotation

import (
	"errors"
	"slices"
)

var (
	ErrUnknownRole         = errors.New("unknown role")
	ErrEmptyRoster         = errors.New("roster is empty")
	ErrInsufficientMembers = errors.New("need at least 2 members")
	ErrDuplicateMember     = errors.New("member already in roster")
	ErrMemberNotFound      = errors.New("member not in roster")
	ErrPositionOutOfRange  = errors.New("position out of range")
)

// MemberID identifies a chat user. The ring treats it as opaque.
type MemberID int64

// State is one role's ring: an ordered, duplicate-free roster and the
// index of whoever currently holds the turn.
type State struct {
	Members []MemberID `json:"members"`
	Index   int        `json:"index"`
}

// NormalizeIndex maps i into [0,count), or 0 when count is 0.
func NormalizeIndex(i, count int) int {
	if count <= 0 {
		return 0
	}
	i %= count
	if i < 0 {
		i += count
	}
	return i
}

func (s *State) normalize() { s.Index = NormalizeIndex(s.Index, len(s.Members)) }

// Normalized returns a copy that is safe to persist.
func (s State) Normalized() State {
	cp := State{Members: slices.Clone(s.Members), Index: s.Index}
	cp.normalize()
	return cp
}

func (s State) Len() int { return len(s.Members) }

func (s State) Current() (MemberID, bool) {
	if len(s.Members) == 0 {
		return 0, false
	}
	return s.Members[NormalizeIndex(s.Index, len(s.Members))], true
}

// Next is whoever holds the turn after Current.
func (s State) Next() (MemberID, bool) {
	if len(s.Members) == 0 {
		return 0, false
	}
	return s.Members[NormalizeIndex(s.Index+1, len(s.Members))], true
}

// Position is the 1-based position of id, or 0.
func (s State) Position(id MemberID) int {
	return slices.Index(s.Members, id) + 1
}

func (s *State) Advance() {
	if len(s.Members) == 0 {
		s.Index = 0
		return
	}
	s.Index++
	s.normalize()
}

// SwapCurrentWithNext exchanges the current holder with the next one.
// The index stays put, so the former next member becomes current.
func (s *State) SwapCurrentWithNext() error {
	n := len(s.Members)
	if n < 2 {
		return ErrInsufficientMembers
	}
	i := NormalizeIndex(s.Index, n)
	j := NormalizeIndex(i+1, n)
	s.Members[i], s.Members[j] = s.Members[j], s.Members[i]
	s.Index = i
	return nil
}

func (s *State) Add(id MemberID) error {
	if slices.Contains(s.Members, id) {
		return ErrDuplicateMember
	}
	s.Members = append(s.Members, id)
	s.normalize()
	return nil
}

func (s *State) Remove(id MemberID) error {
	i := slices.Index(s.Members, id)
	if i < 0 {
		return ErrMemberNotFound
	}
	s.Members = slices.Delete(s.Members, i, i+1)
	if s.Index >= len(s.Members) {
		s.Index = 0
	}
	s.normalize()
	return nil
}

// SetCurrentByPosition makes the member at 1-based pos current.
func (s *State) SetCurrentByPosition(pos int) error {
	if len(s.Members) == 0 {
		return ErrEmptyRoster
	}
	if pos < 1 || pos > len(s.Members) {
		return ErrPositionOutOfRange
	}
	s.Index = pos - 1
	return nil
}
