package rotation

import (
	"context"
	"fmt"
	"time"
)

// Store persists one State per role. Reads of a role that was never
// written return an empty State.
type Store interface {
	GetRotation(ctx context.Context, role Role) (State, error)
	SaveRotation(ctx context.Context, role Role, st State) error
}

// Member is what the bot knows about a chat user.
type Member struct {
	ID       MemberID
	Name     string
	Username string
	SeenAt   time.Time
}

// Label prefers the display name, then @username.
func (m Member) Label() string {
	if m.Name != "" {
		return m.Name
	}
	if m.Username != "" {
		return "@" + m.Username
	}
	return fmt.Sprintf("user %d", int64(m.ID))
}

// Directory resolves member ids to display names.
type Directory interface {
	RememberMember(ctx context.Context, m Member) error
	LookupMember(ctx context.Context, id MemberID) (Member, bool, error)
}

// Service applies ring operations against the store. Every call re-reads
// the role's state, so concurrent writers resolve as last-writer-wins.
type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

func (s *Service) Get(ctx context.Context, role Role) (State, error) {
	if !role.Valid() {
		return State{}, ErrUnknownRole
	}
	st, err := s.store.GetRotation(ctx, role)
	if err != nil {
		return State{}, fmt.Errorf("load %s rotation: %w", role.Key(), err)
	}
	return st.Normalized(), nil
}

// Mutate loads role, applies fn and saves the normalized result.
// Nothing is written when fn fails.
func (s *Service) Mutate(ctx context.Context, role Role, fn func(st *State) error) (State, error) {
	st, err := s.Get(ctx, role)
	if err != nil {
		return State{}, err
	}
	if err := fn(&st); err != nil {
		return st, err
	}
	st = st.Normalized()
	if err := s.store.SaveRotation(ctx, role, st); err != nil {
		return State{}, fmt.Errorf("save %s rotation: %w", role.Key(), err)
	}
	return st, nil
}

// Advance moves the turn forward. An empty roster is left untouched.
func (s *Service) Advance(ctx context.Context, role Role) (State, error) {
	st, err := s.Get(ctx, role)
	if err != nil {
		return State{}, err
	}
	if st.Len() == 0 {
		return st, nil
	}
	return s.Mutate(ctx, role, func(st *State) error {
		st.Advance()
		return nil
	})
}

func (s *Service) Swap(ctx context.Context, role Role) (State, error) {
	return s.Mutate(ctx, role, func(st *State) error { return st.SwapCurrentWithNext() })
}

func (s *Service) Add(ctx context.Context, role Role, id MemberID) (State, error) {
	return s.Mutate(ctx, role, func(st *State) error { return st.Add(id) })
}

func (s *Service) Remove(ctx context.Context, role Role, id MemberID) (State, error) {
	return s.Mutate(ctx, role, func(st *State) error { return st.Remove(id) })
}

func (s *Service) SetPosition(ctx context.Context, role Role, pos int) (State, error) {
	return s.Mutate(ctx, role, func(st *State) error { return st.SetCurrentByPosition(pos) })
}
