package rotation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	alice MemberID = 101
	bob   MemberID = 102
	carol MemberID = 103
)

func TestAdvanceThenSwap(t *testing.T) {
	st := State{Members: []MemberID{alice, bob, carol}}

	st.Advance()
	require.Equal(t, 1, st.Index)
	cur, _ := st.Current()
	require.Equal(t, bob, cur)

	require.NoError(t, st.SwapCurrentWithNext())
	assert.Equal(t, []MemberID{alice, carol, bob}, st.Members)
	assert.Equal(t, 1, st.Index)
	cur, _ = st.Current()
	assert.Equal(t, carol, cur)
}

func TestSwapWrapsAtEnd(t *testing.T) {
	st := State{Members: []MemberID{alice, bob, carol}, Index: 2}
	require.NoError(t, st.SwapCurrentWithNext())
	assert.Equal(t, []MemberID{carol, bob, alice}, st.Members)
	assert.Equal(t, 2, st.Index)
}

func TestSwapNeedsTwo(t *testing.T) {
	for _, members := range [][]MemberID{nil, {alice}} {
		st := State{Members: members}
		if err := st.SwapCurrentWithNext(); !errors.Is(err, ErrInsufficientMembers) {
			t.Fatalf("swap with %d members: err = %v, want ErrInsufficientMembers", len(members), err)
		}
	}
}

func TestAdvanceEmptyIsNoop(t *testing.T) {
	var st State
	st.Advance()
	if st.Index != 0 || st.Len() != 0 {
		t.Fatalf("empty advance changed state: %+v", st)
	}
	if _, ok := st.Current(); ok {
		t.Fatalf("Current() on empty ring reported a member")
	}
}

func TestAddRemove(t *testing.T) {
	var st State
	require.NoError(t, st.Add(alice))
	require.NoError(t, st.Add(bob))
	require.ErrorIs(t, st.Add(alice), ErrDuplicateMember)
	require.ErrorIs(t, st.Remove(carol), ErrMemberNotFound)

	require.NoError(t, st.Add(carol))
	st.Index = 2
	require.NoError(t, st.Remove(carol))
	assert.Equal(t, 0, st.Index, "index past the end resets to 0")
	assert.Equal(t, []MemberID{alice, bob}, st.Members)
}

func TestSetCurrentByPosition(t *testing.T) {
	var empty State
	require.ErrorIs(t, empty.SetCurrentByPosition(1), ErrEmptyRoster)

	st := State{Members: []MemberID{alice, bob, carol}}
	require.ErrorIs(t, st.SetCurrentByPosition(0), ErrPositionOutOfRange)
	require.ErrorIs(t, st.SetCurrentByPosition(4), ErrPositionOutOfRange)
	require.NoError(t, st.SetCurrentByPosition(3))
	assert.Equal(t, 2, st.Index)
	next, _ := st.Next()
	assert.Equal(t, alice, next)
}

func TestNormalizeIndex(t *testing.T) {
	for count := 0; count <= 6; count++ {
		for i := -20; i <= 20; i++ {
			got := NormalizeIndex(i, count)
			if count == 0 {
				if got != 0 {
					t.Fatalf("NormalizeIndex(%d, 0) = %d, want 0", i, got)
				}
				continue
			}
			if got < 0 || got >= count {
				t.Fatalf("NormalizeIndex(%d, %d) = %d, out of range", i, count, got)
			}
			if (got-i)%count != 0 {
				t.Fatalf("NormalizeIndex(%d, %d) = %d, not congruent", i, count, got)
			}
		}
	}
}

func TestParseRole(t *testing.T) {
	for in, want := range map[string]Role{"dm": RoleDM, "DM": RoleDM, "food": RoleFood, "Cook": RoleFood} {
		got, err := ParseRole(in)
		require.NoError(t, err)
		require.Equal(t, want, got, in)
	}
	_, err := ParseRole("bard")
	require.ErrorIs(t, err, ErrUnknownRole)

	all, err := ParseRoles([]string{"all"})
	require.NoError(t, err)
	require.Equal(t, []Role{RoleDM, RoleFood}, all)
}

type memStore struct {
	states map[Role]State
	saves  int
}

func (m *memStore) GetRotation(_ context.Context, role Role) (State, error) {
	st := m.states[role]
	return State{Members: append([]MemberID(nil), st.Members...), Index: st.Index}, nil
}

func (m *memStore) SaveRotation(_ context.Context, role Role, st State) error {
	m.saves++
	m.states[role] = st
	return nil
}

func TestServiceNormalizesBeforeSave(t *testing.T) {
	ctx := context.Background()
	store := &memStore{states: map[Role]State{RoleDM: {Members: []MemberID{alice, bob}, Index: 7}}}
	svc := NewService(store)

	st, err := svc.Get(ctx, RoleDM)
	require.NoError(t, err)
	require.Equal(t, 1, st.Index)

	st, err = svc.Advance(ctx, RoleDM)
	require.NoError(t, err)
	require.Equal(t, 0, st.Index)
	require.Equal(t, 0, store.states[RoleDM].Index)

	_, err = svc.Swap(ctx, RoleFood)
	require.ErrorIs(t, err, ErrInsufficientMembers)
	_, err = svc.Advance(ctx, RoleFood)
	require.NoError(t, err)
	require.Equal(t, 1, store.saves, "failed or empty operations must not write")
}
