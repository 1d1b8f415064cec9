package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2025, 1, 6, 7, 0, 0, 0, time.UTC)
	c := NewFake(start)
	ch := c.After(30 * time.Minute)

	c.Advance(29 * time.Minute)
	select {
	case <-ch:
		t.Fatalf("fired early")
	default:
	}

	c.Advance(time.Minute)
	select {
	case got := <-ch:
		if !got.Equal(start.Add(30 * time.Minute)) {
			t.Fatalf("fired at %v, want %v", got, start.Add(30*time.Minute))
		}
	default:
		t.Fatalf("did not fire")
	}
	if n := c.Pending(); n != 0 {
		t.Fatalf("pending = %d, want 0", n)
	}
}

func TestFakeTickerReschedules(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	tk := c.NewTicker(5 * time.Minute)
	defer tk.Stop()

	for i := 0; i < 3; i++ {
		c.Advance(5 * time.Minute)
		select {
		case <-tk.C:
		default:
			t.Fatalf("tick %d missing", i)
		}
	}

	tk.Stop()
	c.Advance(time.Hour)
	select {
	case <-tk.C:
		t.Fatalf("stopped ticker fired")
	default:
	}
}
