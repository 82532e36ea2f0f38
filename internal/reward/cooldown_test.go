package reward

import (
	"testing"
	"time"
)

func TestCooldownWindow(t *testing.T) {
	clock := newFakeClock()
	c := NewCooldown(time.Minute, clock.Now)

	until, ok := c.Acquire()
	if !ok {
		t.Fatal("first acquire should succeed")
	}
	if want := clock.Now().Add(time.Minute); !until.Equal(want) {
		t.Fatalf("expected window end %v, got %v", want, until)
	}

	clock.Advance(59 * time.Second)
	if _, ok := c.Acquire(); ok {
		t.Fatal("acquire inside the window should fail")
	}
	if _, active := c.Active(); !active {
		t.Fatal("window should be active")
	}

	clock.Advance(time.Second)
	if _, active := c.Active(); active {
		t.Fatal("window should have ended")
	}
	if _, ok := c.Acquire(); !ok {
		t.Fatal("acquire after the window should succeed")
	}
}

func TestCooldownDefaults(t *testing.T) {
	c := NewCooldown(0, nil)
	if c.Window() != DefaultCooldown {
		t.Fatalf("expected default window, got %v", c.Window())
	}
}
