package ratelimit

import (
	"testing"
	"time"

	"github.com/ssd-technologies/photoshare/internal/clock"
)

func TestLimiter_AllowsUpToBurst(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	l := New(5, clk)
	for i := 0; i < 5; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("6th request should be denied")
	}
	if !l.Allow("5.6.7.8") {
		t.Fatal("other key should have its own bucket")
	}
}

func TestLimiter_Refills(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	l := New(2, clk)
	l.Allow("k")
	l.Allow("k")
	if l.Allow("k") {
		t.Fatal("3rd should be denied")
	}
	clk.Advance(31 * time.Second)
	if !l.Allow("k") {
		t.Fatal("one token should have refilled after 31s")
	}
	if l.Allow("k") {
		t.Fatal("only one token should have refilled")
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	clk := clock.NewFake(time.Unix(1000, 0))
	l := New(2, clk)
	l.Allow("old")
	clk.Advance(11 * time.Minute)
	l.Allow("new")

	if n := l.Cleanup(); n != 1 {
		t.Errorf("Cleanup = %d, want 1", n)
	}
	if l.Len() != 1 {
		t.Errorf("Len = %d, want 1", l.Len())
	}
}
