package browser

import (
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

func TestJitterPointStaysInsideCentralBand(t *testing.T) {
	// quad corners: (100,200) (180,200) (180,240) (100,240)
	q := proto.DOMQuad{100, 200, 180, 200, 180, 240, 100, 240}
	for i := 0; i < 500; i++ {
		p := jitterPoint(q)
		if p.X < 116 || p.X > 164 {
			t.Fatalf("x %v outside central band [116, 164]", p.X)
		}
		if p.Y < 208 || p.Y > 232 {
			t.Fatalf("y %v outside central band [208, 232]", p.Y)
		}
	}
}

func TestRandomPauseRespectsBounds(t *testing.T) {
	start := time.Now()
	if err := randomPause(context.Background(), 20*time.Millisecond, 60*time.Millisecond); err != nil {
		t.Fatalf("randomPause: %v", err)
	}
	if got := time.Since(start); got < 20*time.Millisecond {
		t.Fatalf("pause returned after %v, want at least 20ms", got)
	}
}

func TestRandomPauseStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := randomPause(ctx, time.Minute, time.Minute); err == nil {
		t.Fatal("expected context error")
	}
}

func TestMoveStepsRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		if n := moveSteps(); n < 8 || n > 19 {
			t.Fatalf("steps %d outside [8, 19]", n)
		}
	}
}
