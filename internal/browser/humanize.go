package browser

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// randomPause sleeps for a uniform duration in [lo, hi], or until ctx ends.
func randomPause(ctx context.Context, lo, hi time.Duration) error {
	d := lo
	if hi > lo {
		d = lo + time.Duration(rand.Int63n(int64(hi-lo)+1))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// jitterPoint picks a random point inside the central band of an element
// quad, so repeated clicks never land on the exact same pixel.
func jitterPoint(q proto.DOMQuad) proto.Point {
	x, y := q[0], q[1]
	w, h := q[2]-q[0], q[5]-q[1]
	return proto.Point{
		X: x + w*0.2 + w*0.6*rand.Float64(),
		Y: y + h*0.2 + h*0.6*rand.Float64(),
	}
}

// moveSteps returns a randomized step count for linear mouse travel.
func moveSteps() int { return 8 + rand.Intn(12) }
