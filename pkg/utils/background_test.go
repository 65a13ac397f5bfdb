package utils

import (
	"context"
	"sync/atomic"
	"testing"
)

func TestGroup_WaitsAndRecovers(t *testing.T) {
	g := NewGroup(context.Background(), nil)

	var ran atomic.Int32
	g.Go("ok", func(context.Context) { ran.Add(1) })
	g.Go("boom", func(context.Context) { panic("boom") })
	g.Go("ok2", func(context.Context) { ran.Add(1) })
	g.Wait()

	if ran.Load() != 2 {
		t.Fatalf("expected 2 tasks to run, got %d", ran.Load())
	}
}
