package cache

import (
	"errors"
	"fmt"
	"testing"

	"github.com/redis/go-redis/v9"
)

func TestKey(t *testing.T) {
	if got := Key("runs", "abc"); got != "epgsync:runs:abc" {
		t.Fatalf("Key = %q", got)
	}
	if ReconcileQueue != "epgsync:jobs:reconcile" {
		t.Fatalf("unexpected queue key %q", ReconcileQueue)
	}
}

func TestIsMiss(t *testing.T) {
	if !IsMiss(fmt.Errorf("wrapped: %w", redis.Nil)) {
		t.Fatal("wrapped redis.Nil should be a miss")
	}
	if IsMiss(errors.New("boom")) || IsMiss(nil) {
		t.Fatal("unexpected miss")
	}
}
