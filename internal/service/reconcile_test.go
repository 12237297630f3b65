package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voyagen/epgsync/internal/models"
	"github.com/voyagen/epgsync/internal/reconcile"
)

func TestRunAppliesDecisions(t *testing.T) {
	ms := seedStore()
	rec, _ := newReconciler(t, ms)

	rep, err := rec.Run(context.Background(), autoScan())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	want := reconcile.Stats{Total: 5, Updated: 3, Matched: 2, Locked: 1, Excluded: 1}
	if rep.Stats != want {
		t.Fatalf("stats = %+v, want %+v", rep.Stats, want)
	}
	if rep.RunID == "" || rep.Mode != ModeAutoScan || rep.FinishedAt.Before(rep.StartedAt) {
		t.Fatalf("unexpected report header: %+v", rep)
	}

	a, _ := ms.Channel("a")
	if models.StrVal(a.TvgID) != "espn.us" || models.StrVal(a.TvgName) != "ESPN" || models.StrVal(a.Logo) != "http://logo/espn.png" {
		t.Fatalf("fuzzy match not written: %+v", a)
	}
	b, _ := ms.Channel("b")
	if b.HasEPG() {
		t.Fatalf("excluded channel should have been cleared: %+v", b)
	}
	c, _ := ms.Channel("c")
	if models.StrVal(c.TvgID) != "manual" {
		t.Fatalf("protected channel modified: %+v", c)
	}
	e, _ := ms.Channel("e")
	if models.StrVal(e.TvgID) != "dazn1.es" {
		t.Fatalf("pattern match not written: %+v", e)
	}
	if ms.EPGWrites != 3 {
		t.Fatalf("expected 3 writes, got %d", ms.EPGWrites)
	}

	again, err := rec.Run(context.Background(), autoScan())
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if again.Updated != 0 || ms.EPGWrites != 3 {
		t.Fatalf("second pass should be a no-op, got %+v with %d writes", again.Stats, ms.EPGWrites)
	}
}

func TestRunDryRun(t *testing.T) {
	ms := seedStore()
	rec, _ := newReconciler(t, ms)
	req := autoScan()
	req.DryRun = true
	req.IncludeDecisions = true

	rep, err := rec.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if rep.Updated != 3 || ms.EPGWrites != 0 {
		t.Fatalf("dry run should report without writing: %+v, writes=%d", rep.Stats, ms.EPGWrites)
	}
	if len(rep.Decisions) != 5 || rep.Decisions[0].ChannelID != "a" {
		t.Fatalf("expected ordered decisions, got %+v", rep.Decisions)
	}
}

func TestRunAbortsWithoutCatalog(t *testing.T) {
	ms := seedStore()
	ms.CatalogErr = errors.New("connection reset")
	rec, _ := newReconciler(t, ms)
	if _, err := rec.Run(context.Background(), autoScan()); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
	if ms.EPGWrites != 0 {
		t.Fatalf("aborted pass wrote %d channels", ms.EPGWrites)
	}
}

func TestRunAbortsOnEmptyCatalog(t *testing.T) {
	ms := seedStore()
	sources, _ := ms.ListEPGSources(context.Background())
	for _, s := range sources {
		if err := ms.UpdateEPGSource(context.Background(), s.ID, storeUpdateEnabled(false)); err != nil {
			t.Fatal(err)
		}
	}
	rec, _ := newReconciler(t, ms)
	if _, err := rec.Run(context.Background(), RunRequest{}); !errors.Is(err, ErrCatalogUnavailable) {
		t.Fatalf("expected ErrCatalogUnavailable, got %v", err)
	}
}

func TestRunCountsFailedWrites(t *testing.T) {
	ms := seedStore()
	ms.SetEPGHook = func(_ context.Context, id string) error {
		if id == "a" {
			return errors.New("write rejected")
		}
		return nil
	}
	rec, _ := newReconciler(t, ms)
	rep, err := rec.Run(context.Background(), autoScan())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if rep.Errors != 1 || rep.Updated != 2 || rep.Matched != 1 {
		t.Fatalf("unexpected stats after failure: %+v", rep.Stats)
	}
	if len(rep.Failed) != 1 || rep.Failed[0] != "a" {
		t.Fatalf("unexpected failed list: %v", rep.Failed)
	}
	if e, _ := ms.Channel("e"); models.StrVal(e.TvgID) != "dazn1.es" {
		t.Fatalf("pass should continue after a failed write: %+v", e)
	}
}

func TestRunUpdateTimeout(t *testing.T) {
	ms := seedStore()
	ms.SetEPGHook = func(ctx context.Context, id string) error {
		if id != "e" {
			return nil
		}
		<-ctx.Done()
		return ctx.Err()
	}
	rec, _ := newReconciler(t, ms)
	rec.updateTimeout = 20 * time.Millisecond

	done := make(chan *Report, 1)
	go func() {
		rep, err := rec.Run(context.Background(), autoScan())
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
		done <- rep
	}()
	select {
	case rep := <-done:
		if rep != nil && (rep.Errors != 1 || rep.Failed[0] != "e") {
			t.Fatalf("expected the blocked write to time out: %+v", rep)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("pass blocked on a hung write")
	}
}

func TestRunRejectsConcurrentPass(t *testing.T) {
	ms := seedStore()
	rec, lock := newReconciler(t, ms)
	release, err := lock.TryAcquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer release()
	if _, err := rec.Run(context.Background(), autoScan()); !errors.Is(err, ErrPassRunning) {
		t.Fatalf("expected ErrPassRunning, got %v", err)
	}
}

func TestRunRejectsInvalidThreshold(t *testing.T) {
	rec, _ := newReconciler(t, seedStore())
	req := RunRequest{Options: reconcile.Options{AutoScan: true, Threshold: 2}}
	var verr models.ValidationError
	if _, err := rec.Run(context.Background(), req); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRunReportsRuleErrors(t *testing.T) {
	ms := seedStore()
	ms.AddMappings(models.PatternMapping{Kind: models.MappingExclude, Pattern: "(", Regex: true})
	rec, _ := newReconciler(t, ms)
	rep, err := rec.Run(context.Background(), autoScan())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(rep.RuleErrors) != 1 || rep.RuleErrors[0].Pattern != "!(" {
		t.Fatalf("expected one rule error, got %+v", rep.RuleErrors)
	}
	if rep.Matched != 2 {
		t.Fatalf("pass should continue past the bad rule: %+v", rep.Stats)
	}
}

func TestRunSkipsChannelProtectedMidPass(t *testing.T) {
	ms := seedStore()
	ms.SetEPGHook = func(ctx context.Context, id string) error {
		if id == "a" {
			return ms.SetChannelProtection(ctx, "a", true)
		}
		return nil
	}
	rec, _ := newReconciler(t, ms)
	req := autoScan()
	req.IncludeDecisions = true
	rep, err := rec.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	a, _ := ms.Channel("a")
	if !a.EPGUpdateProtected || a.TvgID != nil {
		t.Fatalf("protected channel written by pass: protected=%v tvg_id=%q", a.EPGUpdateProtected, models.StrVal(a.TvgID))
	}
	if rep.Errors != 0 || len(rep.Failed) != 0 {
		t.Fatalf("protection is not a write failure: %+v failed=%v", rep.Stats, rep.Failed)
	}
	if rep.Locked != 2 || rep.Updated != 2 || rep.Matched != 1 {
		t.Fatalf("unexpected stats: %+v", rep.Stats)
	}
	for _, d := range rep.Decisions {
		if d.ChannelID == "a" && (d.Reason != reconcile.ReasonProtected || d.Changed) {
			t.Fatalf("decision for a not rewritten as locked: %+v", d)
		}
	}
	if e, _ := ms.Channel("e"); models.StrVal(e.TvgID) != "dazn1.es" {
		t.Fatalf("other channels should still be written: %+v", e)
	}
}
