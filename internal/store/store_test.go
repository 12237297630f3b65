package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestWhereBuilder(t *testing.T) {
	var w where
	if w.String() != "" {
		t.Fatalf("empty builder should render nothing, got %q", w.String())
	}
	w.add("name ILIKE ?", "%a%")
	w.addRaw("enabled")
	w.add("(id = ? OR alt = ?)", "x")
	limit := w.next(10)

	if got, want := w.String(), " WHERE name ILIKE $1 AND enabled AND (id = $2 OR alt = $2)"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
	if limit != "$3" || len(w.args) != 3 {
		t.Fatalf("unexpected trailing placeholder %s with args %v", limit, w.args)
	}
}

func TestWrapErr(t *testing.T) {
	if err := wrapErr("Get", pgx.ErrNoRows); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	dup := fmt.Errorf("exec: %w", &pgconn.PgError{Code: uniqueViolation})
	if err := wrapErr("Create", dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	other := errors.New("boom")
	if err := wrapErr("Op", other); !errors.Is(err, other) || errors.Is(err, ErrNotFound) {
		t.Fatalf("unexpected mapping: %v", err)
	}
}

func TestFilterHashDistinguishesFilters(t *testing.T) {
	yes, no := true, false
	a := filterHash(ChannelFilter{HasEPG: &yes})
	b := filterHash(ChannelFilter{HasEPG: &no})
	c := filterHash(ChannelFilter{})
	if a == b || a == c || b == c {
		t.Fatalf("expected distinct hashes, got %s %s %s", a, b, c)
	}
	if filterHash(ChannelFilter{Limit: 0}) != filterHash(ChannelFilter{Limit: DefaultLimit}) {
		t.Fatal("default limit should hash like an explicit default")
	}
}
