package poison

import (
	"errors"
	"testing"
)

func TestFlagCleanRoundTrip(t *testing.T) {
	var f Flag
	tok := f.Borrow()
	f.Done(tok, false)
	if f.Poisoned() {
		t.Fatal("clean section should not poison the flag")
	}
}

func TestFlagPoisonIsSticky(t *testing.T) {
	var f Flag
	tok := f.Borrow()
	f.Done(tok, true)
	if !f.Poisoned() {
		t.Fatal("failed section should poison the flag")
	}

	// A later clean section must not wash the flag.
	tok = f.Borrow()
	f.Done(tok, false)
	if !f.Poisoned() {
		t.Fatal("poison must be sticky across clean sections")
	}
}

func TestFlagClear(t *testing.T) {
	var f Flag
	f.Done(f.Borrow(), true)
	f.Clear()
	if f.Poisoned() {
		t.Fatal("clear should reset the flag")
	}
}

func TestBorrowDuringPoisonDoesNotRePoison(t *testing.T) {
	var f Flag
	f.Done(f.Borrow(), true)

	// Recovery work entered while already poisoned, then cleared before the
	// section exits: the section's own failure report must not resurrect
	// the old state.
	tok := f.Borrow()
	f.Clear()
	f.Done(tok, true)
	if f.Poisoned() {
		t.Fatal("section entered while poisoned should not re-poison after clear")
	}
}

func TestErrorCarriesGuard(t *testing.T) {
	err := error(NewError("guard"))
	var perr *Error[string]
	if !errors.As(err, &perr) {
		t.Fatalf("expected poison error, got %v", err)
	}
	if perr.Inner() != "guard" {
		t.Fatalf("expected carried guard, got %q", perr.Inner())
	}
	if perr.Error() == "" {
		t.Fatal("expected non-empty error message")
	}
}
