package memflow

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrKindMatching(t *testing.T) {
	err := newErr(KindOutOfBounds, "address %s out of range", Address(0x1000))
	if !errors.Is(err, ErrKind(KindOutOfBounds)) {
		t.Fatal("errors.Is did not match same Kind")
	}
	if errors.Is(err, ErrKind(KindIO)) {
		t.Fatal("errors.Is matched a different Kind")
	}
}

func TestWrapErrUnwraps(t *testing.T) {
	cause := fmt.Errorf("underlying failure")
	err := wrapErr(KindIO, cause, "reading block")
	if !errors.Is(err, cause) {
		t.Fatal("wrapErr's result does not unwrap to its cause")
	}
	var asErr *Error
	if !errors.As(err, &asErr) || asErr.Kind != KindIO {
		t.Fatalf("errors.As = %+v, want Kind=KindIO", asErr)
	}
}

func TestPartialResultUnwraps(t *testing.T) {
	inner := newErr(KindPageNotPresent, "pte not present")
	partial := newPartial(128, inner)
	if !errors.Is(partial, ErrKind(KindPageNotPresent)) {
		t.Fatal("PartialResult does not unwrap to its inner Kind")
	}
	var pr *PartialResult
	if !errors.As(partial, &pr) || pr.BytesSucceeded != 128 {
		t.Fatalf("errors.As = %+v, want BytesSucceeded=128", pr)
	}
}
