package memflow

import "fmt"

// Kind classifies an Error into the closed taxonomy this package returns.
// Callers that need to branch on failure category should compare Kind
// rather than matching on error strings.
type Kind int

const (
	// KindIO reports a failure in the underlying transport (file, USB,
	// socket, hypervisor call) that a PhysicalMemory provider sits on.
	KindIO Kind = iota

	// KindConfiguration reports bad Args, an unknown DSL value, or a
	// malformed memcache spec.
	KindConfiguration

	// KindConnector reports a plugin load, version mismatch, or factory
	// failure inside the connector inventory.
	KindConnector

	// KindOutOfBounds reports an address outside a MemoryMap or beyond a
	// provider's reported size.
	KindOutOfBounds

	// KindPageNotPresent reports a translation that found a page-table
	// entry with its present bit clear.
	KindPageNotPresent

	// KindInvalidPageTable reports a translation that found a malformed
	// page-table entry (frame address beyond the provider's size).
	KindInvalidPageTable

	// KindBounds reports a value-range conversion failure, e.g. narrowing
	// a Pointer64 to a 32-bit address.
	KindBounds

	// KindOther is a catch-all; its message must be a static string
	// literal so it survives a connector's shared library being unloaded.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "IO"
	case KindConfiguration:
		return "Configuration"
	case KindConnector:
		return "Connector"
	case KindOutOfBounds:
		return "OutOfBounds"
	case KindPageNotPresent:
		return "PageNotPresent"
	case KindInvalidPageTable:
		return "InvalidPageTable"
	case KindBounds:
		return "Bounds"
	default:
		return "Other"
	}
}

// Error is the concrete error type returned across this package. It keeps
// Kind inspectable while still supporting errors.Is/errors.As through Unwrap.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("memflow: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("memflow: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so callers can
// do errors.Is(err, memflow.ErrKind(KindOutOfBounds)) without caring about
// the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Msg == ""
}

// newErr builds an *Error with no wrapped cause.
func newErr(k Kind, msg string, args ...any) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(msg, args...)}
}

// wrapErr builds an *Error wrapping cause.
func wrapErr(k Kind, cause error, msg string, args ...any) error {
	return &Error{Kind: k, Msg: fmt.Sprintf(msg, args...), Err: cause}
}

// ErrKind returns a sentinel usable with errors.Is to test only the Kind of
// an error, ignoring its message and wrapped cause.
func ErrKind(k Kind) error { return &Error{Kind: k} }

// PartialResult is returned by batched/typed reads and writes that succeed
// on a prefix of the requested bytes before failing. Partial is always
// non-nil error, never a zero *Error.
type PartialResult struct {
	// BytesSucceeded is the number of bytes actually transferred before Err.
	BytesSucceeded int
	// Err is the error that stopped the transfer.
	Err error
}

func (p *PartialResult) Error() string {
	return fmt.Sprintf("memflow: partial result: %d bytes succeeded before: %v", p.BytesSucceeded, p.Err)
}

func (p *PartialResult) Unwrap() error { return p.Err }

// newPartial builds a PartialResult error, matching spec.md's
// Partial(n, inner) error kind.
func newPartial(n int, err error) error {
	return &PartialResult{BytesSucceeded: n, Err: err}
}
