// Package hnerr implements the HN4 error/info taxonomy of spec §7: a signed
// code where positive values are informational successes, negative values
// are hard errors, and zero is plain OK — kept wire-compatible with the
// original C enum while giving Go callers a typed error to inspect.
package hnerr

import "fmt"

// Code is the taxonomy enum. Positive = info (still a success to the
// caller), negative = error, zero = OK.
type Code int

const (
	OK Code = 0

	// Info codes (positive): still success, caller may act on the detail.
	InfoHealed            Code = 1
	InfoHorizonFallback   Code = 2
	InfoSparse            Code = 3

	// Error codes (negative).
	ErrEnospc         Code = -1
	ErrEventHorizon   Code = -2
	ErrGravityCollapse Code = -3
	ErrGeometry       Code = -4
	ErrBitmapCorrupt  Code = -5
	ErrDataRot        Code = -6
	ErrHeaderRot      Code = -7
	ErrIDMismatch     Code = -8
	ErrHwIO           Code = -9
	ErrBusy           Code = -10
	ErrTimeParadox    Code = -11
	ErrMediaToxic     Code = -12
	ErrAccessDenied   Code = -13
	ErrImmutable      Code = -14
	ErrNotFound       Code = -15
	ErrExist          Code = -16
	ErrVolumeLocked   Code = -17
)

var names = map[Code]string{
	OK:                  "OK",
	InfoHealed:          "INFO_HEALED",
	InfoHorizonFallback: "INFO_HORIZON_FALLBACK",
	InfoSparse:          "INFO_SPARSE",
	ErrEnospc:           "ERR_ENOSPC",
	ErrEventHorizon:     "ERR_EVENT_HORIZON",
	ErrGravityCollapse:  "ERR_GRAVITY_COLLAPSE",
	ErrGeometry:         "ERR_GEOMETRY",
	ErrBitmapCorrupt:    "ERR_BITMAP_CORRUPT",
	ErrDataRot:          "ERR_DATA_ROT",
	ErrHeaderRot:        "ERR_HEADER_ROT",
	ErrIDMismatch:       "ERR_ID_MISMATCH",
	ErrHwIO:             "ERR_HW_IO",
	ErrBusy:             "ERR_BUSY",
	ErrTimeParadox:      "ERR_TIME_PARADOX",
	ErrMediaToxic:       "ERR_MEDIA_TOXIC",
	ErrAccessDenied:     "ERR_ACCESS_DENIED",
	ErrImmutable:        "ERR_IMMUTABLE",
	ErrNotFound:         "ERR_NOT_FOUND",
	ErrExist:            "ERR_EXIST",
	ErrVolumeLocked:     "ERR_VOLUME_LOCKED",
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// IsError reports whether c represents a hard failure (negative).
func (c Code) IsError() bool { return c < 0 }

// IsInfo reports whether c is a positive informational success.
func (c Code) IsInfo() bool { return c > 0 }

// E wraps a Code as a Go error, optionally with context.
type E struct {
	Code Code
	Msg  string
}

func (e *E) Error() string {
	if e.Msg == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// New builds an *E from a code and a formatted message. If code is not an
// error (zero or positive), New still returns a non-nil *E — callers that
// want "error or nil" semantics should use Wrap.
func New(code Code, format string, args ...interface{}) *E {
	return &E{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap returns nil if code is OK or an info code, else an *E error.
// This is the usual call shape: `if err := hnerr.Wrap(code, "..."); err != nil`.
func Wrap(code Code, format string, args ...interface{}) error {
	if !code.IsError() {
		return nil
	}
	return New(code, format, args...)
}

// CodeOf extracts the Code from err, defaulting to OK for nil and to
// ErrHwIO for an error of unknown provenance (never silently swallowed).
func CodeOf(err error) Code {
	if err == nil {
		return OK
	}
	if e, ok := err.(*E); ok {
		return e.Code
	}
	return ErrHwIO
}
