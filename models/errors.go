package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrorKind is the closed set of fatal processing failures.
type ErrorKind int

const (
	KindTooManyTimeBases ErrorKind = iota + 1
	KindEmptyStream
	KindDegenerateSegmentation
	KindProfileConsistency
)

var kindNames = map[ErrorKind]string{
	KindTooManyTimeBases:       "too many time bases",
	KindEmptyStream:            "empty stream",
	KindDegenerateSegmentation: "degenerate segmentation",
	KindProfileConsistency:     "profile consistency",
}

func (k ErrorKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Sentinels for errors.Is. They match any *ProcessingError of the same kind.
var (
	ErrTooManyTimeBases       = &ProcessingError{Kind: KindTooManyTimeBases, Index: -1, Timestamp: math.NaN()}
	ErrEmptyStream            = &ProcessingError{Kind: KindEmptyStream, Index: -1, Timestamp: math.NaN()}
	ErrDegenerateSegmentation = &ProcessingError{Kind: KindDegenerateSegmentation, Index: -1, Timestamp: math.NaN()}
	ErrProfileConsistency     = &ProcessingError{Kind: KindProfileConsistency, Index: -1, Timestamp: math.NaN()}
)

// Violation is one failed profile consistency rule.
type Violation struct {
	ProfileIndex int
	Reason       string
}

func (v Violation) String() string {
	return fmt.Sprintf("profile %d: %s", v.ProfileIndex, v.Reason)
}

// ProcessingError is returned by every core stage for the fatal kinds.
// Index and Timestamp locate the first violation; -1 and NaN when unknown.
type ProcessingError struct {
	Kind       ErrorKind
	Deployment string
	Variant    Variant
	Index      int
	Timestamp  float64
	Violations []Violation
	Msg        string
}

// NewProcessingError builds an error with no location.
func NewProcessingError(kind ErrorKind, format string, args ...any) *ProcessingError {
	return &ProcessingError{
		Kind:      kind,
		Index:     -1,
		Timestamp: math.NaN(),
		Msg:       fmt.Sprintf(format, args...),
	}
}

// At records the first violating index and timestamp.
func (e *ProcessingError) At(index int, ts float64) *ProcessingError {
	e.Index = index
	e.Timestamp = ts
	return e
}

// WithContext fills in the deployment and variant when not already set.
func (e *ProcessingError) WithContext(deployment string, variant Variant) *ProcessingError {
	if e.Deployment == "" {
		e.Deployment = deployment
	}
	if e.Variant == "" {
		e.Variant = variant
	}
	return e
}

func (e *ProcessingError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Deployment != "" {
		fmt.Fprintf(&b, " deployment=%s", e.Deployment)
	}
	if e.Variant != "" {
		fmt.Fprintf(&b, " variant=%s", e.Variant)
	}
	if e.Index >= 0 {
		fmt.Fprintf(&b, " index=%d", e.Index)
	}
	if !math.IsNaN(e.Timestamp) {
		fmt.Fprintf(&b, " time=%s", ttoa(e.Timestamp))
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	for _, v := range e.Violations {
		b.WriteString("\n  ")
		b.WriteString(v.String())
	}
	return b.String()
}

// Is matches sentinels by kind.
func (e *ProcessingError) Is(target error) bool {
	t, ok := target.(*ProcessingError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of a processing error anywhere in err's chain,
// or 0 when there is none.
func KindOf(err error) ErrorKind {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// AttachContext stamps deployment and variant onto a processing error in
// err's chain and returns err unchanged otherwise.
func AttachContext(err error, deployment string, variant Variant) error {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		pe.WithContext(deployment, variant)
	}
	return err
}
