package model

import (
	"errors"
	"fmt"
)

// FailureKind classifies collaborator errors for retry policy.
type FailureKind string

// Supported failure kinds.
const (
	FailTimeout     FailureKind = "timeout"
	FailQuota       FailureKind = "quota"
	FailRateLimited FailureKind = "rate_limited"
	FailNetwork     FailureKind = "network"
	FailRejected    FailureKind = "rejected"
	FailInvalid     FailureKind = "invalid"
	FailMalformed   FailureKind = "malformed"
)

// permanent failure kinds abandon the item instead of entering backoff.
func (k FailureKind) permanent() bool {
	switch k {
	case FailRejected, FailInvalid, FailMalformed:
		return true
	}
	return false
}

// GenerationError reports a failed text-generation call.
type GenerationError struct {
	Kind FailureKind
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// SynthesisError wraps a GenerationError with the publication kind that
// was being synthesized.
type SynthesisError struct {
	Kind PublicationKind
	Err  error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize %s: %v", e.Kind, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// PriceFetchError reports a failed market-data call.
type PriceFetchError struct {
	Kind FailureKind
	Err  error
}

func (e *PriceFetchError) Error() string {
	return fmt.Sprintf("price fetch failed (%s): %v", e.Kind, e.Err)
}

func (e *PriceFetchError) Unwrap() error { return e.Err }

// DigestError reports a failed digest build.
type DigestError struct {
	Slot DigestSlot
	Err  error
}

func (e *DigestError) Error() string {
	return fmt.Sprintf("build %s digest: %v", e.Slot, e.Err)
}

func (e *DigestError) Unwrap() error { return e.Err }

// PublishError reports a failed send to the channel sink.
type PublishError struct {
	Kind FailureKind
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed (%s): %v", e.Kind, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// IngestError reports a failed pull from the ingestion source.
// Always treated as transient.
type IngestError struct {
	Source string
	Err    error
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("ingest from %s: %v", e.Source, e.Err)
}

func (e *IngestError) Unwrap() error { return e.Err }

// IsPermanent reports whether err is a permanent collaborator failure.
// Anything unclassified counts as transient, so retry is the default.
func IsPermanent(err error) bool {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind.permanent()
	}
	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Kind.permanent()
	}
	var pf *PriceFetchError
	if errors.As(err, &pf) {
		return pf.Kind.permanent()
	}
	return false
}

// IsTransient is the inverse of IsPermanent for nil-safe call sites.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
