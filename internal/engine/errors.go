package engine

import (
	"errors"
	"fmt"
)

// Kind is the stable classification of a cycle failure, returned to the
// caller alongside the human-readable message.
type Kind string

const (
	KindConfiguration       Kind = "configuration_error"
	KindBotNotFound         Kind = "bot_not_found"
	KindBotExpired          Kind = "bot_expired"
	KindKeyDecode           Kind = "key_decode_error"
	KindFunding             Kind = "funding_error"
	KindRouteUnavailable    Kind = "route_unavailable"
	KindUpstream            Kind = "upstream_error"
	KindSubmissionTimeout   Kind = "submission_timeout"
	KindTransactionRejected Kind = "transaction_rejected"
	KindInternal            Kind = "internal_error"
)

type CycleError struct {
	Kind Kind
	Err  error
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

func cycleErr(kind Kind, err error) error {
	return &CycleError{Kind: kind, Err: err}
}

func cycleErrf(kind Kind, format string, args ...any) error {
	return &CycleError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the failure kind from err, or KindInternal if it carries
// none.
func KindOf(err error) Kind {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}
