package fault

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

type Code string

const (
	// Validation faults are bad preconditions: wrong status, already
	// fulfilled, missing seller key. Never retried.
	Validation Code = "VALIDATION"

	// Transient faults are infrastructure hiccups expected to recover:
	// storage 404 during replication, network resets, a transaction not
	// yet indexed. Retried per the step's schedule.
	Transient Code = "TRANSIENT"

	// Integrity faults mean an authentication tag or content hash did not
	// check out. Never retried, always critical.
	Integrity Code = "INTEGRITY"

	// Settlement faults mean the ledger reported the release transaction
	// failed. Retried per the settlement schedule, fatal on exhaustion.
	Settlement Code = "SETTLEMENT"

	// Persistence faults cover database write failures. Retried; when they
	// exhaust after a confirmed settlement the funds have moved but the
	// records have not, which must surface for manual reconciliation.
	Persistence Code = "PERSISTENCE"
)

type Fault struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

func New(code Code, message string, err error) *Fault {
	return &Fault{Code: code, Message: message, Err: err}
}

// NewCritical builds a fault and logs it at the highest severity. Used for
// integrity failures and post-settlement persistence exhaustion, both of
// which need a human.
func NewCritical(code Code, message string, err error) *Fault {
	f := &Fault{Code: code, Message: message, Err: err}
	logrus.WithField("code", code).Error(f.Error())
	return f
}

// CodeOf extracts the taxonomy code from an error chain. Errors that carry
// no fault are treated as transient, matching how unclassified network and
// driver errors should behave.
func CodeOf(err error) Code {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return Transient
}

// IsRetryable reports whether the step retry executor may attempt the
// operation again.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case Validation, Integrity:
		return false
	default:
		return true
	}
}

// IsCritical reports whether the error indicates corrupted data or a
// funds/records divergence.
func IsCritical(err error) bool {
	return CodeOf(err) == Integrity
}
