package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind separates errors that end a run from errors the engine absorbs
// and counts.
type ErrorKind int

const (
	KindFatal ErrorKind = iota
	KindRecoverable
)

func (k ErrorKind) String() string {
	if k == KindRecoverable {
		return "recoverable"
	}
	return "fatal"
}

type kinded interface {
	Kind() ErrorKind
}

// KindOf reports the kind of the first typed error in err's chain. Untyped
// errors are fatal.
func KindOf(err error) ErrorKind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindFatal
}

func IsRecoverable(err error) bool {
	return err != nil && KindOf(err) == KindRecoverable
}

type ConfigValidationError struct {
	Problems []string
}

func (e *ConfigValidationError) Error() string {
	return "invalid backtest config: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigValidationError) Kind() ErrorKind { return KindFatal }

// FutureDataError is returned for any request dated after "now". It fails the
// fetch, not the run.
type FutureDataError struct {
	Symbol string
	Date   time.Time
	Now    time.Time
}

func (e *FutureDataError) Error() string {
	return fmt.Sprintf(
		"refusing to fetch %s for %s: date is after %s",
		e.Symbol,
		e.Date.Format(time.DateOnly),
		e.Now.Format(time.DateOnly),
	)
}

func (e *FutureDataError) Kind() ErrorKind { return KindFatal }

type DataUnavailableError struct {
	Symbol string
	Date   time.Time
	Err    error
}

func (e *DataUnavailableError) Error() string {
	msg := fmt.Sprintf("no valid data for %s on %s", e.Symbol, e.Date.Format(time.DateOnly))
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataUnavailableError) Unwrap() error   { return e.Err }
func (e *DataUnavailableError) Kind() ErrorKind { return KindRecoverable }

type DecisionTimeoutError struct {
	Symbol  string
	Date    time.Time
	Timeout time.Duration
}

func (e *DecisionTimeoutError) Error() string {
	return fmt.Sprintf("decision for %s on %s timed out after %s", e.Symbol, e.Date.Format(time.DateOnly), e.Timeout)
}

func (e *DecisionTimeoutError) Kind() ErrorKind { return KindRecoverable }

type DecisionError struct {
	Symbol string
	Date   time.Time
	Err    error
}

func (e *DecisionError) Error() string {
	return fmt.Sprintf("decision for %s on %s failed: %v", e.Symbol, e.Date.Format(time.DateOnly), e.Err)
}

func (e *DecisionError) Unwrap() error   { return e.Err }
func (e *DecisionError) Kind() ErrorKind { return KindRecoverable }

type TransactionExecutionError struct {
	Symbol string
	Action Action
	Reason string
}

func (e *TransactionExecutionError) Error() string {
	return fmt.Sprintf("failed to execute %s %s: %s", e.Action, e.Symbol, e.Reason)
}

func (e *TransactionExecutionError) Kind() ErrorKind { return KindRecoverable }

// EngineError is an internal invariant violation. The run is aborted.
type EngineError struct {
	State EngineState
	Err   error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("backtest failed while %s: %v", e.State, e.Err)
}

func (e *EngineError) Unwrap() error   { return e.Err }
func (e *EngineError) Kind() ErrorKind { return KindFatal }
