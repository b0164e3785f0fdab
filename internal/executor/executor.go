package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorClass splits dispatch failures into the two retry policies: transient
// failures release the claim and retry on a later tick, permanent failures
// move the order to a terminal failed state.
type ErrorClass string

const (
	ClassTransient ErrorClass = "transient"
	ClassPermanent ErrorClass = "permanent"
)

// ExecError is a classified dispatch failure.
type ExecError struct {
	Class   ErrorClass
	Code    string
	Message string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("swap execution failed (%s/%s): %s", e.Class, e.Code, e.Message)
}

func Transient(code, message string) *ExecError {
	return &ExecError{Class: ClassTransient, Code: code, Message: message}
}

func Permanent(code, message string) *ExecError {
	return &ExecError{Class: ClassPermanent, Code: code, Message: message}
}

// Classify maps any dispatch error to a retry class. Unknown errors
// (timeouts, RPC failures, network errors) default to transient so the
// order is retried rather than dead-ended on an outage.
func Classify(err error) ErrorClass {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Class
	}
	return ClassTransient
}

// Result of a successful (possibly partial) settlement attempt.
type Result struct {
	TxHash       string
	FilledAmount decimal.Decimal
}

// SwapExecutor delegates to the external swap/settlement service. It never
// retries internally; retry policy belongs to the scheduler, informed by
// the error classification.
type SwapExecutor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

type Request struct {
	TokenIn     string
	TokenOut    string
	Amount      decimal.Decimal
	MinOut      decimal.Decimal
	ChainID     int64
	UserAddress string
}
