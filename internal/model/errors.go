package model

import (
	"errors"
	"fmt"
)

// Code identifies a rejection reason surfaced to callers.
type Code string

const (
	CodeInvalidAmount         Code = "INVALID_AMOUNT"
	CodeSlippageTooHigh       Code = "SLIPPAGE_TOO_HIGH"
	CodePoolNotFound          Code = "POOL_NOT_FOUND"
	CodeFarmNotFound          Code = "FARM_NOT_FOUND"
	CodeFarmExists            Code = "FARM_EXISTS"
	CodeFarmInactive          Code = "FARM_INACTIVE"
	CodeInsufficientStake     Code = "INSUFFICIENT_STAKE"
	CodeInsufficientAllowance Code = "INSUFFICIENT_ALLOWANCE"
	CodePositionNotFound      Code = "POSITION_NOT_FOUND"
	CodeNothingToClaim        Code = "NOTHING_TO_CLAIM"
	CodeContractError         Code = "CONTRACT_ERROR"
)

// Error is a coded error returned for rejected operations.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errf builds a coded error with a formatted message.
func Errf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the code from an error chain, or "" if none.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}
