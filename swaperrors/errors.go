// Package swaperrors defines the HTTP error envelope returned by the API
// surface (spec §6) and the prefixed error codes swapd's handlers attach
// to each failure, so a client can branch on the code without parsing the
// message.
package swaperrors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Code is a stable, prefixed error identifier of the form
// "<PREFIX>.<N>", e.g. "SWAP.1" for an amount outside the pair's limits.
type Code string

const (
	CodeInvalidRequest     Code = "REQ.1"
	CodeUnknownPair        Code = "REQ.2"
	CodeUnsupportedNetwork Code = "REQ.3"

	CodeAmountOutOfRange Code = "SWAP.1"
	CodeSwapNotFound     Code = "SWAP.2"
	CodeSwapExpired      Code = "SWAP.3"
	CodeIllegalStatus    Code = "SWAP.4"

	CodeInvoiceAlreadyPaid Code = "LN.1"
	CodeNoRoute            Code = "LN.2"
	CodeInvoiceExpired     Code = "LN.3"
	CodePaymentFailed      Code = "LN.4"

	CodeRefundSignatureInvalid Code = "MUSIG.1"
	CodeNonceMismatch          Code = "MUSIG.2"

	CodeInternal Code = "INTERNAL.1"
)

// httpStatus maps each Code to the HTTP status swapd's API returns for it,
// mirroring the status-per-error-class convention used throughout the
// pack's JSON-API services.
var httpStatus = map[Code]int{
	CodeInvalidRequest:     http.StatusBadRequest,
	CodeUnknownPair:        http.StatusBadRequest,
	CodeUnsupportedNetwork: http.StatusBadRequest,

	CodeAmountOutOfRange: http.StatusBadRequest,
	CodeSwapNotFound:     http.StatusNotFound,
	CodeSwapExpired:      http.StatusGone,
	CodeIllegalStatus:    http.StatusConflict,

	CodeInvoiceAlreadyPaid: http.StatusConflict,
	CodeNoRoute:            http.StatusUnprocessableEntity,
	CodeInvoiceExpired:     http.StatusUnprocessableEntity,
	CodePaymentFailed:      http.StatusUnprocessableEntity,

	CodeRefundSignatureInvalid: http.StatusBadRequest,
	CodeNonceMismatch:          http.StatusConflict,

	CodeInternal: http.StatusInternalServerError,
}

// Error is the envelope serialized as the JSON body of every non-2xx
// response, matching the {error, code} shape the API consumers expect
// (spec §6).
type Error struct {
	Message string `json:"error"`
	Code    Code   `json:"code"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error from a Code and a format string, the way the
// daemon's RPC layer builds its own status errors.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code to an existing error's message without losing its
// text, for surfacing internal errors without leaking internals beyond
// what the message already says.
func Wrap(code Code, err error) *Error {
	return &Error{Code: code, Message: err.Error()}
}

// WriteJSON writes err as the JSON envelope with the HTTP status
// associated with its code, falling back to 500 for an unrecognized or
// non-swaperrors error.
func WriteJSON(w http.ResponseWriter, err error) {
	swapErr, ok := err.(*Error)
	if !ok {
		swapErr = &Error{Code: CodeInternal, Message: err.Error()}
	}

	status, ok := httpStatus[swapErr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(swapErr)
}
