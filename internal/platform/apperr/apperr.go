// Package apperr defines the error taxonomy shared by every bedlink component.
// Each error carries a Kind (which decides the HTTP status) and a stable
// machine-checkable Reason that clients branch on.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse class of an error.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindRateLimited  Kind = "rate_limited"
	KindInternal     Kind = "internal"
)

// Reason is the stable machine-readable cause of an error.
type Reason string

const (
	ReasonValidationFailed          Reason = "ValidationFailed"
	ReasonUnauthorized              Reason = "Unauthorized"
	ReasonForbiddenActor            Reason = "ForbiddenActor"
	ReasonHospitalMismatch          Reason = "HospitalMismatch"
	ReasonAdmissionHospitalMismatch Reason = "AdmissionHospitalMismatch"
	ReasonWardNotFound              Reason = "WardNotFound"
	ReasonHospitalNotFound          Reason = "HospitalNotFound"
	ReasonPatientNotFound           Reason = "PatientNotFound"
	ReasonReferralNotFound          Reason = "ReferralNotFound"
	ReasonReservationNotFound       Reason = "ReservationNotFound"
	ReasonAdmissionNotFound         Reason = "AdmissionNotFound"
	ReasonRouteNotFound             Reason = "NotFound"
	ReasonNoBedsAvailable           Reason = "NoBedsAvailable"
	ReasonBedsStillAvailable        Reason = "BedsStillAvailable"
	ReasonCapacityBelowOccupied     Reason = "CapacityBelowOccupied"
	ReasonCapacityExceeded          Reason = "CapacityExceeded"
	ReasonInvalidTransition         Reason = "InvalidTransition"
	ReasonAlreadyDischarged         Reason = "AlreadyDischarged"
	ReasonReservationExpired        Reason = "ReservationExpired"
	ReasonRateLimited               Reason = "RateLimited"
	ReasonInternal                  Reason = "Internal"
)

// Error is the application error type.
type Error struct {
	Kind    Kind
	Reason  Reason
	Message string
	Hint    string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Reason so sentinels work with errors.Is regardless of message,
// hint or details attached later.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// WithHint returns a copy of e carrying a client-facing hint.
func (e *Error) WithHint(hint string) *Error {
	cp := e.clone()
	cp.Hint = hint
	return cp
}

// WithDetail returns a copy of e with an extra detail field.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	cp := e.clone()
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return cp
}

// WithMessage returns a copy of e with a different human-readable message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	cp := e.clone()
	cp.Message = fmt.Sprintf(format, args...)
	return cp
}

// Wrap returns a copy of e that wraps err.
func (e *Error) Wrap(err error) *Error {
	cp := e.clone()
	cp.Err = err
	return cp
}

func (e *Error) clone() *Error {
	cp := *e
	return &cp
}

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels. Compare with errors.Is; derive request-specific variants with the
// With* helpers.
var (
	ErrHospitalMismatch          = New(KindForbidden, ReasonHospitalMismatch, "ward does not belong to your hospital")
	ErrAdmissionHospitalMismatch = New(KindForbidden, ReasonAdmissionHospitalMismatch, "admission does not belong to your hospital")
	ErrWardNotFound              = New(KindNotFound, ReasonWardNotFound, "ward not found")
	ErrHospitalNotFound          = New(KindNotFound, ReasonHospitalNotFound, "hospital not found")
	ErrPatientNotFound           = New(KindNotFound, ReasonPatientNotFound, "patient not found")
	ErrReferralNotFound          = New(KindNotFound, ReasonReferralNotFound, "referral not found")
	ErrReservationNotFound       = New(KindNotFound, ReasonReservationNotFound, "active reservation not found")
	ErrAdmissionNotFound         = New(KindNotFound, ReasonAdmissionNotFound, "admission not found")
	ErrNoBedsAvailable           = New(KindConflict, ReasonNoBedsAvailable, "no beds available in this ward")
	ErrBedsStillAvailable        = New(KindConflict, ReasonBedsStillAvailable, "referral allowed only when hospital has no available beds")
	ErrCapacityBelowOccupied     = New(KindConflict, ReasonCapacityBelowOccupied, "new total_beds cannot be less than occupied beds")
	ErrCapacityExceeded          = New(KindConflict, ReasonCapacityExceeded, "available beds would exceed total beds")
	ErrInvalidTransition         = New(KindConflict, ReasonInvalidTransition, "invalid state transition")
	ErrAlreadyDischarged         = New(KindConflict, ReasonAlreadyDischarged, "admission already discharged")
	ErrReservationExpired        = New(KindConflict, ReasonReservationExpired, "reservation has expired")
	ErrRateLimited               = New(KindRateLimited, ReasonRateLimited, "rate limit exceeded")
)

// New creates an Error.
func New(kind Kind, reason Reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

// Validation creates a ValidationFailed error.
func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, ReasonValidationFailed, fmt.Sprintf(format, args...))
}

// Forbidden creates a ForbiddenActor error.
func Forbidden(format string, args ...interface{}) *Error {
	return New(KindForbidden, ReasonForbiddenActor, fmt.Sprintf(format, args...))
}

// Internal wraps an unexpected failure. The message is not shown to clients.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Reason: ReasonInternal, Message: message, Err: err}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// ReasonOf returns the reason carried by err, or ReasonInternal for foreign errors.
func ReasonOf(err error) Reason {
	if ae, ok := As(err); ok {
		return ae.Reason
	}
	return ReasonInternal
}

// InvalidTransition builds the conflict returned when an action is not allowed
// from the current status.
func InvalidTransition(action, currentStatus string) *Error {
	return ErrInvalidTransition.
		WithMessage("cannot %s referral with status '%s'", action, currentStatus).
		WithDetail("current_status", currentStatus)
}
