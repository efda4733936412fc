package core

import (
	"errors"
	"fmt"
)

// Kind classifies an Error for callers that need to react to it, such as
// the HTTP layer choosing a status code.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindConfiguration
	KindUpstream
	KindIntegrity
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindConfiguration:
		return "configuration"
	case KindUpstream:
		return "upstream"
	case KindIntegrity:
		return "integrity"
	case KindBusy:
		return "busy"
	}
	return "internal"
}

// Error is the structured error surfaced by the core. Code is stable and
// meant for message catalogs; Message is a developer-facing English text.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, code, msg string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: cause}
}

func Validation(code, msg string) *Error    { return newError(KindValidation, code, msg, nil) }
func NotFound(code, msg string) *Error      { return newError(KindNotFound, code, msg, nil) }
func Conflict(code, msg string) *Error      { return newError(KindConflict, code, msg, nil) }
func Configuration(code, msg string) *Error { return newError(KindConfiguration, code, msg, nil) }
func Integrity(code, msg string) *Error     { return newError(KindIntegrity, code, msg, nil) }
func Busy(code, msg string) *Error          { return newError(KindBusy, code, msg, nil) }

// Upstream wraps a failure talking to an external collaborator.
func Upstream(code, msg string, cause error) *Error {
	return newError(KindUpstream, code, msg, cause)
}

// Invalid wraps a sentinel validation error with a code.
func Invalid(code string, cause error) *Error {
	return newError(KindValidation, code, cause.Error(), cause)
}

// KindOf reports the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf reports the code of the first *Error in err's chain, or
// "internal_error".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return "internal_error"
}

func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool   { return KindOf(err) == KindConflict }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsUpstream(err error) bool   { return KindOf(err) == KindUpstream }
func IsIntegrity(err error) bool  { return KindOf(err) == KindIntegrity }

// Error codes shared across packages.
const (
	CodeNotFound              = "not_found"
	CodeInvalidID             = "invalid_id"
	CodeInvalidType           = "invalid_type"
	CodeInvalidAmount         = "invalid_amount"
	CodeInvalidDate           = "invalid_date"
	CodeInvalidPeriod         = "invalid_period"
	CodeInvalidCursor         = "invalid_cursor"
	CodeInvalidRate           = "invalid_rate"
	CodeCategoryRequired      = "category_required"
	CodeCategoryExists        = "category_exists"
	CodeCategoryNotFound      = "category_not_found"
	CodeCurrencyRequired      = "currency_required"
	CodeCurrencyExists        = "currency_exists"
	CodeCurrencyNotFound      = "currency_not_found"
	CodeBackupScriptMissing   = "backup_script_missing"
	CodeBackupNameRequired    = "backup_name_required"
	CodeBackupResponseInvalid = "backup_response_invalid"
	CodeBackupDatabaseMissing = "backup_database_missing"
	CodeBackupCreateFailed    = "backup_create_failed"
	CodeBackupListFailed      = "backup_list_failed"
	CodeBackupDeleteFailed    = "backup_delete_failed"
	CodeBackupRestoreFailed   = "backup_restore_failed"
	CodeBackupInProgress      = "backup_in_progress"
	CodeBackupRunTimeInvalid  = "backup_run_time_invalid"
	CodeStoreUnavailable      = "store_unavailable"
)
