package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies every user-visible failure of the engine.
type Kind string

const (
	KindValidation     Kind = "VALIDATION"
	KindAuthorization  Kind = "AUTHORIZATION"
	KindLiquidity      Kind = "LIQUIDITY"
	KindStalePrice     Kind = "STALE_PRICE"
	KindCircuitTripped Kind = "CIRCUIT_BREAKER_TRIPPED"
	KindInvariant      Kind = "INVARIANT_VIOLATION"
	KindNotFound       Kind = "NOT_FOUND"
)

// Detail codes refining a Kind.
const (
	CodeAdapterNotAllowed = "ADAPTER_NOT_ALLOWED"
	CodeAssetNotAllowed   = "ASSET_NOT_ALLOWED"
	CodeDrawdownExceeded  = "DRAWDOWN_EXCEEDED"
	CodeInsufficientStake = "INSUFFICIENT_STAKE"
	CodeBanned            = "EXECUTOR_BANNED"
	CodeNotOwner          = "NOT_OWNER"
	CodeExpired           = "ERT_EXPIRED"
	CodeNotExpired        = "ERT_NOT_EXPIRED"
	CodeBadStatus         = "ERT_BAD_STATUS"
)

// Error is the engine's taxonomy error. Fields carry the offending values so a
// caller can correct and retry.
type Error struct {
	Kind   Kind
	Code   string
	Msg    string
	Fields map[string]string
}

// Sentinels for errors.Is. A sentinel without Code matches every error of its kind.
var (
	ErrValidation     = &Error{Kind: KindValidation}
	ErrAuthorization  = &Error{Kind: KindAuthorization}
	ErrLiquidity      = &Error{Kind: KindLiquidity}
	ErrStalePrice     = &Error{Kind: KindStalePrice}
	ErrCircuitTripped = &Error{Kind: KindCircuitTripped}
	ErrInvariant      = &Error{Kind: KindInvariant}
	ErrNotFound       = &Error{Kind: KindNotFound}

	ErrAdapterNotAllowed = &Error{Kind: KindValidation, Code: CodeAdapterNotAllowed}
	ErrAssetNotAllowed   = &Error{Kind: KindValidation, Code: CodeAssetNotAllowed}
	ErrDrawdownExceeded  = &Error{Kind: KindValidation, Code: CodeDrawdownExceeded}
)

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(strings.ToLower(string(e.Kind)))
	if e.Code != "" {
		sb.WriteString(" [" + e.Code + "]")
	}
	if e.Msg != "" {
		sb.WriteString(": " + e.Msg)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+e.Fields[k])
		}
		sb.WriteString(" (" + strings.Join(parts, ", ") + ")")
	}
	return sb.String()
}

// Is matches by kind, and by code when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == "" || t.Code == e.Code)
}

func newError(kind Kind, code, msg string, kv []any) *Error {
	e := &Error{Kind: kind, Code: code, Msg: msg}
	if len(kv) > 0 {
		e.Fields = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Fields[fmt.Sprint(kv[i])] = fmt.Sprint(kv[i+1])
		}
	}
	return e
}

// Validation rejects bad input before any state change.
func Validation(code, msg string, kv ...any) *Error {
	return newError(KindValidation, code, msg, kv)
}

// Unauthorized rejects banned executors, wrong tiers and non-owners.
func Unauthorized(code, msg string, kv ...any) *Error {
	return newError(KindAuthorization, code, msg, kv)
}

// Illiquid rejects operations the vault cannot fund.
func Illiquid(msg string, kv ...any) *Error {
	return newError(KindLiquidity, "", msg, kv)
}

// Stale rejects valuations that would use an old price.
func Stale(msg string, kv ...any) *Error {
	return newError(KindStalePrice, "", msg, kv)
}

// Tripped rejects risk-increasing operations while the breaker is open.
func Tripped(msg string, kv ...any) *Error {
	return newError(KindCircuitTripped, "", msg, kv)
}

// Invariant reports a broken ledger invariant. Never user-correctable.
func Invariant(msg string, kv ...any) *Error {
	return newError(KindInvariant, "", msg, kv)
}

// NotFound reports a missing record.
func NotFound(entity, id string) *Error {
	return newError(KindNotFound, "", entity+" not found", []any{"id", id})
}

// KindOf returns the taxonomy kind of err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
