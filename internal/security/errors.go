package security

import "errors"

// ErrInvalidToken is the uniform error surfaced to external callers when a
// token fails verification. The specific failure kind is carried by
// TokenError for internal logging and tests, and must not be echoed verbatim
// to clients.
var ErrInvalidToken = errors.New("invalid token")

// Kind classifies a token verification failure.
type Kind string

const (
	KindMalformed        Kind = "malformed"
	KindSignatureInvalid Kind = "signature_invalid"
	KindExpired          Kind = "expired"
	KindNotYetValid      Kind = "not_yet_valid"
	KindWrongType        Kind = "wrong_type"
	KindRevoked          Kind = "revoked"
	KindTooOld           Kind = "too_old"
	KindIssuedInFuture   Kind = "issued_in_future"
)

// TokenError is a verification failure with a classification kind.
// Verification failures are terminal for the token: callers must not retry.
type TokenError struct {
	Kind Kind
	err  error
}

func newTokenError(kind Kind, err error) *TokenError {
	return &TokenError{Kind: kind, err: err}
}

func (e *TokenError) Error() string {
	if e.err != nil {
		return string(e.Kind) + ": " + e.err.Error()
	}
	return string(e.Kind)
}

func (e *TokenError) Unwrap() error { return e.err }

// Is reports kind equality so tests can match with errors.Is against
// &TokenError{Kind: ...} values.
func (e *TokenError) Is(target error) bool {
	t, ok := target.(*TokenError)
	return ok && t.Kind == e.Kind
}

// KindOf returns the failure kind of err, or "" if err is not a TokenError.
func KindOf(err error) Kind {
	var te *TokenError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
