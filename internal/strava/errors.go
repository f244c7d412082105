package strava

import (
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// MaxErrorBodySize caps how much of a response body is kept on an Error.
const MaxErrorBodySize = 500

// Kind classifies a failure talking to the remote service.
type Kind int

const (
	KindRemoteFailure Kind = iota
	KindRateLimited
	KindUnauthorized
	KindNetworkFailure
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindUnauthorized:
		return "unauthorized"
	case KindNetworkFailure:
		return "network_failure"
	case KindNotFound:
		return "not_found"
	default:
		return "remote_failure"
	}
}

// Transient reports whether retrying later without user action can succeed.
func (k Kind) Transient() bool {
	return k != KindUnauthorized && k != KindNotFound
}

// Error is a classified remote failure.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Body       string
	Err        error
}

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrRateLimited    = &Error{Kind: KindRateLimited}
	ErrUnauthorized   = &Error{Kind: KindUnauthorized}
	ErrRemoteFailure  = &Error{Kind: KindRemoteFailure}
	ErrNetworkFailure = &Error{Kind: KindNetworkFailure}
	ErrNotFound       = &Error{Kind: KindNotFound}
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the classification of err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return KindRemoteFailure, false
}

// NewError builds a classified error for op.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// checkResponse returns nil for 2xx responses and a classified Error otherwise.
// The body is consumed and closed on failure.
func checkResponse(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize+1))
	resp.Body.Close()

	return &Error{
		Kind:       kindForStatus(resp.StatusCode),
		Op:         op,
		StatusCode: resp.StatusCode,
		Body:       truncate(string(body), MaxErrorBodySize),
	}
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindUnauthorized
	default:
		return KindRemoteFailure
	}
}

// tokenErrorKind classifies a token endpoint rejection. A refused refresh
// token comes back as 400 invalid_grant, so every 4xx except 429 means the
// credentials need user action.
func tokenErrorKind(err error) (Kind, bool) {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return 0, false
	}
	if re.Response == nil {
		return KindUnauthorized, true
	}
	switch status := re.Response.StatusCode; {
	case status == http.StatusTooManyRequests:
		return KindRateLimited, true
	case status >= 400 && status < 500:
		return KindUnauthorized, true
	default:
		return KindRemoteFailure, true
	}
}

// ClassifyTokenError maps an error returned by an oauth2.TokenSource.
// Anything that is not a token endpoint response is a network failure.
func ClassifyTokenError(op string, err error) *Error {
	if kind, ok := tokenErrorKind(err); ok {
		return NewError(kind, op, err)
	}
	return NewError(KindNetworkFailure, op, err)
}

// truncate truncates a string to maxLen, adding "..." if truncated
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
