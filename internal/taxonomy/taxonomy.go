package taxonomy

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/fyrsmithlabs/skillgate/internal/registry"
)

// Code identifies a class of execution failure.
type Code string

// Recognized error codes, from most to least specific.
const (
	CodeTimeout           Code = "timeout"
	CodeRateLimited       Code = "rate_limited"
	CodeConnection        Code = "connection"
	CodePermission        Code = "permission"
	CodeResourceExhausted Code = "resource_exhausted"
	CodeNotFound          Code = "not_found"
	CodeValidation        Code = "validation"
	CodeUnknown           Code = "unknown"
)

// Remediation describes how a caller should react to an error class.
type Remediation struct {
	RetryRecommended bool
	Hint             string
}

var remediations = map[Code]Remediation{
	CodeTimeout:           {RetryRecommended: true, Hint: "increase the deadline or reduce payload size"},
	CodeRateLimited:       {RetryRecommended: true, Hint: "back off and reduce request rate"},
	CodeConnection:        {RetryRecommended: true, Hint: "check endpoint health and network path"},
	CodePermission:        {RetryRecommended: false, Hint: "verify credentials and access grants"},
	CodeResourceExhausted: {RetryRecommended: false, Hint: "raise the quota or shed load before retrying"},
	CodeNotFound:          {RetryRecommended: false, Hint: "verify the resource identifier"},
	CodeValidation:        {RetryRecommended: false, Hint: "fix the input shape before retrying"},
	CodeUnknown:           {RetryRecommended: false, Hint: "inspect logs for the underlying cause"},
}

// substring heuristics applied in order after the typed checks; the
// first matching code wins.
var heuristics = []struct {
	code    Code
	needles []string
}{
	{CodeRateLimited, []string{"rate limit", "too many requests", "429"}},
	{CodeTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{CodeConnection, []string{"connection refused", "connection reset", "broken pipe", "no such host", "dial tcp"}},
	{CodePermission, []string{"permission denied", "unauthorized", "forbidden", "403"}},
	{CodeResourceExhausted, []string{"resource exhausted", "quota exceeded", "out of memory"}},
	{CodeNotFound, []string{"not found", "no such", "404"}},
	{CodeValidation, []string{"invalid", "validation", "malformed", "bad request"}},
}

// Taxonomy classifies errors and routes them to declared fallbacks.
// The zero value is not usable; construct with New.
type Taxonomy struct{}

// New creates a taxonomy.
func New() *Taxonomy {
	return &Taxonomy{}
}

// Classify maps an error to its code. Typed checks (context, net, os
// sentinels) run before substring heuristics on the error text; an
// error matching nothing is CodeUnknown.
func (t *Taxonomy) Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CodeTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CodeConnection
	}
	if errors.Is(err, os.ErrPermission) {
		return CodePermission
	}
	if errors.Is(err, os.ErrNotExist) {
		return CodeNotFound
	}

	msg := strings.ToLower(err.Error())
	for _, h := range heuristics {
		for _, needle := range h.needles {
			if strings.Contains(msg, needle) {
				return h.code
			}
		}
	}
	return CodeUnknown
}

// Remediation returns the guidance for a code. Unrecognized codes get
// the CodeUnknown remediation.
func (t *Taxonomy) Remediation(code Code) Remediation {
	if r, ok := remediations[code]; ok {
		return r
	}
	return remediations[CodeUnknown]
}

// FallbackForError returns the name of the first manifest fallback
// declared for the given code, or "" when no fallback targets it.
func (t *Taxonomy) FallbackForError(code Code, manifest *registry.Manifest) string {
	if manifest == nil {
		return ""
	}
	for _, fb := range manifest.Fallbacks {
		for _, on := range fb.On {
			if Code(on) == code {
				return fb.Skill
			}
		}
	}
	return ""
}
