package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/skillgate/internal/registry"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "operation slow" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tax := New()

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil error", nil, CodeUnknown},
		{"context deadline", context.DeadlineExceeded, CodeTimeout},
		{"wrapped deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), CodeTimeout},
		{"net timeout", timeoutErr{}, CodeTimeout},
		{"net op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, CodeConnection},
		{"os permission", fmt.Errorf("open state: %w", os.ErrPermission), CodePermission},
		{"os not exist", fmt.Errorf("read manifest: %w", os.ErrNotExist), CodeNotFound},
		{"rate limit text", errors.New("upstream returned 429 Too Many Requests"), CodeRateLimited},
		{"timeout text", errors.New("request timed out after 30s"), CodeTimeout},
		{"connection text", errors.New("dial tcp 10.0.0.1:443: connection refused"), CodeConnection},
		{"permission text", errors.New("403 Forbidden"), CodePermission},
		{"quota text", errors.New("quota exceeded for project"), CodeResourceExhausted},
		{"not found text", errors.New("model not found"), CodeNotFound},
		{"validation text", errors.New("invalid input: missing field query"), CodeValidation},
		{"unclassifiable", errors.New("something odd happened"), CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tax.Classify(tt.err))
		})
	}
}

func TestClassifyRateLimitBeforeTimeout(t *testing.T) {
	tax := New()

	// A message matching both classes resolves to the more specific
	// rate_limited code.
	err := errors.New("rate limit exceeded, request timed out waiting for slot")
	assert.Equal(t, CodeRateLimited, tax.Classify(err))
}

func TestRemediation(t *testing.T) {
	tax := New()

	retryable := []Code{CodeTimeout, CodeRateLimited, CodeConnection}
	for _, code := range retryable {
		r := tax.Remediation(code)
		assert.True(t, r.RetryRecommended, "code %s should recommend retry", code)
		assert.NotEmpty(t, r.Hint)
	}

	terminal := []Code{CodePermission, CodeResourceExhausted, CodeNotFound, CodeValidation, CodeUnknown}
	for _, code := range terminal {
		r := tax.Remediation(code)
		assert.False(t, r.RetryRecommended, "code %s should not recommend retry", code)
		assert.NotEmpty(t, r.Hint)
	}

	assert.Equal(t, tax.Remediation(CodeUnknown), tax.Remediation(Code("made_up")))
}

func TestFallbackForError(t *testing.T) {
	tax := New()

	manifest := &registry.Manifest{
		Name:    "web_search",
		Version: "1.0.0",
		Fallbacks: []registry.FallbackConfig{
			{Skill: "cached_search", On: []string{"timeout", "connection"}},
			{Skill: "local_index", On: []string{"rate_limited"}},
			{Skill: "noop_search"},
		},
	}

	assert.Equal(t, "cached_search", tax.FallbackForError(CodeTimeout, manifest))
	assert.Equal(t, "cached_search", tax.FallbackForError(CodeConnection, manifest))
	assert.Equal(t, "local_index", tax.FallbackForError(CodeRateLimited, manifest))

	// Codes no fallback targets, and untargeted fallbacks, yield "".
	assert.Equal(t, "", tax.FallbackForError(CodeValidation, manifest))
	assert.Equal(t, "", tax.FallbackForError(CodeUnknown, manifest))
	assert.Equal(t, "", tax.FallbackForError(CodeTimeout, nil))
	assert.Equal(t, "", tax.FallbackForError(CodeTimeout, &registry.Manifest{Name: "bare"}))
}
