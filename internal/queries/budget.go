package queries

import (
	"encoding/json"
	"fmt"

	"github.com/taskmcp/taskmcp/internal/logging"
	"github.com/taskmcp/taskmcp/internal/types"
)

const (
	// MaxResponseTokens is the hard ceiling on the approximate token count
	// of any serialized response.
	MaxResponseTokens = 15000
	// WarnResponseTokens is the soft threshold that triggers a log warning.
	WarnResponseTokens = 12000
)

// EstimateTokens approximates the token count of a payload's JSON form as
// ceil(bytes/4). The estimate only needs to be monotonic in response size.
func EstimateTokens(payload any) (int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize response for size check: %w", err)
	}
	return (len(data) + 3) / 4, nil
}

// EnforceBudget checks a response payload against the token budget. Within
// budget it returns the estimate; over budget it returns a
// RESPONSE_SIZE_EXCEEDED error carrying the actual and maximum counts.
func EnforceBudget(toolName string, payload any) (int, error) {
	tokens, err := EstimateTokens(payload)
	if err != nil {
		return 0, err
	}
	if tokens > MaxResponseTokens {
		return tokens, types.Errorf(types.KindResponseSizeExceeded,
			"response is ~%d tokens, exceeding the %d-token limit", tokens, MaxResponseTokens).
			WithDetail("actual_tokens", tokens).
			WithDetail("max_tokens", MaxResponseTokens).
			WithSuggestion("Reduce the response size with pagination (limit/offset), summary mode, or tighter filters.")
	}
	if tokens >= WarnResponseTokens {
		logging.Warnf("%s response is ~%d tokens, approaching the %d-token limit",
			toolName, tokens, MaxResponseTokens)
	}
	return tokens, nil
}
