package advisory

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"PairPilot/internal/domain/models"
)

// ErrUnparseable is returned when a response holds no usable votes.
var ErrUnparseable = errors.New("advisory: response has no usable votes")

const defaultConfidence = 50.0

type rawVote struct {
	Vote       string          `json:"vote"`
	Confidence json.RawMessage `json:"confidence"`
	Rationale  string          `json:"rationale"`
}

// ParseVotes extracts per-pair votes from a provider response. Markdown
// code fences and text around the outermost JSON object are ignored, as is
// a single wrapping "votes" or "evaluations" key. Entries with an unknown
// vote label are skipped. Confidence is clamped to [0,100] and defaults to
// 50 when absent.
func ParseVotes(provider, text string) (map[string]models.ProviderVote, error) {
	body := extractJSON(text)
	if body == "" {
		return nil, ErrUnparseable
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	for _, wrap := range []string{"votes", "evaluations"} {
		inner, ok := top[wrap]
		if !ok || len(top) != 1 {
			continue
		}
		var unwrapped map[string]json.RawMessage
		if err := json.Unmarshal(inner, &unwrapped); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
		top = unwrapped
		break
	}

	out := make(map[string]models.ProviderVote, len(top))
	for pair, raw := range top {
		var rv rawVote
		if err := json.Unmarshal(raw, &rv); err != nil {
			continue
		}
		label, ok := models.ParseVoteLabel(rv.Vote)
		if !ok {
			continue
		}
		out[strings.TrimSpace(pair)] = models.ProviderVote{
			Provider:   provider,
			Vote:       label,
			Confidence: parseConfidence(rv.Confidence),
			Rationale:  strings.TrimSpace(rv.Rationale),
		}
	}
	if len(out) == 0 {
		return nil, ErrUnparseable
	}
	return out, nil
}

func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			s = s[nl+1:]
		}
		if end := strings.LastIndex(s, "```"); end >= 0 {
			s = s[:end]
		}
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func parseConfidence(raw json.RawMessage) float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return defaultConfidence
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return defaultConfidence
		}
		f, err = strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"), 64)
		if err != nil {
			return defaultConfidence
		}
	}
	if math.IsNaN(f) {
		return defaultConfidence
	}
	return math.Max(0, math.Min(100, f))
}
