package models

import "strings"

// VoteLabel is the categorical advisory vote.
type VoteLabel string

const (
	VoteStrongBuy VoteLabel = "STRONG_BUY"
	VoteBuy       VoteLabel = "BUY"
	VoteNeutral   VoteLabel = "NEUTRAL"
	VoteAvoid     VoteLabel = "AVOID"
)

// Score maps a vote to its numeric weight.
func (v VoteLabel) Score() float64 {
	switch v {
	case VoteStrongBuy:
		return 2
	case VoteBuy:
		return 1
	case VoteAvoid:
		return -1
	default:
		return 0
	}
}

// ParseVoteLabel accepts loose spellings such as "strong buy" or "Strong-Buy".
func ParseVoteLabel(s string) (VoteLabel, bool) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch VoteLabel(norm) {
	case VoteStrongBuy, VoteBuy, VoteNeutral, VoteAvoid:
		return VoteLabel(norm), true
	}
	return "", false
}

// VoteLabelForScore maps an averaged vote score back to a label.
func VoteLabelForScore(score float64) VoteLabel {
	switch {
	case score >= 1.5:
		return VoteStrongBuy
	case score >= 0.5:
		return VoteBuy
	case score >= -0.5:
		return VoteNeutral
	default:
		return VoteAvoid
	}
}

// ProviderVote is one provider's parsed opinion about one pair.
type ProviderVote struct {
	Provider   string    `json:"provider"`
	Vote       VoteLabel `json:"vote"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale,omitempty"`
}

// EnsembleVote is the consensus across providers for one pair.
// Placeholder is set when no provider produced usable output.
type EnsembleVote struct {
	Pair          string         `json:"pair"`
	Vote          VoteLabel      `json:"vote"`
	Confidence    float64        `json:"confidence"`
	VoteScore     float64        `json:"vote_score"`
	ProviderVotes []ProviderVote `json:"provider_votes"`
	Rationale     string         `json:"rationale"`
	Placeholder   bool           `json:"placeholder,omitempty"`
}

// NormalizedScore remaps VoteScore from [-1,2] to [0,1].
func (e EnsembleVote) NormalizedScore() float64 {
	v := (e.VoteScore + 1) / 3
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
