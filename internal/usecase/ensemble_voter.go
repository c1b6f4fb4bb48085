package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"PairPilot/internal/domain/models"
	domrepo "PairPilot/internal/domain/repository"
	domsvc "PairPilot/internal/domain/service"
	"PairPilot/internal/services/advisory"
	applogger "PairPilot/pkg/logger"
)

// ErrNoProviderResponse is returned when no advisory provider produced
// usable output.
var ErrNoProviderResponse = errors.New("no advisory provider response")

// EnsembleVoter queries the advisory panel and merges the answers into one
// vote per candidate.
type EnsembleVoter struct {
	providers []domsvc.AdvisoryProvider
	reasoning domsvc.AdvisoryProvider
	timeout   time.Duration
	metrics   domrepo.Metrics
	l         *applogger.Logger
}

// NewEnsembleVoter builds a voter. reasoningProvider names the provider
// asked for batch reasoning; empty means the first provider.
func NewEnsembleVoter(providers []domsvc.AdvisoryProvider, reasoningProvider string, timeout time.Duration, metrics domrepo.Metrics, l *applogger.Logger) *EnsembleVoter {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	if l == nil {
		l = applogger.NewNop()
	}
	v := &EnsembleVoter{providers: providers, timeout: timeout, metrics: metrics, l: l}
	for _, p := range providers {
		if p.Name() == reasoningProvider {
			v.reasoning = p
			break
		}
	}
	if v.reasoning == nil && len(providers) > 0 {
		v.reasoning = providers[0]
	}
	return v
}

// Providers lists the provider names in query order.
func (v *EnsembleVoter) Providers() []string {
	names := make([]string, len(v.providers))
	for i, p := range v.providers {
		names[i] = p.Name()
	}
	return names
}

type providerAnswer struct {
	name  string
	votes map[string]models.ProviderVote
}

// GetEnsembleVotes returns one vote per candidate. Providers are queried
// concurrently; a provider that fails or answers unparseably contributes
// nothing. A candidate no provider voted on gets a NEUTRAL placeholder. The
// error is ErrNoProviderResponse when every provider failed; the returned
// map is complete either way.
func (v *EnsembleVoter) GetEnsembleVotes(ctx context.Context, candidates []string, metrics map[string]models.AggregatedMetrics, pctx models.PortfolioContext, slots int) (map[string]models.EnsembleVote, error) {
	out := make(map[string]models.EnsembleVote, len(candidates))
	if len(candidates) == 0 {
		return out, nil
	}

	answers := v.queryAll(ctx, advisory.EvaluationPrompt(candidates, metrics, pctx, slots))

	for _, pair := range candidates {
		key := normalizePair(pair)
		var pv []models.ProviderVote
		for _, a := range answers {
			if vote, ok := a.votes[key]; ok {
				pv = append(pv, vote)
			}
		}
		out[pair] = combineVotes(pair, pv)
	}
	if len(answers) == 0 {
		return out, ErrNoProviderResponse
	}
	return out, nil
}

func (v *EnsembleVoter) queryAll(ctx context.Context, prompt string) []providerAnswer {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	results := make([]*providerAnswer, len(v.providers))
	var wg sync.WaitGroup
	for i, p := range v.providers {
		wg.Add(1)
		go func(i int, p domsvc.AdvisoryProvider) {
			defer wg.Done()
			start := time.Now()
			text, err := p.Query(ctx, prompt)
			v.metrics.RecordLatency("advisory_query", time.Since(start).Seconds())
			if err != nil {
				v.metrics.RecordError("advisory_query")
				v.l.Warn("advisory provider failed", applogger.String("provider", p.Name()), applogger.Error(err))
				return
			}
			votes, err := advisory.ParseVotes(p.Name(), text)
			if err != nil {
				v.metrics.RecordError("advisory_parse")
				v.l.Warn("advisory response discarded", applogger.String("provider", p.Name()), applogger.Error(err))
				return
			}
			keyed := make(map[string]models.ProviderVote, len(votes))
			for pair, vote := range votes {
				keyed[normalizePair(pair)] = vote
			}
			results[i] = &providerAnswer{name: p.Name(), votes: keyed}
		}(i, p)
	}
	wg.Wait()

	answers := make([]providerAnswer, 0, len(results))
	for _, r := range results {
		if r != nil {
			answers = append(answers, *r)
		}
	}
	return answers
}

// combineVotes weights each provider's vote score by confidence/100 and
// averages across providers.
func combineVotes(pair string, votes []models.ProviderVote) models.EnsembleVote {
	if len(votes) == 0 {
		return models.EnsembleVote{
			Pair:          pair,
			Vote:          models.VoteNeutral,
			ProviderVotes: []models.ProviderVote{},
			Rationale:     "no advisory response",
			Placeholder:   true,
		}
	}

	var score, conf float64
	rationale := make([]string, 0, len(votes))
	for _, pv := range votes {
		score += pv.Vote.Score() * pv.Confidence / 100
		conf += pv.Confidence
		if pv.Rationale != "" {
			rationale = append(rationale, fmt.Sprintf("%s: %s", pv.Provider, pv.Rationale))
		}
	}
	n := float64(len(votes))
	score /= n
	return models.EnsembleVote{
		Pair:          pair,
		Vote:          models.VoteLabelForScore(score),
		Confidence:    conf / n,
		VoteScore:     score,
		ProviderVotes: votes,
		Rationale:     strings.Join(rationale, "; "),
	}
}

// GenerateSelectionReasoning asks the reasoning provider to justify the
// batch and falls back to a template built from composite scores.
func (v *EnsembleVoter) GenerateSelectionReasoning(ctx context.Context, selected, locked []string, fused, composite map[string]float64, votes map[string]models.EnsembleVote, weights models.FusionWeights) string {
	fallback := advisory.FallbackReasoning(selected, locked, composite)
	if v.reasoning == nil || len(selected) == 0 {
		return fallback
	}
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}
	text, err := v.reasoning.Query(ctx, advisory.ReasoningPrompt(selected, locked, fused, votes, weights))
	if err != nil || strings.TrimSpace(text) == "" {
		v.l.Warn("selection reasoning fell back to template",
			applogger.String("provider", v.reasoning.Name()),
			applogger.Error(err))
		return fallback
	}
	return strings.TrimSpace(text)
}

// HasVotes reports whether any vote came from a provider.
func HasVotes(votes map[string]models.EnsembleVote) bool {
	for _, v := range votes {
		if !v.Placeholder {
			return true
		}
	}
	return false
}

func normalizePair(p string) string {
	return strings.NewReplacer("/", "", "-", "", "_", "", " ", "").Replace(strings.ToUpper(strings.TrimSpace(p)))
}
