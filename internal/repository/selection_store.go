package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"PairPilot/internal/domain/models"
	domrepo "PairPilot/internal/domain/repository"
	pkgch "PairPilot/pkg/clickhouse"
	pkgkafka "PairPilot/pkg/kafka"
	applogger "PairPilot/pkg/logger"
)

// Audit stages.
const (
	StageLocked      = "locked"
	StageRejected    = "rejected"
	StageScored      = "scored"
	StageShortlisted = "shortlisted"
)

const auditColumns = 17

// AuditRow is one candidate's line in selection_audit.
type AuditRow struct {
	Pair              string
	Stage             string
	Selected          bool
	Locked            bool
	Composite         float64
	Sortino           float64
	Diversification   float64
	Volatility        float64
	Vote              string
	VoteConfidence    float64
	Fused             float64
	Rejection         string
	WeightStatistical float64
	WeightLLM         float64
}

// CHSelectionAudit implements SelectionAudit backed by ClickHouse.
type CHSelectionAudit struct {
	db    *sql.DB
	table string
}

// NewCHSelectionAudit writes to <database>.selection_audit.
func NewCHSelectionAudit(ch *pkgch.Client) *CHSelectionAudit {
	return &CHSelectionAudit{db: ch.DB(), table: ch.Database() + ".selection_audit"}
}

// StoreSelection inserts one row per locked, rejected and scored pair.
func (s *CHSelectionAudit) StoreSelection(ctx context.Context, res *models.PairSelectionResult) error {
	rows := AuditRows(res)
	if len(rows) == 0 {
		return nil
	}
	const chunkSize = 2000
	for start := 0; start < len(rows); start += chunkSize {
		end := min(start+chunkSize, len(rows))
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*auditColumns)
		for _, r := range rows[start:end] {
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args,
				res.RunID,
				res.SelectionID,
				res.Timestamp,
				r.Pair,
				r.Stage,
				boolToUInt8(r.Selected),
				boolToUInt8(r.Locked),
				r.Composite,
				r.Sortino,
				r.Diversification,
				r.Volatility,
				r.Vote,
				r.VoteConfidence,
				r.Fused,
				r.WeightStatistical,
				r.WeightLLM,
				r.Rejection,
			)
		}
		q := fmt.Sprintf(`INSERT INTO %s (run_id, selection_id, ts, pair, stage, selected, locked, composite, sortino,
diversification, volatility, vote, vote_confidence, fused, weight_statistical, weight_llm, rejection) VALUES %s`,
			s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert selection audit: %w", err)
		}
	}
	return nil
}

// AuditRows flattens a result into audit rows: locked pairs first, then
// scored candidates, then rejections, each group sorted by pair.
func AuditRows(res *models.PairSelectionResult) []AuditRow {
	if res == nil {
		return nil
	}
	var rows []AuditRow
	for _, p := range sortedCopy(res.LockedPairs) {
		rows = append(rows, AuditRow{Pair: p, Stage: StageLocked, Selected: true, Locked: true,
			WeightStatistical: res.Weights.Statistical, WeightLLM: res.Weights.LLM})
	}

	scored := make([]string, 0, len(res.Metrics))
	for p := range res.Metrics {
		scored = append(scored, p)
	}
	sort.Strings(scored)
	for _, p := range scored {
		m := res.Metrics[p]
		r := AuditRow{
			Pair:              p,
			Stage:             StageScored,
			Selected:          slices.Contains(res.NewlySelectedPairs, p),
			Composite:         m.CompositeScore,
			Sortino:           m.SortinoScore,
			Diversification:   m.DiversificationScore,
			Volatility:        m.VolatilityScore,
			Fused:             res.FusedScores[p],
			WeightStatistical: res.Weights.Statistical,
			WeightLLM:         res.Weights.LLM,
		}
		if slices.Contains(res.Shortlist, p) {
			r.Stage = StageShortlisted
		}
		if v, ok := res.Votes[p]; ok {
			r.Vote = string(v.Vote)
			r.VoteConfidence = v.Confidence
		}
		rows = append(rows, r)
	}

	rejected := make([]string, 0, len(res.Rejections))
	for p := range res.Rejections {
		rejected = append(rejected, p)
	}
	sort.Strings(rejected)
	for _, p := range rejected {
		rows = append(rows, AuditRow{Pair: p, Stage: StageRejected, Rejection: string(res.Rejections[p])})
	}
	return rows
}

func sortedCopy(xs []string) []string {
	out := slices.Clone(xs)
	sort.Strings(out)
	return out
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// KafkaSelectionPublisher publishes selection events keyed by selection id
// with the run id as trace header.
type KafkaSelectionPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaSelectionPublisher creates a Kafka publisher for topic.
func NewKafkaSelectionPublisher(producer *pkgkafka.Producer, topic string) *KafkaSelectionPublisher {
	return &KafkaSelectionPublisher{producer: producer, topic: topic}
}

func (p *KafkaSelectionPublisher) PublishSelection(ctx context.Context, ev models.SelectionEvent) error {
	return p.producer.Publish(ctx, p.topic, []byte(ev.SelectionID), ev, pkgkafka.TraceHeader(ev.RunID))
}

// MultiPublisher fans a selection event out to every publisher. All
// publishers are attempted; their errors are joined.
type MultiPublisher struct {
	pubs []domrepo.SelectionPublisher
	l    *applogger.Logger
}

// NewMultiPublisher ignores nil publishers.
func NewMultiPublisher(l *applogger.Logger, pubs ...domrepo.SelectionPublisher) *MultiPublisher {
	if l == nil {
		l = applogger.NewNop()
	}
	m := &MultiPublisher{l: l}
	for _, p := range pubs {
		if p != nil {
			m.pubs = append(m.pubs, p)
		}
	}
	return m
}

// Add appends a publisher.
func (m *MultiPublisher) Add(p domrepo.SelectionPublisher) {
	if p != nil {
		m.pubs = append(m.pubs, p)
	}
}

func (m *MultiPublisher) PublishSelection(ctx context.Context, ev models.SelectionEvent) error {
	var errs []error
	for _, p := range m.pubs {
		if err := p.PublishSelection(ctx, ev); err != nil {
			m.l.Warn("selection publish failed",
				applogger.String("selection_id", ev.SelectionID),
				applogger.String("publisher", fmt.Sprintf("%T", p)),
				applogger.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ domrepo.SelectionAudit     = (*CHSelectionAudit)(nil)
	_ domrepo.SelectionPublisher = (*KafkaSelectionPublisher)(nil)
	_ domrepo.SelectionPublisher = (*MultiPublisher)(nil)
)
