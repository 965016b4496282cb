// Package services – SequenceService
//
// This file implements SequenceService, which numbers expressions and
// petitions. Each kind keeps a yearly sequence space; an item's numero is
// "{year}-{sequence:04d}-{topic abbreviation}".
//
// Two ways to obtain a number:
//   - Create takes the running counter (max + 1).
//   - FindGaps lists unused integers below the yearly maximum, and Allocate
//     claims one of them after re-checking it against a fresh read.
//
// No lock is held between FindGaps and Allocate. The unique (year, sequence)
// index decides concurrent claims; the loser gets ErrConflict and may
// re-fetch and retry.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/domain"
	"github.com/tbourn/legis-office-backend/internal/repo"
	"github.com/tbourn/legis-office-backend/internal/utils"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AbbreviationSource resolves a topic's numero suffix.
type AbbreviationSource interface {
	Abbreviation(ctx context.Context, topicID string) (string, error)
}

// Gap is an unused sequence below the yearly maximum.
type Gap struct {
	Sequence int    `json:"sequence"`
	Numero   string `json:"numero"`
}

// GapsResult is the outcome of FindGaps. Reason explains an empty Gaps.
type GapsResult struct {
	Kind        domain.Kind `json:"kind"`
	Year        int         `json:"year"`
	TopicID     string      `json:"topic_id"`
	MaxSequence int         `json:"max_sequence"`
	Gaps        []Gap       `json:"gaps"`
	Reason      string      `json:"reason,omitempty"`
}

// AllocateInput names the gap to claim. Numero is optional; when present it
// must equal the numero FindGaps would report.
type AllocateInput struct {
	Kind      domain.Kind
	Year      int
	TopicID   string
	Sequence  int
	Numero    string
	Subject   string
	CreatedBy string
}

// CreateInput describes an item numbered with the running counter.
type CreateInput struct {
	Kind      domain.Kind
	Year      int
	TopicID   string
	Subject   string
	CreatedBy string
}

// SequenceService implements numbering and status changes for work items.
type SequenceService struct {
	DB                   *gorm.DB
	Topics               AbbreviationSource
	FallbackAbbreviation string
}

// NewSequenceService constructs a SequenceService.
func NewSequenceService(db *gorm.DB, topics AbbreviationSource, fallback string) *SequenceService {
	if fallback == "" {
		fallback = "GEN"
	}
	return &SequenceService{DB: db, Topics: topics, FallbackAbbreviation: fallback}
}

func seqTracer() trace.Tracer { return otel.Tracer("services/SequenceService") }

// FindGaps returns, in ascending order, every integer in [1, max) that no
// item of kind uses in year, where max is the year's greatest sequence.
// A year without items is ErrNotFound. It performs no writes.
func (s *SequenceService) FindGaps(ctx context.Context, kind domain.Kind, year int, topicID string) (*GapsResult, error) {
	ctx, span := seqTracer().Start(ctx, "FindGaps",
		trace.WithAttributes(
			attribute.String("kind", string(kind)),
			attribute.Int("year", year),
		),
	)
	defer span.End()

	if err := validateScope(kind, year, topicID); err != nil {
		return nil, err
	}
	abbr, err := s.abbreviation(ctx, topicID)
	if err != nil {
		return nil, err
	}
	seqs, err := s.sequences(ctx, kind, year)
	if err != nil {
		return nil, err
	}

	res := &GapsResult{
		Kind:        kind,
		Year:        year,
		TopicID:     topicID,
		MaxSequence: seqs[len(seqs)-1],
		Gaps:        computeGaps(seqs, year, abbr),
	}
	if len(res.Gaps) == 0 {
		res.Reason = "no gaps below the current maximum"
	}
	return res, nil
}

// computeGaps lists the integers of [1, max(sorted)) absent from sorted.
// sorted must be ascending and non-empty.
func computeGaps(sorted []int, year int, abbr string) []Gap {
	max := sorted[len(sorted)-1]
	present := make(map[int]struct{}, len(sorted))
	for _, v := range sorted {
		present[v] = struct{}{}
	}
	gaps := make([]Gap, 0)
	for i := 1; i < max; i++ {
		if _, ok := present[i]; ok {
			continue
		}
		gaps = append(gaps, Gap{Sequence: i, Numero: domain.FormatNumero(year, i, abbr)})
	}
	return gaps
}

// Allocate claims a gap as a new item with a fixed sequence and numero.
//
// The gap set is re-read first: a sequence outside [1, max) or a numero that
// does not match is ErrValidation; a sequence that is now taken, or that is
// claimed concurrently during the insert, is ErrConflict.
func (s *SequenceService) Allocate(ctx context.Context, in AllocateInput) (item *domain.WorkItem, err error) {
	ctx, span := seqTracer().Start(ctx, "Allocate",
		trace.WithAttributes(
			attribute.String("kind", string(in.Kind)),
			attribute.Int("year", in.Year),
			attribute.Int("sequence", in.Sequence),
		),
	)
	defer span.End()
	defer func() { sequenceOps.WithLabelValues(string(in.Kind), "gap", resultLabel(err)).Inc() }()

	if err := validateScope(in.Kind, in.Year, in.TopicID); err != nil {
		return nil, err
	}
	abbr, err := s.abbreviation(ctx, in.TopicID)
	if err != nil {
		return nil, err
	}
	seqs, err := s.sequences(ctx, in.Kind, in.Year)
	if err != nil {
		return nil, err
	}

	max := seqs[len(seqs)-1]
	if in.Sequence < 1 || in.Sequence >= max {
		return nil, validationf("sequence %d is not below the current maximum %d", in.Sequence, max)
	}
	for _, v := range seqs {
		if v == in.Sequence {
			return nil, conflictf("sequence %d already claimed", in.Sequence)
		}
	}
	numero := domain.FormatNumero(in.Year, in.Sequence, abbr)
	if in.Numero = strings.TrimSpace(in.Numero); in.Numero != "" && in.Numero != numero {
		return nil, validationf("numero %q does not match %q", in.Numero, numero)
	}

	w := domain.WorkItem{
		ID:        uuid.NewString(),
		Kind:      in.Kind,
		Year:      in.Year,
		Sequence:  in.Sequence,
		Numero:    numero,
		TopicID:   in.TopicID,
		Subject:   strings.TrimSpace(in.Subject),
		Status:    domain.StatusReceived,
		CreatedBy: in.CreatedBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.insert(ctx, w); err != nil {
		return nil, err
	}
	audit(ctx, s.DB, in.CreatedBy, domain.AuditSequenceAllocated, string(in.Kind), w.ID, numero)
	return &w, nil
}

// Create numbers a new item with the running counter (max + 1, or 1 for the
// first item of the year).
func (s *SequenceService) Create(ctx context.Context, in CreateInput) (item *domain.WorkItem, err error) {
	ctx, span := seqTracer().Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("kind", string(in.Kind)),
			attribute.Int("year", in.Year),
		),
	)
	defer span.End()
	defer func() { sequenceOps.WithLabelValues(string(in.Kind), "next", resultLabel(err)).Inc() }()

	if err := validateScope(in.Kind, in.Year, in.TopicID); err != nil {
		return nil, err
	}
	abbr, err := s.abbreviation(ctx, in.TopicID)
	if err != nil {
		return nil, err
	}
	max, _, err := repo.MaxSequence(ctx, s.DB, in.Kind, in.Year)
	if err != nil {
		return nil, storeErr(ctx, "sequence.max", err, map[string]string{"kind": string(in.Kind)})
	}

	next := max + 1
	w := domain.WorkItem{
		ID:        uuid.NewString(),
		Kind:      in.Kind,
		Year:      in.Year,
		Sequence:  next,
		Numero:    domain.FormatNumero(in.Year, next, abbr),
		TopicID:   in.TopicID,
		Subject:   strings.TrimSpace(in.Subject),
		Status:    domain.StatusReceived,
		CreatedBy: in.CreatedBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.insert(ctx, w); err != nil {
		return nil, err
	}
	audit(ctx, s.DB, in.CreatedBy, domain.AuditSequenceCreated, string(in.Kind), w.ID, w.Numero)
	return &w, nil
}

// Get returns one item of kind.
func (s *SequenceService) Get(ctx context.Context, kind domain.Kind, id string) (*domain.WorkItem, error) {
	w, err := repo.GetWorkItem(ctx, s.DB, kind, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFoundf("%s %s not found", kind, id)
	}
	if err != nil {
		return nil, storeErr(ctx, "sequence.get", err, map[string]string{"kind": string(kind), "id": id})
	}
	return w, nil
}

// ListPage returns a page of items of kind in year, ordered by sequence.
func (s *SequenceService) ListPage(ctx context.Context, kind domain.Kind, year, page, pageSize int) ([]domain.WorkItem, int64, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := utils.Page{Number: page, Size: pageSize}.Offset()

	total, err := repo.CountWorkItems(ctx, s.DB, kind, year)
	if err != nil {
		return nil, 0, storeErr(ctx, "sequence.count", err, map[string]string{"kind": string(kind)})
	}
	if total == 0 {
		return []domain.WorkItem{}, 0, nil
	}
	items, err := repo.ListWorkItemsPage(ctx, s.DB, kind, year, offset, pageSize)
	if err != nil {
		return nil, 0, storeErr(ctx, "sequence.list", err, map[string]string{"kind": string(kind)})
	}
	return items, total, nil
}

// Stats returns the row count and latest update time of kind in year, used
// for list ETags.
func (s *SequenceService) Stats(ctx context.Context, kind domain.Kind, year int) (int64, *time.Time, error) {
	return repo.WorkItemsStats(ctx, s.DB, kind, year)
}

// Advance moves an item one stage forward (received -> assigned ->
// dispatched). Assigning may record who the item is assigned to. A concurrent
// change of the same item is ErrConflict.
func (s *SequenceService) Advance(ctx context.Context, kind domain.Kind, id string, to domain.WorkStatus, assignee, actor string) (*domain.WorkItem, error) {
	ctx, span := seqTracer().Start(ctx, "Advance",
		trace.WithAttributes(
			attribute.String("kind", string(kind)),
			attribute.String("status", string(to)),
		),
	)
	defer span.End()

	cur, err := s.Get(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	if !cur.Status.CanAdvanceTo(to) {
		return nil, validationf("cannot move from %s to %s", cur.Status, to)
	}
	var who *string
	if assignee = strings.TrimSpace(assignee); assignee != "" {
		who = &assignee
	}

	n, err := repo.AdvanceWorkStatus(ctx, s.DB, kind, id, cur.Status, to, who)
	if err != nil {
		return nil, storeErr(ctx, "sequence.advance", err, map[string]string{"kind": string(kind), "id": id})
	}
	if n == 0 {
		return nil, conflictf("%s %s changed concurrently", kind, id)
	}
	audit(ctx, s.DB, actor, domain.AuditStatusChanged, string(kind), id, string(cur.Status)+"->"+string(to))
	return s.Get(ctx, kind, id)
}

// sequences returns the sorted sequences of year, or ErrNotFound when the
// year has none.
func (s *SequenceService) sequences(ctx context.Context, kind domain.Kind, year int) ([]int, error) {
	seqs, err := repo.ListSequences(ctx, s.DB, kind, year)
	if err != nil {
		return nil, storeErr(ctx, "sequence.list", err, map[string]string{"kind": string(kind)})
	}
	if len(seqs) == 0 {
		return nil, notFoundf("no entity issued for this year")
	}
	return seqs, nil
}

func (s *SequenceService) insert(ctx context.Context, w domain.WorkItem) error {
	err := repo.InsertWorkItem(ctx, s.DB, w)
	if errors.Is(err, repo.ErrDuplicate) {
		return conflictf("sequence %d was claimed concurrently; re-fetch and retry", w.Sequence)
	}
	if err != nil {
		return storeErr(ctx, "sequence.insert", err, map[string]string{"kind": string(w.Kind), "numero": w.Numero})
	}
	return nil
}

func (s *SequenceService) abbreviation(ctx context.Context, topicID string) (string, error) {
	if s.Topics != nil {
		abbr, err := s.Topics.Abbreviation(ctx, topicID)
		if err != nil {
			return "", err
		}
		if abbr != "" {
			return abbr, nil
		}
	}
	return s.FallbackAbbreviation, nil
}

func validateScope(kind domain.Kind, year int, topicID string) error {
	if _, ok := domain.ParseKind(string(kind)); !ok {
		return validationf("unknown kind %q", kind)
	}
	if year < 1 || year > 9999 {
		return validationf("year %d out of range", year)
	}
	if strings.TrimSpace(topicID) == "" {
		return validationf("topic id is required")
	}
	return nil
}
