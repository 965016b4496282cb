package services

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/legis-office-backend/internal/cache"
	"github.com/tbourn/legis-office-backend/internal/domain"
	"github.com/tbourn/legis-office-backend/internal/repo"
)

func newSeqSvc(t *testing.T, db *gorm.DB) (*SequenceService, *TopicService) {
	t.Helper()
	topics := NewTopicService(db, cache.NewTopics(16, 0))
	return NewSequenceService(db, topics, "GEN"), topics
}

func seedSeqs(t *testing.T, db *gorm.DB, kind domain.Kind, year int, topicID string, seqs ...int) {
	t.Helper()
	for _, s := range seqs {
		w := domain.WorkItem{
			ID: uuid.NewString(), Kind: kind, Year: year, Sequence: s,
			Numero: domain.FormatNumero(year, s, "X"), TopicID: topicID,
			Status: domain.StatusReceived, CreatedBy: "seed",
		}
		if err := repo.InsertWorkItem(context.Background(), db, w); err != nil {
			t.Fatalf("seed %d: %v", s, err)
		}
	}
}

func sequencesOf(gaps []Gap) []int {
	out := make([]int, 0, len(gaps))
	for _, g := range gaps {
		out = append(out, g.Sequence)
	}
	return out
}

// ---------- computeGaps ----------

func TestComputeGaps(t *testing.T) {
	cases := []struct {
		in   []int
		want []int
	}{
		{[]int{1, 2, 5, 7}, []int{3, 4, 6}},
		{[]int{1, 2, 3}, []int{}},
		{[]int{4}, []int{1, 2, 3}},
		{[]int{1}, []int{}},
		{[]int{2, 3, 10}, []int{1, 4, 5, 6, 7, 8, 9}},
	}
	for _, c := range cases {
		got := sequencesOf(computeGaps(c.in, 2024, "GEN"))
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("computeGaps(%v) = %v; want %v", c.in, got, c.want)
		}
	}
}

func TestComputeGaps_NumeroFormat(t *testing.T) {
	gaps := computeGaps([]int{1, 2, 4}, 2024, "RNAR")
	if len(gaps) != 1 || gaps[0].Numero != "2024-0003-RNAR" {
		t.Fatalf("unexpected gaps %+v", gaps)
	}
}

// ---------- FindGaps ----------

func TestFindGaps(t *testing.T) {
	db := newSvcDB(t)
	s, topics := newSeqSvc(t, db)
	ctx := context.Background()
	topic, err := topics.Create(ctx, "Roads", "rnar")
	if err != nil {
		t.Fatalf("create topic: %v", err)
	}
	seedSeqs(t, db, domain.KindExpression, 2024, topic.ID, 1, 2, 5, 7)
	seedSeqs(t, db, domain.KindPetition, 2024, topic.ID, 3)

	res, err := s.FindGaps(ctx, domain.KindExpression, 2024, topic.ID)
	if err != nil {
		t.Fatalf("FindGaps: %v", err)
	}
	want := []Gap{
		{Sequence: 3, Numero: "2024-0003-RNAR"},
		{Sequence: 4, Numero: "2024-0004-RNAR"},
		{Sequence: 6, Numero: "2024-0006-RNAR"},
	}
	if !reflect.DeepEqual(res.Gaps, want) || res.MaxSequence != 7 || res.Reason != "" {
		t.Fatalf("unexpected result %+v", res)
	}

	// Petitions keep their own sequence space.
	pet, err := s.FindGaps(ctx, domain.KindPetition, 2024, topic.ID)
	if err != nil || !reflect.DeepEqual(sequencesOf(pet.Gaps), []int{1, 2}) {
		t.Fatalf("unexpected petition gaps %+v err=%v", pet, err)
	}
}

func TestFindGaps_NoGapsCarriesReason(t *testing.T) {
	db := newSvcDB(t)
	s, topics := newSeqSvc(t, db)
	ctx := context.Background()
	topic, _ := topics.Create(ctx, "Health", "")
	seedSeqs(t, db, domain.KindExpression, 2024, topic.ID, 1, 2, 3)

	res, err := s.FindGaps(ctx, domain.KindExpression, 2024, topic.ID)
	if err != nil {
		t.Fatalf("FindGaps: %v", err)
	}
	if len(res.Gaps) != 0 || res.Gaps == nil || res.Reason == "" {
		t.Fatalf("expected empty non-nil gaps with a reason, got %+v", res)
	}
}

func TestFindGaps_FallbackAbbreviation(t *testing.T) {
	db := newSvcDB(t)
	s, topics := newSeqSvc(t, db)
	ctx := context.Background()
	topic, _ := topics.Create(ctx, "Misc", "")
	seedSeqs(t, db, domain.KindExpression, 2024, topic.ID, 3)

	res, err := s.FindGaps(ctx, domain.KindExpression, 2024, topic.ID)
	if err != nil {
		t.Fatalf("FindGaps: %v", err)
	}
	if res.Gaps[0].Numero != "2024-0001-GEN" {
		t.Fatalf("expected fallback abbreviation, got %q", res.Gaps[0].Numero)
	}
}

func TestFindGaps_Errors(t *testing.T) {
	db := newSvcDB(t)
	s, topics := newSeqSvc(t, db)
	ctx := context.Background()
	topic, _ := topics.Create(ctx, "Roads", "RNAR")

	if _, err := s.FindGaps(ctx, domain.KindExpression, 2024, topic.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty year must be ErrNotFound, got %v", err)
	}
	if _, err := s.FindGaps(ctx, domain.KindExpression, 2024, "no-such-topic"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown topic must be ErrNotFound, got %v", err)
	}
	if _, err := s.FindGaps(ctx, domain.Kind("bills"), 2024, topic.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown kind must be ErrValidation, got %v", err)
	}
	if _, err := s.FindGaps(ctx, domain.KindExpression, 0, topic.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad year must be ErrValidation, got %v", err)
	}
	if _, err := s.FindGaps(ctx, domain.KindExpression, 2024, " "); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing topic must be ErrValidation, got %v", err)
	}
}

// ---------- Allocate ----------

func TestAllocate(t *testing.T) {
	db := newSvcDB(t)
	s, topics := newSeqSvc(t, db)
	ctx := context.Background()
	topic, _ := topics.Create(ctx, "Roads", "RNAR")
	seedSeqs(t, db, domain.KindExpression, 2024, topic.ID, 1, 2, 5, 7)

	item, err := s.Allocate(ctx, AllocateInput{
		Kind: domain.KindExpression, Year: 2024, TopicID: topic.ID,
		Sequence: 4, Numero: "2024-0004-RNAR", Subject: "pothole", CreatedBy: "staff",
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if item.Sequence != 4 || item.Numero != "2024-0004-RNAR" || item.Status != domain.StatusReceived {
		t.Fatalf("unexpected item %+v", item)
	}

	res, _ := s.FindGaps(ctx, domain.KindExpression, 2024, topic.ID)
	if !reflect.DeepEqual(sequencesOf(res.Gaps), []int{3, 6}) {
		t.Fatalf("allocated gap must disappear, got %v", sequencesOf(res.Gaps))
	}

	trail, _ := repo.ListAuditForEntity(ctx, db, string(domain.KindExpression), item.ID)
	if len(trail) != 1 || trail[0].Action != domain.AuditSequenceAllocated {
		t.Fatalf("expected allocation audit record, got %+v", trail)
	}
}

func TestAllocate_Rejections(t *testing.T) {
	db := newSvcDB(t)
	s, topics := newSeqSvc(t, db)
	ctx := context.Background()
	topic, _ := topics.Create(ctx, "Roads", "RNAR")
	seedSeqs(t, db, domain.KindExpression, 2024, topic.ID, 1, 2, 5, 7)

	base := AllocateInput{Kind: domain.KindExpression, Year: 2024, TopicID: topic.ID, CreatedBy: "staff"}
	cases := []struct {
		name string
		seq  int
		num  string
		want error
	}{
		{"taken", 5, "", ErrConflict},
		{"maximum", 7, "", ErrValidation},
		{"above maximum", 9, "", ErrValidation},
		{"zero", 0, "", ErrValidation},
		{"numero mismatch", 3, "2024-0003-XXX", ErrValidation},
	}
	for _, c := range cases {
		in := base
		in.Sequence, in.Numero = c.seq, c.num
		if _, err := s.Allocate(ctx, in); !errors.Is(err, c.want) {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, err)
		}
	}

	empty := base
	empty.Year, empty.Sequence = 2023, 1
	if _, err := s.Allocate(ctx, empty); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty year must be ErrNotFound, got %v", err)
	}
}

func TestAllocate_ConcurrentClaimsOneWinner(t *testing.T) {
	db := newSvcDB(t)
	s, topics := newSeqSvc(t, db)
	ctx := context.Background()
	topic, _ := topics.Create(ctx, "Roads", "RNAR")
	seedSeqs(t, db, domain.KindPetition, 2024, topic.ID, 1, 5)

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Allocate(ctx, AllocateInput{
				Kind: domain.KindPetition, Year: 2024, TopicID: topic.ID, Sequence: 3, CreatedBy: "staff",
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrConflict):
			t.Fatalf("losers must see ErrConflict, got %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one successful allocation, got %d", ok)
	}
	seqs, _ := repo.ListSequences(ctx, db, domain.KindPetition, 2024)
	if !reflect.DeepEqual(seqs, []int{1, 3, 5}) {
		t.Fatalf("unexpected stored sequences %v", seqs)
	}
}

// ---------- Create / Advance ----------

func TestCreate_RunningCounter(t *testing.T) {
	db := newSvcDB(t)
	s, topics := newSeqSvc(t, db)
	ctx := context.Background()
	topic, _ := topics.Create(ctx, "Roads", "RNAR")

	first, err := s.Create(ctx, CreateInput{Kind: domain.KindExpression, Year: 2025, TopicID: topic.ID, CreatedBy: "u"})
	if err != nil || first.Sequence != 1 || first.Numero != "2025-0001-RNAR" {
		t.Fatalf("first Create: %+v err=%v", first, err)
	}
	seedSeqs(t, db, domain.KindExpression, 2025, topic.ID, 9)
	next, err := s.Create(ctx, CreateInput{Kind: domain.KindExpression, Year: 2025, TopicID: topic.ID, CreatedBy: "u"})
	if err != nil || next.Sequence != 10 {
		t.Fatalf("expected max+1 = 10, got %+v err=%v", next, err)
	}
}

func TestAdvance(t *testing.T) {
	db := newSvcDB(t)
	s, topics := newSeqSvc(t, db)
	ctx := context.Background()
	topic, _ := topics.Create(ctx, "Roads", "RNAR")
	item, _ := s.Create(ctx, CreateInput{Kind: domain.KindPetition, Year: 2025, TopicID: topic.ID, CreatedBy: "u"})

	if _, err := s.Advance(ctx, domain.KindPetition, item.ID, domain.StatusDispatched, "", "u"); !errors.Is(err, ErrValidation) {
		t.Fatalf("skipping a stage must be ErrValidation, got %v", err)
	}
	got, err := s.Advance(ctx, domain.KindPetition, item.ID, domain.StatusAssigned, "advisor-1", "u")
	if err != nil || got.Status != domain.StatusAssigned || got.AssignedTo == nil || *got.AssignedTo != "advisor-1" {
		t.Fatalf("assign: %+v err=%v", got, err)
	}
	got, err = s.Advance(ctx, domain.KindPetition, item.ID, domain.StatusDispatched, "", "u")
	if err != nil || got.Status != domain.StatusDispatched {
		t.Fatalf("dispatch: %+v err=%v", got, err)
	}
	if _, err := s.Advance(ctx, domain.KindPetition, "missing", domain.StatusAssigned, "", "u"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListPage(t *testing.T) {
	db := newSvcDB(t)
	s, _ := newSeqSvc(t, db)
	ctx := context.Background()
	seedSeqs(t, db, domain.KindExpression, 2024, "t", 3, 1, 2)

	items, total, err := s.ListPage(ctx, domain.KindExpression, 2024, 2, 2)
	if err != nil || total != 3 || len(items) != 1 || items[0].Sequence != 3 {
		t.Fatalf("unexpected page: %+v total=%d err=%v", items, total, err)
	}
	empty, total, err := s.ListPage(ctx, domain.KindExpression, 1999, 0, 0)
	if err != nil || total != 0 || empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty page, got %+v total=%d err=%v", empty, total, err)
	}
}
