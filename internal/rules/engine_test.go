package rules

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/lexicon"
)

const testLexicon = `{
  "version": "test",
  "weights": {"product": 5, "bigram": 3, "technical": 4, "consumer": 2, "regex": 6, "negation_soft": -3, "threshold": 5},
  "products": [
    {"id": "p1", "displayName": "Industrial Solvent", "keywords": ["solvent"], "isHazardous": true},
    {"id": "p2", "displayName": "Books", "keywords": ["books"], "isHazardous": false}
  ],
  "keywords": [
    {"term": "asbestos", "type": "technical", "variants": ["chrysotile"]},
    {"term": "paint", "type": "consumer", "variants": ["paints", "varnish"]}
  ],
  "bigrams": [{"phrase": "paint thinner"}],
  "negations": [
    {"term": "asbestos-free", "impacts": ["asbestos"]},
    {"term": "empty", "impacts": ["propane"]}
  ],
  "regex": [{"name": "UN number", "pattern": "\\bun\\s?\\d{4}\\b"}]
}`

func mustLexicon(t *testing.T, doc string, opts ...lexicon.Option) *lexicon.Lexicon {
	t.Helper()
	lex, err := lexicon.Load([]byte(doc), lexicon.FormatJSON, opts...)
	if err != nil {
		t.Fatalf("failed to load lexicon: %v", err)
	}
	return lex
}

func TestClassify(t *testing.T) {
	lex := mustLexicon(t, testLexicon)

	tests := []struct {
		name      string
		booking   domain.Booking
		score     float64
		hazardous bool
		reasons   []string
	}{
		{
			name:      "negation offsets impacted keyword",
			booking:   domain.Booking{ID: "b1", Description: "contains asbestos-free insulation"},
			score:     1,
			hazardous: false,
			reasons:   []string{"Keyword: asbestos", "Negation Applied: asbestos-free"},
		},
		{
			name:      "hazardous product meets threshold",
			booking:   domain.Booking{ID: "b2", Description: "pallet", Products: []string{"Industrial Solvent"}},
			score:     5,
			hazardous: true,
			reasons:   []string{"Product Match: Industrial Solvent"},
		},
		{
			name:      "product match is case sensitive",
			booking:   domain.Booking{ID: "b3", Description: "pallet", Products: []string{"industrial solvent"}},
			score:     0,
			hazardous: false,
			reasons:   []string{},
		},
		{
			name:      "non hazardous product adds nothing",
			booking:   domain.Booking{ID: "b4", Description: "pallet", Products: []string{"Books", "Unknown"}},
			score:     0,
			hazardous: false,
			reasons:   []string{},
		},
		{
			name:      "keyword counts once across variants",
			booking:   domain.Booking{ID: "b5", Description: "paints and varnish", InternalNotes: "more paint"},
			score:     2,
			hazardous: false,
			reasons:   []string{"Keyword: paint"},
		},
		{
			name:      "negation without impacted keyword has no effect",
			booking:   domain.Booking{ID: "b6", Description: "the box is empty"},
			score:     0,
			hazardous: false,
			reasons:   []string{},
		},
		{
			name:      "rule order and case folding",
			booking:   domain.Booking{ID: "b7", Description: "PAINT THINNER", InternalNotes: "labelled UN 1263", Products: []string{"Industrial Solvent"}},
			score:     5 + 3 + 2 + 6,
			hazardous: true,
			reasons: []string{
				"Product Match: Industrial Solvent",
				"Bigram: paint thinner",
				"Keyword: paint",
				"Regex Match: UN number",
			},
		},
		{
			name:      "notes joined with a space",
			booking:   domain.Booking{ID: "b8", Description: "paint", InternalNotes: "thinner"},
			score:     3 + 2,
			hazardous: true,
			reasons:   []string{"Bigram: paint thinner", "Keyword: paint"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(lex, &tt.booking)
			if err != nil {
				t.Fatalf("classify failed: %v", err)
			}
			if got.BookingID != tt.booking.ID {
				t.Errorf("expected bookingId %s, got %s", tt.booking.ID, got.BookingID)
			}
			if got.Score != tt.score {
				t.Errorf("expected score %.2f, got %.2f", tt.score, got.Score)
			}
			if got.IsHazardous != tt.hazardous {
				t.Errorf("expected isHazardous %v, got %v", tt.hazardous, got.IsHazardous)
			}
			if !reflect.DeepEqual(got.Reasons, tt.reasons) {
				t.Errorf("expected reasons %q, got %q", tt.reasons, got.Reasons)
			}
		})
	}
}

func TestClassifyThresholdBoundary(t *testing.T) {
	doc := `{"weights": {"consumer": 2, "threshold": 4}, "products": [], "bigrams": [], "negations": [], "regex": [],
	  "keywords": [{"term": "bleach", "type": "consumer"}, {"term": "paint", "type": "consumer"}]}`
	lex := mustLexicon(t, doc)

	at, _ := Classify(lex, &domain.Booking{ID: "a", Description: "bleach and paint"})
	if !at.IsHazardous {
		t.Errorf("score %.1f equal to threshold should be hazardous", at.Score)
	}

	below, _ := Classify(lex, &domain.Booking{ID: "b", Description: "bleach only"})
	if below.IsHazardous {
		t.Errorf("score %.1f below threshold should not be hazardous", below.Score)
	}
}

func TestClassifyEmptyLexicon(t *testing.T) {
	doc := `{"weights": {"threshold": 1}, "products": [], "keywords": [], "bigrams": [], "negations": [], "regex": []}`
	lex := mustLexicon(t, doc)

	got, err := Classify(lex, &domain.Booking{ID: "x", Description: "acetone drums", Products: []string{"Anything"}})
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	if got.Score != 0 || got.IsHazardous {
		t.Errorf("expected baseline non-hazardous result, got %+v", got)
	}
	if got.Reasons == nil {
		t.Error("reasons must never be nil")
	}
}

func TestClassifyInvalidInput(t *testing.T) {
	lex := mustLexicon(t, testLexicon)

	tests := []struct {
		name    string
		booking *domain.Booking
		field   string
	}{
		{"nil booking", nil, "booking"},
		{"missing id", &domain.Booking{Description: "x"}, "id"},
		{"missing description", &domain.Booking{ID: "x"}, "description"},
		{"invalid description", &domain.Booking{ID: "x", Description: "bad \xff"}, "description"},
		{"invalid notes", &domain.Booking{ID: "x", Description: "ok", InternalNotes: "\xfe"}, "internalNotes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Classify(lex, tt.booking)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected invalid input error, got %v", err)
			}
			var inErr *domain.InvalidInputError
			if !errors.As(err, &inErr) || inErr.Field != tt.field {
				t.Errorf("expected field %s, got %v", tt.field, err)
			}
		})
	}
}

func TestClassifyLazyRegexError(t *testing.T) {
	doc := `{"weights": {"threshold": 1}, "products": [], "keywords": [], "bigrams": [], "negations": [],
	  "regex": [{"name": "broken", "pattern": "(open"}]}`
	lex := mustLexicon(t, doc, lexicon.WithLazyRegex())

	_, err := Classify(lex, &domain.Booking{ID: "x", Description: "anything"})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	lex := mustLexicon(t, testLexicon)
	b := &domain.Booking{ID: "d", Description: "asbestos-free paint thinner, UN1993", InternalNotes: "chrysotile", Products: []string{"Industrial Solvent"}}

	first, err := Classify(lex, b)
	if err != nil {
		t.Fatalf("classify failed: %v", err)
	}
	for i := 0; i < 50; i++ {
		got, _ := Classify(lex, b)
		if !reflect.DeepEqual(first, got) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, got)
		}
	}
}

func TestClassifyConcurrent(t *testing.T) {
	lex := mustLexicon(t, testLexicon)
	want, _ := Classify(lex, &domain.Booking{ID: "c", Description: "paint thinner UN 1263"})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := Classify(lex, &domain.Booking{ID: "c", Description: "paint thinner UN 1263"})
			if err != nil || !reflect.DeepEqual(want, got) {
				t.Errorf("concurrent classify mismatch: %v %+v", err, got)
			}
		}()
	}
	wg.Wait()
}

func TestClassifyBatch(t *testing.T) {
	lex := mustLexicon(t, testLexicon)

	bookings := make([]domain.Booking, 20)
	for i := range bookings {
		bookings[i] = domain.Booking{ID: fmt.Sprintf("bk-%02d", i), Description: "asbestos"}
	}

	results, err := ClassifyBatch(lex, bookings)
	if err != nil {
		t.Fatalf("batch failed: %v", err)
	}
	if len(results) != len(bookings) {
		t.Fatalf("expected %d results, got %d", len(bookings), len(results))
	}
	for i, r := range results {
		if r.BookingID != bookings[i].ID {
			t.Errorf("result %d out of order: %s", i, r.BookingID)
		}
	}
}

func TestClassifyBatchFailFast(t *testing.T) {
	lex := mustLexicon(t, testLexicon)
	bookings := []domain.Booking{
		{ID: "ok", Description: "fine"},
		{ID: "bad"},
		{ID: "ok2", Description: "fine"},
	}

	results, err := ClassifyBatch(lex, bookings)
	if results != nil {
		t.Errorf("fail-fast must not return partial results, got %d", len(results))
	}
	var recErr *RecordError
	if !errors.As(err, &recErr) {
		t.Fatalf("expected record error, got %v", err)
	}
	if recErr.Index != 1 || recErr.BookingID != "bad" {
		t.Errorf("unexpected record error: %+v", recErr)
	}
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Error("record error should unwrap to invalid input")
	}
}

func TestClassifyBatchBestEffort(t *testing.T) {
	lex := mustLexicon(t, testLexicon)
	bookings := []domain.Booking{
		{ID: "a", Description: "Industrial things", Products: []string{"Industrial Solvent"}},
		{ID: "b"},
		{ID: "c", Description: "books"},
	}

	items := ClassifyBatchBestEffort(lex, bookings)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].Failed() || !items[0].Result.IsHazardous {
		t.Errorf("item 0 should be hazardous: %+v", items[0])
	}
	if !items[1].Failed() || items[1].Error == "" || items[1].Index != 1 {
		t.Errorf("item 1 should carry an error: %+v", items[1])
	}
	if items[2].Failed() || items[2].Result.IsHazardous {
		t.Errorf("item 2 should be clean: %+v", items[2])
	}
}

func TestEngineUsesCurrentLexicon(t *testing.T) {
	store := lexicon.NewStaticStore(mustLexicon(t, testLexicon))
	engine := NewEngine(store)

	b := &domain.Booking{ID: "e", Description: "asbestos"}
	before, _ := engine.Classify(b)
	if before.Score != 4 {
		t.Fatalf("expected score 4, got %.1f", before.Score)
	}

	store.Swap(mustLexicon(t, `{"weights": {"technical": 10, "threshold": 5}, "products": [], "bigrams": [], "negations": [], "regex": [],
	  "keywords": [{"term": "asbestos", "type": "technical"}]}`))

	after, _ := engine.Classify(b)
	if after.Score != 10 || !after.IsHazardous {
		t.Errorf("expected swapped lexicon to apply, got %+v", after)
	}
	if len(engine.ListProducts()) != 0 {
		t.Error("expected empty catalog after swap")
	}
}
