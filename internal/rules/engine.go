// Package rules provides the lexicon scoring engine and the CEL based
// result filter.
package rules

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/lexicon"
)

// Classify scores one booking against lex. It has no side effects and
// retains nothing after returning.
//
// Rules run in a fixed order:
// 1. Product: exact, case-sensitive displayName match on declared products
// 2. Bigram: phrase substring of the search text
// 3. Keyword: term or any variant, at most once per entry
// 4. Negation: term or variant, only if an impacted keyword was found in 3
// 5. Regex: case-insensitive pattern over the search text
//
// The booking is hazardous when score >= threshold.
func Classify(lex *lexicon.Lexicon, b *domain.Booking) (domain.ClassificationResult, error) {
	if err := validate(b); err != nil {
		return domain.ClassificationResult{}, err
	}

	text := strings.ToLower(b.Description + " " + b.InternalNotes)
	w := lex.Weights()

	result := domain.ClassificationResult{
		BookingID: b.ID,
		Reasons:   []string{},
	}
	add := func(weight float64, reason string) {
		result.Score += weight
		result.Reasons = append(result.Reasons, reason)
	}

	for _, name := range b.Products {
		if p, ok := lex.LookupProduct(name); ok && p.IsHazardous {
			add(w.Product, domain.ReasonProduct+name)
		}
	}

	for bg := range lex.Bigrams() {
		if bg.Matches(text) {
			add(w.Bigram, domain.ReasonBigram+bg.Phrase())
		}
	}

	found := make(map[string]bool)
	for kw := range lex.Keywords() {
		if !kw.Matches(text) {
			continue
		}
		weight := w.Consumer
		if kw.Technical() {
			weight = w.Technical
		}
		add(weight, domain.ReasonKeyword+kw.Term())
		found[kw.Term()] = true
	}

	for neg := range lex.Negations() {
		if neg.Matches(text) && neg.Impacts(found) {
			add(w.NegationSoft, domain.ReasonNegation+neg.Term())
		}
	}

	for re := range lex.Regex() {
		ok, err := re.Match(text)
		if err != nil {
			return domain.ClassificationResult{}, err
		}
		if ok {
			add(w.Regex, domain.ReasonRegex+re.Name())
		}
	}

	result.IsHazardous = result.Score >= w.Threshold
	return result, nil
}

func validate(b *domain.Booking) error {
	switch {
	case b == nil:
		return &domain.InvalidInputError{Field: "booking", Reason: "is required"}
	case b.ID == "":
		return &domain.InvalidInputError{Field: "id", Reason: "is required"}
	case b.Description == "":
		return &domain.InvalidInputError{Field: "description", Reason: "is required"}
	case !utf8.ValidString(b.Description):
		return &domain.InvalidInputError{Field: "description", Reason: "is not valid UTF-8 text"}
	case !utf8.ValidString(b.InternalNotes):
		return &domain.InvalidInputError{Field: "internalNotes", Reason: "is not valid UTF-8 text"}
	}
	return nil
}

// RecordError ties a batch failure to the record that caused it.
type RecordError struct {
	Index     int
	BookingID string
	Err       error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d (%s): %v", e.Index, e.BookingID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// ClassifyBatch classifies bookings in input order and stops at the first
// failure, returning no partial results.
func ClassifyBatch(lex *lexicon.Lexicon, bookings []domain.Booking) ([]domain.ClassificationResult, error) {
	results := make([]domain.ClassificationResult, 0, len(bookings))
	for i := range bookings {
		r, err := Classify(lex, &bookings[i])
		if err != nil {
			return nil, &RecordError{Index: i, BookingID: bookings[i].ID, Err: err}
		}
		results = append(results, r)
	}
	return results, nil
}

// ClassifyBatchBestEffort classifies every booking and records failures per
// item. The output has one item per input, in input order.
func ClassifyBatchBestEffort(lex *lexicon.Lexicon, bookings []domain.Booking) []domain.BatchItem {
	items := make([]domain.BatchItem, len(bookings))
	for i := range bookings {
		items[i] = ClassifyItem(lex, i, &bookings[i])
	}
	return items
}

// ClassifyItem classifies one booking into a batch item, capturing any
// failure as the item's error.
func ClassifyItem(lex *lexicon.Lexicon, index int, b *domain.Booking) domain.BatchItem {
	item := domain.BatchItem{Index: index, BookingID: b.ID}
	r, err := Classify(lex, b)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	item.Result = &r
	return item
}

// Engine classifies against whatever lexicon a Store currently publishes.
// Each call takes one snapshot, so a batch never straddles a reload.
type Engine struct {
	store *lexicon.Store
}

// NewEngine creates an engine bound to store.
func NewEngine(store *lexicon.Store) *Engine {
	return &Engine{store: store}
}

// Lexicon returns the current snapshot.
func (e *Engine) Lexicon() *lexicon.Lexicon {
	return e.store.Current()
}

// Store returns the backing store.
func (e *Engine) Store() *lexicon.Store {
	return e.store
}

// Classify scores one booking.
func (e *Engine) Classify(b *domain.Booking) (domain.ClassificationResult, error) {
	return Classify(e.store.Current(), b)
}

// ListProducts returns the current catalog projection.
func (e *Engine) ListProducts() []domain.ProductSummary {
	return e.store.Current().ListProducts()
}
