// Package lexicon holds the immutable, compiled rule set that drives
// classification, together with its loaders and the swappable store the
// service reads it from.
package lexicon

import (
	"iter"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/opensource-finance/hazmat/internal/domain"
)

// Lexicon is a compiled rule set. It is never mutated after Load returns and
// is safe for concurrent use.
type Lexicon struct {
	version string
	notes   string
	weights domain.Weights

	products     []domain.Product
	productIndex map[string]int // displayName -> first catalog position

	keywords  []KeywordRule
	bigrams   []PhraseRule
	negations []NegationRule
	regex     []*RegexRule
}

// KeywordRule is a compiled keyword entry.
type KeywordRule struct {
	term      string
	technical bool
	needles   []string // lowercased term followed by lowercased variants
}

// Term returns the keyword term as written in the document.
func (k KeywordRule) Term() string { return k.term }

// Technical reports whether the keyword carries the technical weight.
func (k KeywordRule) Technical() bool { return k.technical }

// Matches reports whether the term or any variant occurs in text.
// text must already be lowercased.
func (k KeywordRule) Matches(text string) bool { return containsAny(text, k.needles) }

// PhraseRule is a compiled bigram entry.
type PhraseRule struct {
	phrase string
	needle string
}

// Phrase returns the phrase as written in the document.
func (p PhraseRule) Phrase() string { return p.phrase }

// Matches reports whether the phrase occurs in text.
func (p PhraseRule) Matches(text string) bool { return strings.Contains(text, p.needle) }

// NegationRule is a compiled negation entry.
type NegationRule struct {
	term    string
	needles []string
	impacts []string
}

// Term returns the negation term as written in the document.
func (n NegationRule) Term() string { return n.term }

// Matches reports whether the term or any variant occurs in text.
func (n NegationRule) Matches(text string) bool { return containsAny(text, n.needles) }

// Impacts reports whether any impacted keyword term is in found.
func (n NegationRule) Impacts(found map[string]bool) bool {
	for _, term := range n.impacts {
		if found[term] {
			return true
		}
	}
	return false
}

// RegexRule is a named pattern compiled case-insensitively. Compilation
// happens at most once; the outcome, including a failure, is cached.
type RegexRule struct {
	name    string
	pattern string

	once sync.Once
	re   *regexp.Regexp
	err  error
}

// Name returns the rule name.
func (r *RegexRule) Name() string { return r.name }

// Pattern returns the source pattern.
func (r *RegexRule) Pattern() string { return r.pattern }

// Match reports whether the pattern matches text. An unparseable pattern
// yields a *domain.ConfigurationError.
func (r *RegexRule) Match(text string) (bool, error) {
	re, err := r.compiled()
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}

func (r *RegexRule) compiled() (*regexp.Regexp, error) {
	r.once.Do(func() {
		re, err := regexp.Compile("(?i)" + r.pattern)
		if err != nil {
			r.err = &domain.ConfigurationError{
				Section: "regex",
				Reason:  "invalid pattern " + r.name,
				Err:     err,
			}
			return
		}
		r.re = re
	})
	return r.re, r.err
}

// Version returns the document version, if any.
func (l *Lexicon) Version() string { return l.version }

// Notes returns the free-form document notes.
func (l *Lexicon) Notes() string { return l.notes }

// Weights returns the weights table.
func (l *Lexicon) Weights() domain.Weights { return l.weights }

// LookupProduct finds the catalog entry whose display name equals name
// exactly. The first entry wins when display names repeat.
func (l *Lexicon) LookupProduct(name string) (domain.Product, bool) {
	i, ok := l.productIndex[name]
	if !ok {
		return domain.Product{}, false
	}
	return l.products[i], true
}

// Keywords iterates keyword rules in document order.
func (l *Lexicon) Keywords() iter.Seq[KeywordRule] { return slices.Values(l.keywords) }

// Bigrams iterates phrase rules in document order.
func (l *Lexicon) Bigrams() iter.Seq[PhraseRule] { return slices.Values(l.bigrams) }

// Negations iterates negation rules in document order.
func (l *Lexicon) Negations() iter.Seq[NegationRule] { return slices.Values(l.negations) }

// Regex iterates regex rules in document order.
func (l *Lexicon) Regex() iter.Seq[*RegexRule] { return slices.Values(l.regex) }

// ListProducts returns the public projection of the catalog, in order.
func (l *Lexicon) ListProducts() []domain.ProductSummary {
	out := make([]domain.ProductSummary, 0, len(l.products))
	for _, p := range l.products {
		out = append(out, domain.ProductSummary{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			IsHazardous: p.IsHazardous,
		})
	}
	return out
}

// Summary describes the lexicon for status endpoints.
func (l *Lexicon) Summary() domain.LexiconSummary {
	return domain.LexiconSummary{
		Version:   l.version,
		Notes:     l.notes,
		Products:  len(l.products),
		Keywords:  len(l.keywords),
		Bigrams:   len(l.bigrams),
		Negations: len(l.negations),
		Regex:     len(l.regex),
	}
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
