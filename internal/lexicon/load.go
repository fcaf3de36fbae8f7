package lexicon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/hazmat/internal/domain"
)

// Format is a lexicon document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ParseFormat maps a format name or file extension to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported lexicon format %q", s)
	}
}

// FormatFromPath picks the format by file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Option configures Load.
type Option func(*options)

type options struct {
	lazyRegex bool
}

// WithLazyRegex defers compilation of each regex rule to its first use.
// Invalid patterns then surface from classification instead of Load.
func WithLazyRegex() Option {
	return func(o *options) { o.lazyRegex = true }
}

// WithLazy toggles lazy regex compilation from configuration.
func WithLazy(lazy bool) Option {
	return func(o *options) { o.lazyRegex = lazy }
}

// Pointer fields tell a missing section apart from an empty one.
type document struct {
	Version   string              `json:"version" yaml:"version" toml:"version"`
	Notes     string              `json:"notes" yaml:"notes" toml:"notes"`
	Weights   *weightsDoc         `json:"weights" yaml:"weights" toml:"weights"`
	Products  *[]domain.Product   `json:"products" yaml:"products" toml:"products"`
	Keywords  *[]domain.Keyword   `json:"keywords" yaml:"keywords" toml:"keywords"`
	Bigrams   *[]domain.Bigram    `json:"bigrams" yaml:"bigrams" toml:"bigrams"`
	Negations *[]domain.Negation  `json:"negations" yaml:"negations" toml:"negations"`
	Regex     *[]domain.RegexRule `json:"regex" yaml:"regex" toml:"regex"`
}

type weightsDoc struct {
	Product      *float64 `json:"product" yaml:"product" toml:"product"`
	Bigram       *float64 `json:"bigram" yaml:"bigram" toml:"bigram"`
	Technical    *float64 `json:"technical" yaml:"technical" toml:"technical"`
	Consumer     *float64 `json:"consumer" yaml:"consumer" toml:"consumer"`
	Regex        *float64 `json:"regex" yaml:"regex" toml:"regex"`
	NegationSoft *float64 `json:"negation_soft" yaml:"negation_soft" toml:"negation_soft"`
	NegationAlt  *float64 `json:"negationSoft" yaml:"negationSoft" toml:"negationSoft"`
	Threshold    *float64 `json:"threshold" yaml:"threshold" toml:"threshold"`
}

// LoadFile reads and compiles the lexicon at path, picking the decoder by
// file extension.
func LoadFile(path string, opts ...Option) (*Lexicon, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, &domain.ConfigurationError{Section: "document", Reason: err.Error()}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon %s: %w", path, err)
	}
	return Load(data, format, opts...)
}

// Load decodes and compiles a lexicon document.
func Load(data []byte, format Format, opts ...Option) (*Lexicon, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	doc, err := decode(data, format)
	if err != nil {
		return nil, &domain.ConfigurationError{Section: "document", Reason: "cannot decode " + string(format), Err: err}
	}
	if err := doc.validate(); err != nil {
		return nil, err
	}

	lex := compile(doc)
	if !o.lazyRegex {
		for _, r := range lex.regex {
			if _, err := r.compiled(); err != nil {
				return nil, err
			}
		}
	}
	return lex, nil
}

func decode(data []byte, format Format) (*document, error) {
	var doc document
	switch format {
	case FormatJSON, "":
		if err := json.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported lexicon format %q", format)
	}
	return &doc, nil
}

func (d *document) validate() error {
	var missing []string
	if d.Weights == nil {
		missing = append(missing, "weights")
	}
	if d.Products == nil {
		missing = append(missing, "products")
	}
	if d.Keywords == nil {
		missing = append(missing, "keywords")
	}
	if d.Bigrams == nil {
		missing = append(missing, "bigrams")
	}
	if d.Negations == nil {
		missing = append(missing, "negations")
	}
	if d.Regex == nil {
		missing = append(missing, "regex")
	}
	if len(missing) > 0 {
		return &domain.ConfigurationError{
			Section: strings.Join(missing, ", "),
			Reason:  "required section missing",
		}
	}

	w := d.Weights
	if w.Threshold == nil {
		return &domain.ConfigurationError{Section: "weights", Reason: "threshold is required"}
	}
	fields := []struct {
		name string
		v    *float64
	}{
		{"product", w.Product},
		{"bigram", w.Bigram},
		{"technical", w.Technical},
		{"consumer", w.Consumer},
		{"regex", w.Regex},
		{"negation_soft", w.NegationSoft},
		{"negationSoft", w.NegationAlt},
		{"threshold", w.Threshold},
	}
	for _, f := range fields {
		if f.v != nil && (math.IsNaN(*f.v) || math.IsInf(*f.v, 0)) {
			return &domain.ConfigurationError{Section: "weights", Reason: f.name + " is not a finite number"}
		}
	}
	return nil
}

func compile(d *document) *Lexicon {
	lex := &Lexicon{
		version: d.Version,
		notes:   d.Notes,
		weights: d.Weights.resolve(),
	}

	lex.products = make([]domain.Product, 0, len(*d.Products))
	lex.productIndex = make(map[string]int, len(*d.Products))
	for _, p := range *d.Products {
		if _, dup := lex.productIndex[p.DisplayName]; !dup {
			lex.productIndex[p.DisplayName] = len(lex.products)
		}
		lex.products = append(lex.products, p)
	}

	for _, k := range *d.Keywords {
		lex.keywords = append(lex.keywords, KeywordRule{
			term:      k.Term,
			technical: k.Type == domain.KeywordTechnical,
			needles:   needles(k.Term, k.Variants),
		})
	}
	for _, b := range *d.Bigrams {
		lex.bigrams = append(lex.bigrams, PhraseRule{
			phrase: b.Phrase,
			needle: strings.ToLower(b.Phrase),
		})
	}
	for _, n := range *d.Negations {
		lex.negations = append(lex.negations, NegationRule{
			term:    n.Term,
			needles: needles(n.Term, n.Variants),
			impacts: n.Impacts,
		})
	}
	for _, r := range *d.Regex {
		lex.regex = append(lex.regex, &RegexRule{name: r.Name, pattern: r.Pattern})
	}
	return lex
}

func (w *weightsDoc) resolve() domain.Weights {
	get := func(v *float64) float64 {
		if v == nil {
			return 0
		}
		return *v
	}
	soft := w.NegationSoft
	if soft == nil {
		soft = w.NegationAlt
	}
	return domain.Weights{
		Product:      get(w.Product),
		Bigram:       get(w.Bigram),
		Technical:    get(w.Technical),
		Consumer:     get(w.Consumer),
		Regex:        get(w.Regex),
		NegationSoft: get(soft),
		Threshold:    *w.Threshold,
	}
}

func needles(term string, variants []string) []string {
	out := make([]string, 0, 1+len(variants))
	out = append(out, strings.ToLower(term))
	for _, v := range variants {
		out = append(out, strings.ToLower(v))
	}
	return out
}
