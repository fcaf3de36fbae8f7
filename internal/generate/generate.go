// Package generate produces synthetic bookings for load and batch testing.
// Hazardous attempts are assembled from the lexicon itself, so the output
// tracks whatever lexicon is loaded.
package generate

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/hazmat/internal/domain"
	"github.com/opensource-finance/hazmat/internal/lexicon"
)

// Options tunes the generated batch.
type Options struct {
	Count int

	// HazardRate is the share of bookings built to look hazardous.
	HazardRate float64

	// NegationRate is the share of hazardous attempts that also carry a
	// negation phrase.
	NegationRate float64

	// Seed makes the output reproducible. Zero picks a random seed.
	Seed uint64

	// Now anchors booking dates, which fall within the preceding year.
	Now time.Time
}

// DefaultOptions mirrors the mock data used for the original load tests.
func DefaultOptions() Options {
	return Options{
		Count:        100_000,
		HazardRate:   0.10,
		NegationRate: 0.15,
	}
}

var (
	firstNames = []string{"Ana", "Bruno", "Carla", "Diego", "Elena", "Felipe", "Gabriela", "Hugo", "Isabel", "Joao", "Karin", "Luis", "Marta", "Nuno", "Olivia", "Pedro"}
	lastNames  = []string{"Almeida", "Barros", "Costa", "Duarte", "Esteves", "Ferreira", "Gomes", "Lopes", "Moreira", "Nunes", "Pereira", "Ramos", "Silva", "Teixeira"}
	companies  = []string{"Atlas Logistics", "Blue Harbor Ltd", "Cedar Movers", "Delta Storage", "Evergreen Freight", "Northwind Traders"}
)

const (
	plainDescription = "Customer is clearing out their garage. Contains old furniture and boxes."
	plainNotes       = "No specific issues mentioned."
)

// Bookings generates opts.Count bookings from lex.
func Bookings(lex *lexicon.Lexicon, opts Options) ([]domain.Booking, error) {
	if opts.Count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", opts.Count)
	}
	if opts.HazardRate < 0 || opts.HazardRate > 1 {
		return nil, fmt.Errorf("hazard rate must be within [0, 1], got %g", opts.HazardRate)
	}
	if opts.Seed == 0 {
		opts.Seed = rand.Uint64()
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}

	var seed [32]byte
	binary.LittleEndian.PutUint64(seed[:], opts.Seed)
	src := rand.NewChaCha8(seed)
	rng := rand.New(src)

	var keywords, bigrams, negations []string
	for kw := range lex.Keywords() {
		keywords = append(keywords, kw.Term())
	}
	for bg := range lex.Bigrams() {
		bigrams = append(bigrams, bg.Phrase())
	}
	for n := range lex.Negations() {
		negations = append(negations, n.Term())
	}
	var hazardous, safe []string
	for _, p := range lex.ListProducts() {
		if p.IsHazardous {
			hazardous = append(hazardous, p.DisplayName)
		} else {
			safe = append(safe, p.DisplayName)
		}
	}

	pick := func(s []string) string {
		if len(s) == 0 {
			return ""
		}
		return s[rng.IntN(len(s))]
	}

	out := make([]domain.Booking, opts.Count)
	for i := range out {
		id, err := uuid.NewRandomFromReader(src)
		if err != nil {
			return nil, fmt.Errorf("failed to generate booking id: %w", err)
		}

		b := domain.Booking{
			ID:            "BK-" + id.String(),
			CustomerName:  pick(firstNames) + " " + pick(lastNames),
			BookingDate:   opts.Now.Add(-time.Duration(rng.Int64N(int64(365 * 24 * time.Hour)))).UTC().Format(time.RFC3339),
			Description:   plainDescription,
			InternalNotes: plainNotes,
			Products:      []string{},
		}
		if rng.Float64() < 0.3 {
			b.CompanyName = pick(companies)
		}
		if p := pick(safe); p != "" {
			b.Products = append(b.Products, p)
		}

		if rng.Float64() < opts.HazardRate && len(hazardous) > 0 {
			b.Description = fmt.Sprintf("Contains various items including %s. Also found some %s.", pick(keywords), pick(bigrams))
			b.Products = append(b.Products, pick(hazardous))
			b.InternalNotes = fmt.Sprintf("Client mentioned items like %s.", pick(keywords))

			if len(negations) > 0 && rng.Float64() < opts.NegationRate {
				b.Description += fmt.Sprintf(" However, it is a %s version.", pick(negations))
			}
		}

		out[i] = b
	}
	return out, nil
}
