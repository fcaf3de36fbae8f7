package generate

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/hazmat/internal/lexicon"
	"github.com/opensource-finance/hazmat/internal/rules"
)

const doc = `{
  "version": "gen-test",
  "weights": {"product": 5, "bigram": 3, "technical": 4, "consumer": 2, "negation_soft": -3, "threshold": 5},
  "products": [
    {"id": "p1", "displayName": "Industrial Solvent", "isHazardous": true},
    {"id": "p2", "displayName": "Books", "isHazardous": false}
  ],
  "keywords": [{"term": "asbestos", "type": "technical"}],
  "bigrams": [{"phrase": "paint thinner"}],
  "negations": [{"term": "asbestos-free", "impacts": ["asbestos"]}],
  "regex": []
}`

func load(t *testing.T) *lexicon.Lexicon {
	t.Helper()
	lex, err := lexicon.Load([]byte(doc), lexicon.FormatJSON)
	require.NoError(t, err)
	return lex
}

func TestBookingsDeterministic(t *testing.T) {
	lex := load(t)
	opts := Options{Count: 50, HazardRate: 0.5, NegationRate: 0.5, Seed: 42, Now: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)}

	a, err := Bookings(lex, opts)
	require.NoError(t, err)
	b, err := Bookings(lex, opts)
	require.NoError(t, err)

	assert.Equal(t, a, b)

	opts.Seed = 43
	c, err := Bookings(lex, opts)
	require.NoError(t, err)
	assert.NotEqual(t, a[0].ID, c[0].ID)
}

func TestBookingsShape(t *testing.T) {
	lex := load(t)
	now := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	out, err := Bookings(lex, Options{Count: 200, HazardRate: 1, Seed: 7, Now: now})
	require.NoError(t, err)
	require.Len(t, out, 200)

	seen := map[string]bool{}
	for _, b := range out {
		assert.True(t, strings.HasPrefix(b.ID, "BK-"))
		assert.False(t, seen[b.ID], "duplicate id %s", b.ID)
		seen[b.ID] = true

		assert.Contains(t, b.Products, "Industrial Solvent")
		assert.Contains(t, b.Description, "asbestos")

		date, err := time.Parse(time.RFC3339, b.BookingDate)
		require.NoError(t, err)
		assert.False(t, date.After(now))
		assert.True(t, date.After(now.AddDate(-1, 0, -1)))

		res, err := rules.Classify(lex, &b)
		require.NoError(t, err)
		assert.True(t, res.IsHazardous, "hazardous attempt %s scored %v", b.ID, res.Score)
	}
}

func TestBookingsSafe(t *testing.T) {
	lex := load(t)

	out, err := Bookings(lex, Options{Count: 20, HazardRate: 0, Seed: 1})
	require.NoError(t, err)
	for _, b := range out {
		assert.Equal(t, plainDescription, b.Description)
		assert.Equal(t, []string{"Books"}, b.Products)

		res, err := rules.Classify(lex, &b)
		require.NoError(t, err)
		assert.False(t, res.IsHazardous)
	}
}

func TestBookingsInvalidOptions(t *testing.T) {
	lex := load(t)

	_, err := Bookings(lex, Options{Count: 0})
	assert.Error(t, err)

	_, err = Bookings(lex, Options{Count: 1, HazardRate: 1.5})
	assert.Error(t, err)
}
