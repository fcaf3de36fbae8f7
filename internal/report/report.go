// Package report aggregates batch outcomes into summaries and, when bookings
// carry an expected label, into detection metrics.
package report

import (
	"cmp"
	"slices"

	"github.com/opensource-finance/hazmat/internal/domain"
)

// DefaultTopReasons is how many reason labels a summary keeps.
const DefaultTopReasons = 10

// Summarize counts verdicts and the most frequent reason labels.
func Summarize(items []domain.BatchItem, topN int) domain.BatchSummary {
	s := domain.BatchSummary{Total: len(items)}
	counts := make(map[string]int)

	for _, item := range items {
		if item.Failed() {
			s.Failed++
			continue
		}
		if item.Result.IsHazardous {
			s.Hazardous++
		} else {
			s.NonHazardous++
		}
		for _, r := range item.Result.Reasons {
			counts[r]++
		}
	}

	if classified := s.Hazardous + s.NonHazardous; classified > 0 {
		s.HazardRate = float64(s.Hazardous) / float64(classified)
	}
	s.TopReasons = TopReasons(counts, topN)
	return s
}

// SummarizeResults summarizes a fail-fast batch.
func SummarizeResults(results []domain.ClassificationResult, topN int) domain.BatchSummary {
	items := make([]domain.BatchItem, len(results))
	for i := range results {
		items[i] = domain.BatchItem{Index: i, BookingID: results[i].BookingID, Result: &results[i]}
	}
	return Summarize(items, topN)
}

// TopReasons orders labels by count, then label, and keeps the first n.
// n <= 0 keeps all of them.
func TopReasons(counts map[string]int, n int) []domain.ReasonCount {
	out := make([]domain.ReasonCount, 0, len(counts))
	for reason, c := range counts {
		out = append(out, domain.ReasonCount{Reason: reason, Count: c})
	}
	slices.SortFunc(out, func(a, b domain.ReasonCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Reason, b.Reason)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Metrics is a confusion matrix over labelled bookings.
type Metrics struct {
	TruePositives  int `json:"truePositives"`  // hazardous, flagged
	FalsePositives int `json:"falsePositives"` // safe, flagged
	TrueNegatives  int `json:"trueNegatives"`  // safe, not flagged
	FalseNegatives int `json:"falseNegatives"` // hazardous, missed

	Unlabeled int `json:"unlabeled"`
	Errors    int `json:"errors"`
}

// Evaluate compares verdicts with ExpectedIsHazardous labels. bookings and
// items must be index aligned.
func Evaluate(bookings []domain.Booking, items []domain.BatchItem) Metrics {
	var m Metrics
	for i, item := range items {
		if item.Failed() {
			m.Errors++
			continue
		}
		if i >= len(bookings) || bookings[i].ExpectedIsHazardous == nil {
			m.Unlabeled++
			continue
		}
		m.Add(item.Result.IsHazardous, *bookings[i].ExpectedIsHazardous)
	}
	return m
}

// Add records one prediction.
func (m *Metrics) Add(predicted, actual bool) {
	switch {
	case predicted && actual:
		m.TruePositives++
	case predicted && !actual:
		m.FalsePositives++
	case !predicted && !actual:
		m.TrueNegatives++
	default:
		m.FalseNegatives++
	}
}

// Labelled is the number of predictions in the matrix.
func (m Metrics) Labelled() int {
	return m.TruePositives + m.FalsePositives + m.TrueNegatives + m.FalseNegatives
}

// Precision is the share of flagged bookings that were hazardous.
func (m Metrics) Precision() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalsePositives)
}

// Recall is the share of hazardous bookings that were flagged.
func (m Metrics) Recall() float64 {
	return ratio(m.TruePositives, m.TruePositives+m.FalseNegatives)
}

// F1 is the harmonic mean of precision and recall.
func (m Metrics) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Accuracy is the share of correct predictions.
func (m Metrics) Accuracy() float64 {
	return ratio(m.TruePositives+m.TrueNegatives, m.Labelled())
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
