package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string  `json:"category"`
	Amount float64 `json:"total"`
}

// CategoryShare is one slice of the summary pie chart.
type CategoryShare struct {
	CategoryAmount
	Percent float64 `json:"percent"`
}

// SummarizeByCategory totals donations per campaign category, largest first.
//
// Donations whose campaign is missing from campaigns are grouped under
// UnknownCategory. Groups appear in first-seen order before the stable sort,
// so equal totals keep a reproducible order. The result is never nil.
func SummarizeByCategory(donations []Donation, campaigns []Campaign) []CategoryAmount {
	categoryOf := make(map[string]string, len(campaigns))
	for _, c := range campaigns {
		categoryOf[c.ID] = c.Category
	}

	index := make(map[string]int)
	out := make([]CategoryAmount, 0)
	for _, d := range donations {
		category, ok := categoryOf[d.CampaignID]
		if !ok {
			category = UnknownCategory
		}
		i, seen := index[category]
		if !seen {
			i = len(out)
			index[category] = i
			out = append(out, CategoryAmount{Name: category})
		}
		out[i].Amount += d.Amount
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Amount > out[b].Amount
	})
	return out
}

// Total sums a summary.
func Total(summary []CategoryAmount) float64 {
	var total float64
	for _, c := range summary {
		total += c.Amount
	}
	return total
}

// Shares converts a summary into percentages of the total, rounded to one
// decimal. A zero total yields zero percentages.
func Shares(summary []CategoryAmount) []CategoryShare {
	total := Total(summary)
	out := make([]CategoryShare, len(summary))
	for i, c := range summary {
		out[i].CategoryAmount = c
		if total > 0 {
			pct, _ := decimal.NewFromFloat(c.Amount * 100 / total).Round(1).Float64()
			out[i].Percent = pct
		}
	}
	return out
}
