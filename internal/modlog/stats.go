package modlog

import "github.com/siftchat/dm-app/internal/moderation"

// Stats is the aggregate view over the moderation ledger. It is derived,
// never stored.
type Stats struct {
	TotalChecks    int            `json:"totalChecks"`
	FlaggedContent int            `json:"flaggedContent"`
	TextChecks     int            `json:"textChecks"`
	ImageChecks    int            `json:"imageChecks"`
	Categories     map[string]int `json:"categories"`
}

// Aggregate computes Stats over a full set of ledger entries. Category
// counts cover flagged entries only, one increment per category tag per
// entry.
func Aggregate(entries []Entry) Stats {
	stats := Stats{Categories: make(map[string]int)}

	for _, e := range entries {
		stats.TotalChecks++
		switch e.Kind {
		case moderation.KindText:
			stats.TextChecks++
		case moderation.KindImage:
			stats.ImageChecks++
		}
		if e.Inappropriate {
			stats.FlaggedContent++
			for _, cat := range e.Categories {
				stats.Categories[cat]++
			}
		}
	}

	return stats
}
