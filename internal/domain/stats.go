package domain

// Stats aggregates key and account counts.
type Stats struct {
	TotalKeys     int64 `json:"total_keys"`
	UsedKeys      int64 `json:"used_keys"`
	UnusedKeys    int64 `json:"unused_keys"`
	TotalAccounts int64 `json:"total_accounts"`
}

// NewStats derives UnusedKeys from the totals.
func NewStats(totalKeys, usedKeys, totalAccounts int64) *Stats {
	return &Stats{
		TotalKeys:     totalKeys,
		UsedKeys:      usedKeys,
		UnusedKeys:    totalKeys - usedKeys,
		TotalAccounts: totalAccounts,
	}
}
