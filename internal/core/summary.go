package core

// UnknownCategory labels records without a category in breakdowns.
const UnknownCategory = "(unknown)"

// DateRange is an inclusive pair of calendar days (YYYY-MM-DD). A nil bound
// is open.
type DateRange struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

// CategoryAmount is one row of a category breakdown.
type CategoryAmount struct {
	Category string  `json:"category"`
	USD      float64 `json:"usd"`
	Count    int64   `json:"count"`
}

// CategoryBreakdown groups expenses by category over a period.
type CategoryBreakdown struct {
	Period   DateRange        `json:"period"`
	TotalUSD float64          `json:"totalUsd"`
	Items    []CategoryAmount `json:"items"`
}

// Totals is a USD sum with the number of records behind it.
type Totals struct {
	TotalUSD float64 `json:"totalUsd"`
	Count    int64   `json:"count"`
}

// Summary compares income and expenses over a period.
type Summary struct {
	Period   DateRange `json:"period"`
	Expenses Totals    `json:"expenses"`
	Income   Totals    `json:"income"`
	NetUSD   float64   `json:"netUsd"`
}
