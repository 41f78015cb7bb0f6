// Package usage folds per-query and progressive usage reports into running
// session totals and context-window percentages. The aggregator is pure:
// Apply functions take the previous totals by value and return the next,
// so callers can swap snapshots without locking here.
package usage

// DefaultContextWindow is assumed when the backend has never reported a
// context window size.
const DefaultContextWindow = 200000

// Query is one completed query's cumulative usage report.
type Query struct {
	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	TotalCostUSD        float64 `json:"totalCostUsd"`
	DurationMS          int64   `json:"durationMs"`
	DurationAPIMS       int64   `json:"durationApiMs"`
	NumTurns            int64   `json:"numTurns"`
	ContextWindow       int64   `json:"contextWindow"`
}

// Progressive is the in-flight counter snapshot for the turn currently
// streaming. The backend reports these as already cumulative for the turn,
// so they replace, never add to, the previous snapshot.
type Progressive struct {
	InputTokens         int64 `json:"inputTokens"`
	OutputTokens        int64 `json:"outputTokens"`
	CacheReadTokens     int64 `json:"cacheReadTokens"`
	CacheCreationTokens int64 `json:"cacheCreationTokens"`
}

// Usage holds a session's running totals. All cumulative counters only grow;
// Progressive is replaced wholesale on each progressive report.
type Usage struct {
	InputTokens         int64       `json:"inputTokens"`
	OutputTokens        int64       `json:"outputTokens"`
	CacheReadTokens     int64       `json:"cacheReadTokens"`
	CacheCreationTokens int64       `json:"cacheCreationTokens"`
	TotalCostUSD        float64     `json:"totalCostUsd"`
	DurationMS          int64       `json:"durationMs"`
	DurationAPIMS       int64       `json:"durationApiMs"`
	NumTurns            int64       `json:"numTurns"`
	ContextWindow       int64       `json:"contextWindow"`
	ContextUsedPercent  float64     `json:"contextUsedPercent"`
	Progressive         Progressive `json:"progressive"`
	History             []Query     `json:"history,omitempty"`
}

// ApplyQuery accumulates a completed query's report into the totals, appends
// it to the history, and recomputes the context percentage. Cache-read and
// cache-creation tokens count against the context window alongside uncached
// input and output.
func ApplyQuery(prev Usage, query Query) Usage {
	next := prev
	next.InputTokens += query.InputTokens
	next.OutputTokens += query.OutputTokens
	next.CacheReadTokens += query.CacheReadTokens
	next.CacheCreationTokens += query.CacheCreationTokens
	next.TotalCostUSD += query.TotalCostUSD
	next.DurationMS += query.DurationMS
	next.DurationAPIMS += query.DurationAPIMS
	next.NumTurns += query.NumTurns
	next.ContextWindow = resolveWindow(prev.ContextWindow, query.ContextWindow)

	history := make([]Query, len(prev.History), len(prev.History)+1)
	copy(history, prev.History)
	next.History = append(history, query)

	used := next.InputTokens + next.CacheReadTokens + next.CacheCreationTokens + next.OutputTokens
	next.ContextUsedPercent = usedPercent(used, next.ContextWindow)
	return next
}

// ApplyProgressive replaces the in-flight counters and recomputes the
// context percentage from the replaced values.
func ApplyProgressive(prev Usage, snapshot Progressive) Usage {
	next := prev
	next.Progressive = snapshot
	next.ContextWindow = resolveWindow(prev.ContextWindow, 0)

	used := snapshot.InputTokens + snapshot.CacheReadTokens + snapshot.CacheCreationTokens + snapshot.OutputTokens
	next.ContextUsedPercent = usedPercent(used, next.ContextWindow)
	return next
}

// resolveWindow applies the never-shrinks rule: a larger report grows the
// window, a smaller or absent one leaves it alone, and sessions that have
// never seen a report use the default.
func resolveWindow(previous, reported int64) int64 {
	window := previous
	if reported > window {
		window = reported
	}
	if window == 0 {
		window = DefaultContextWindow
	}
	return window
}

func usedPercent(used, window int64) float64 {
	if window <= 0 || used <= 0 {
		return 0
	}
	percent := 100 * float64(used) / float64(window)
	if percent > 100 {
		return 100
	}
	return percent
}
