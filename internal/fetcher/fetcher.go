package fetcher

import (
	"context"
	"time"

	appLog "roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/query"
	"roomcal/internal/style"
)

// Lister is the listing side of the backend.
type Lister interface {
	ListTerms(ctx context.Context, q query.Query) ([]model.Occurrence, error)
}

// Fetcher loads styled occurrences for a range and filter state.
type Fetcher struct {
	lister Lister
}

func New(lister Lister) *Fetcher {
	return &Fetcher{lister: lister}
}

// Fetch never fails. When the filters select nothing it returns an empty
// slice without touching the network; transport and decode failures are
// logged and also produce an empty slice so the calendar stays usable.
func (f *Fetcher) Fetch(ctx context.Context, r model.Range, filters model.Filters) []style.Styled {
	q, ok := query.Build(r, filters)
	if !ok {
		appLog.Debug("fetch skipped: no active event types")
		return []style.Styled{}
	}

	began := time.Now()
	occs, err := f.lister.ListTerms(ctx, q)
	if err != nil {
		appLog.Error("fetch failed; rendering empty calendar", err,
			"range_start", r.Start.Format(time.RFC3339),
			"range_end", r.End.Format(time.RFC3339),
		)
		return []style.Styled{}
	}

	appLog.Debug("fetch completed", "count", len(occs), "elapsed", time.Since(began))
	return style.Annotate(occs)
}
