package querycache

import "time"

// Status is the lifecycle state of an Entry.
type Status uint8

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Entry is a copy of one cached resource. The Store owns the original;
// treat Data as read-only and change it only through Store.Write.
type Entry struct {
	Key    Key
	Data   any   // last successful data; kept while loading and after errors
	Err    error // error of the last settled fetch, nil on success
	Status Status

	FetchedAt  time.Time     // when Data was last written by a fetch or SetData
	StaleAfter time.Duration // freshness window of the last fetch
	UpdatedAt  time.Time     // last change of any field

	// Invalidated is set by Invalidate and cleared by the next successful write.
	Invalidated bool

	gen      uint64 // bumped on invalidation; a fetch writes only if unchanged
	prevStat Status // status before the fetch in flight
}

// Fresh reports whether e can be served without a network call.
func (e Entry) Fresh(now time.Time, staleAfter time.Duration) bool {
	return e.Status == StatusSuccess && !e.Invalidated && now.Sub(e.FetchedAt) < staleAfter
}

// Stale is the complement of Fresh for entries holding data.
func (e Entry) Stale(now time.Time) bool {
	return !e.Fresh(now, e.StaleAfter)
}

// copy detaches the key slice; Data is shared.
func (e Entry) copy() Entry {
	e.Key = cloneKey(e.Key)
	return e
}
