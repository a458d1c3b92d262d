package querycache

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/querycache/internal/util"
)

const (
	defaultGCRetention = 5 * time.Minute
	defaultSweep       = time.Minute
)

// StoreOptions tune a Store. The zero value is usable.
type StoreOptions struct {
	Logger        Logger           // if nil, NopLogger is used
	Hooks         Hooks            // if nil, NopHooks is used
	Now           func() time.Time // clock; nil => time.Now
	GCRetention   time.Duration    // unused entries older than this are dropped; 0 => 5m
	SweepInterval time.Duration    // 0 => 1m; negative disables the background sweeper
}

type record struct {
	parts    []string // per-element key encodings for prefix matching
	entry    Entry
	lastUsed time.Time
	inflight int // fetches begun on this record and not settled yet
}

type subscriber struct {
	id uint64
	fn func(Entry)
}

// Store is the single owner of every Entry. All changes go through Write (or the
// coordinator's internal equivalents) under one mutex; subscribers are called
// after the change is complete and the mutex is released.
type Store struct {
	mu      sync.Mutex
	recs    map[string]*record
	subs    map[string][]subscriber
	boxes   map[string]*mailbox
	nextSub uint64

	now       func() time.Time
	log       Logger
	hooks     Hooks
	retention time.Duration

	ticker    *time.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// mailbox queues the changes of one key in write order. One goroutine at a time
// drains it, so calls for a key never overlap or reorder.
type mailbox struct {
	queue    []pending
	draining bool
}

type pending struct {
	subs  []subscriber
	entry Entry
}

// notification is returned by notificationLocked; deliver must be called after
// the mutex is released. The zero value delivers nothing.
type notification struct {
	s  *Store
	id string
}

func NewStore(opts StoreOptions) *Store {
	s := &Store{
		recs:  make(map[string]*record),
		subs:  make(map[string][]subscriber),
		boxes: make(map[string]*mailbox),
		now:   opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.log = coalesce[Logger](opts.Logger, NopLogger{})
	s.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	s.retention = coalesce[time.Duration](opts.GCRetention, defaultGCRetention)

	sweep := coalesce[time.Duration](opts.SweepInterval, defaultSweep)
	if sweep > 0 {
		s.ticker = time.NewTicker(sweep)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go s.sweepLoop()
	}
	return s
}

// Close stops the background sweeper. Entries stay readable.
func (s *Store) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
			s.ticker.Stop()
			s.wg.Wait()
		}
	})
	return nil
}

// Read returns a copy of the entry for key.
func (s *Store) Read(key Key) (Entry, bool) {
	id, _, err := encodeKey(key)
	if err != nil {
		return Entry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return Entry{}, false
	}
	rec.lastUsed = s.now()
	return rec.entry.copy(), true
}

// Write replaces the entry for key with updater(prev). prev is the zero Entry
// (with Key set) when the key is not cached yet. updater must be pure and must
// not call back into the Store.
func (s *Store) Write(key Key, updater func(prev Entry) Entry) (Entry, error) {
	id, parts, err := encodeKey(key)
	if err != nil {
		return Entry{}, err
	}
	s.mu.Lock()
	rec := s.recordLocked(id, key, parts)
	prev := rec.entry
	next := updater(prev)
	next.Key, next.gen, next.prevStat = prev.Key, prev.gen, prev.prevStat
	next.UpdatedAt = s.now()
	rec.entry = next
	rec.lastUsed = next.UpdatedAt
	n := s.notificationLocked(id, next)
	s.mu.Unlock()

	n.deliver()
	return next, nil
}

// SetData writes data produced by fn(prev data) as a successful, fresh result.
func (s *Store) SetData(key Key, fn func(prev any) any) (Entry, error) {
	return s.Write(key, func(e Entry) Entry {
		e.Data = fn(e.Data)
		e.Err = nil
		e.Status = StatusSuccess
		e.FetchedAt = s.now()
		e.Invalidated = false
		return e
	})
}

// Invalidate marks every entry whose key starts with prefix stale and returns how
// many were marked. An empty prefix matches every entry. Nothing is refetched;
// the next Ensure sees the entry as stale.
func (s *Store) Invalidate(prefix Key) int {
	pp, err := encodeParts(prefix)
	if err != nil {
		s.log.Warn("invalidate skipped (bad prefix)", Fields{"prefix": prefix.String(), "err": err})
		return 0
	}
	now := s.now()
	var pending []notification

	s.mu.Lock()
	for id, rec := range s.recs {
		if !util.HasPrefix(rec.parts, pp) {
			continue
		}
		rec.entry.Invalidated = true
		rec.entry.gen++
		rec.entry.UpdatedAt = now
		pending = append(pending, s.notificationLocked(id, rec.entry))
	}
	s.mu.Unlock()

	for _, n := range pending {
		n.deliver()
	}
	s.log.Debug("invalidated entries", Fields{"prefix": prefix.String(), "count": len(pending)})
	s.hooks.Invalidated(prefix.String(), len(pending))
	return len(pending)
}

// Subscribe registers fn for changes to key. fn runs after each change, outside
// the Store lock, in the order the changes were made. Calls for one key never
// overlap; when writers race, a later writer's goroutine may deliver an earlier
// change. fn may write the same key; that change is delivered after fn returns.
// The returned func removes the subscription.
func (s *Store) Subscribe(key Key, fn func(Entry)) (func(), error) {
	id, _, err := encodeKey(key)
	if err != nil {
		return func() {}, err
	}
	if fn == nil {
		return func() {}, &ValidationError{Field: "subscriber", Reason: "nil func"}
	}
	s.mu.Lock()
	s.nextSub++
	sid := s.nextSub
	s.subs[id] = append(s.subs[id], subscriber{id: sid, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id, sid) })
	}, nil
}

func (s *Store) unsubscribe(id string, sid uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.subs[id]
	for i, sub := range list {
		if sub.id == sid {
			// copy so snapshots handed to deliver stay intact
			next := make([]subscriber, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(s.subs, id)
			} else {
				s.subs[id] = next
			}
			return
		}
	}
}

// Remove drops the entry for key. Subscribers stay registered and receive an idle entry.
func (s *Store) Remove(key Key) bool {
	id, _, err := encodeKey(key)
	if err != nil {
		return false
	}
	s.mu.Lock()
	_, ok := s.recs[id]
	delete(s.recs, id)
	var n notification
	if ok {
		n = s.notificationLocked(id, Entry{Key: cloneKey(key)})
	}
	s.mu.Unlock()
	n.deliver()
	return ok
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recs)
}

// Sweep drops entries that have no subscribers, are not loading and were not used
// within GCRetention. It returns the number removed.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.retention)
	var removed []string

	s.mu.Lock()
	for id, rec := range s.recs {
		if rec.entry.Status == StatusLoading || len(s.subs[id]) > 0 {
			continue
		}
		if rec.lastUsed.Before(cutoff) {
			delete(s.recs, id)
			removed = append(removed, rec.entry.Key.String())
		}
	}
	s.mu.Unlock()

	for _, k := range removed {
		s.hooks.EntryCollected(k)
	}
	if len(removed) > 0 {
		s.log.Debug("sweep removed unused entries", Fields{"removed": len(removed)})
	}
	return len(removed)
}

func (s *Store) sweepLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

// fresh returns the entry when it can be served without fetching.
func (s *Store) fresh(id string, staleAfter time.Duration) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return Entry{}, false
	}
	now := s.now()
	rec.lastUsed = now
	if !rec.entry.Fresh(now, staleAfter) {
		return Entry{}, false
	}
	return rec.entry.copy(), true
}

// fetchTicket identifies a begun fetch: the record it started on and the
// generation its result must match to be written.
type fetchTicket struct {
	rec         *record
	gen         uint64
	held        bool // the entry already held data or an error
	invalidated bool
}

// beginFetch moves the entry to loading and returns the fetch's ticket.
func (s *Store) beginFetch(id string, key Key, parts []string) fetchTicket {
	s.mu.Lock()
	rec := s.recordLocked(id, key, parts)
	t := fetchTicket{
		rec:         rec,
		gen:         rec.entry.gen,
		held:        !rec.entry.FetchedAt.IsZero() || rec.entry.Err != nil,
		invalidated: rec.entry.Invalidated,
	}
	if rec.entry.Status != StatusLoading {
		rec.entry.prevStat = rec.entry.Status
	}
	rec.inflight++
	rec.entry.Status = StatusLoading
	rec.entry.UpdatedAt = s.now()
	rec.lastUsed = rec.entry.UpdatedAt
	n := s.notificationLocked(id, rec.entry)
	s.mu.Unlock()

	n.deliver()
	return t
}

// settle applies the result of the fetch t. When the entry was invalidated or
// removed meanwhile the result is not written; it is still returned so the
// callers waiting on the fetch receive it. reason is empty when written.
func (s *Store) settle(id string, key Key, t fetchTicket, data any, ferr error, staleAfter time.Duration) (Entry, string) {
	now := s.now()

	s.mu.Lock()
	if t.rec.inflight > 0 {
		t.rec.inflight--
	}
	rec, ok := s.recs[id]
	if !ok || rec != t.rec {
		s.mu.Unlock()
		return resultEntry(key, data, ferr, now, staleAfter), "removed"
	}
	if rec.entry.gen != t.gen {
		if rec.entry.Status == StatusLoading && rec.inflight == 0 {
			rec.entry.Status = rec.entry.prevStat
			rec.entry.UpdatedAt = now
		}
		k := rec.entry.Key
		n := s.notificationLocked(id, rec.entry)
		s.mu.Unlock()
		n.deliver()
		return resultEntry(k, data, ferr, now, staleAfter), "invalidated"
	}

	e := rec.entry
	if ferr != nil {
		e.Err = ferr
		e.Status = StatusError
	} else {
		e.Data = data
		e.Err = nil
		e.Status = StatusSuccess
		e.FetchedAt = now
		e.StaleAfter = staleAfter
		e.Invalidated = false
	}
	e.UpdatedAt = now
	rec.entry = e
	rec.lastUsed = now
	n := s.notificationLocked(id, e)
	s.mu.Unlock()

	n.deliver()
	return e, ""
}

// swap applies updater like Write and also returns the entry as it was before,
// plus whether it existed. Used by optimistic mutations.
func (s *Store) swap(id string, key Key, parts []string, updater func(Entry) Entry) (prev Entry, existed bool) {
	s.mu.Lock()
	rec, existed := s.recs[id]
	if !existed {
		rec = s.recordLocked(id, key, parts)
	}
	prev = rec.entry
	next := updater(prev)
	next.Key, next.gen, next.prevStat = prev.Key, prev.gen, prev.prevStat
	next.UpdatedAt = s.now()
	rec.entry = next
	rec.lastUsed = next.UpdatedAt
	n := s.notificationLocked(id, next)
	s.mu.Unlock()

	n.deliver()
	return prev, existed
}

// restore puts back the data captured by swap. If the entry did not exist
// before, it is removed again. The generation is kept at its current value so
// fetches started before an invalidation stay discarded, and the status
// follows the fetches actually in flight now rather than those at snapshot
// time.
func (s *Store) restore(id string, snapshot Entry, existed bool) {
	s.mu.Lock()
	rec, ok := s.recs[id]
	var n notification
	switch {
	case !existed:
		if ok {
			delete(s.recs, id)
			n = s.notificationLocked(id, Entry{Key: snapshot.Key})
		}
	case ok:
		gen := rec.entry.gen
		rec.entry = loadingAs(snapshot, rec.inflight > 0)
		rec.entry.gen = gen
		rec.lastUsed = s.now()
		n = s.notificationLocked(id, rec.entry)
	default:
		rec = &record{entry: loadingAs(snapshot, false), lastUsed: s.now()}
		rec.parts, _ = encodeParts(snapshot.Key)
		s.recs[id] = rec
		n = s.notificationLocked(id, rec.entry)
	}
	s.mu.Unlock()
	n.deliver()
}

// loadingAs returns e with its status matching whether a fetch is in flight.
func loadingAs(e Entry, loading bool) Entry {
	switch {
	case loading && e.Status != StatusLoading:
		e.prevStat, e.Status = e.Status, StatusLoading
	case !loading && e.Status == StatusLoading:
		e.Status = e.prevStat
	}
	return e
}

func (s *Store) recordLocked(id string, key Key, parts []string) *record {
	rec, ok := s.recs[id]
	if !ok {
		rec = &record{parts: parts, entry: Entry{Key: cloneKey(key)}}
		s.recs[id] = rec
	}
	return rec
}

// notificationLocked queues e for the subscribers of id. The returned value
// drains the queue unless another goroutine is already draining it.
func (s *Store) notificationLocked(id string, e Entry) notification {
	subs := s.subs[id]
	if len(subs) == 0 {
		return notification{}
	}
	box := s.boxes[id]
	if box == nil {
		box = &mailbox{}
		s.boxes[id] = box
	}
	box.queue = append(box.queue, pending{subs: subs, entry: e.copy()})
	if box.draining {
		return notification{}
	}
	box.draining = true
	return notification{s: s, id: id}
}

func (n notification) deliver() {
	if n.s == nil {
		return
	}
	done := false
	defer func() {
		if done {
			return
		}
		// a subscriber panicked: hand the rest of the queue to the next writer
		n.s.mu.Lock()
		if box := n.s.boxes[n.id]; box != nil {
			box.draining = false
		}
		n.s.mu.Unlock()
	}()
	for {
		n.s.mu.Lock()
		box := n.s.boxes[n.id]
		batch := box.queue
		box.queue = nil
		if len(batch) == 0 {
			delete(n.s.boxes, n.id)
			n.s.mu.Unlock()
			done = true
			return
		}
		n.s.mu.Unlock()
		for _, p := range batch {
			for _, sub := range p.subs {
				sub.fn(p.entry)
			}
		}
	}
}

func resultEntry(key Key, data any, err error, now time.Time, staleAfter time.Duration) Entry {
	e := Entry{Key: key, UpdatedAt: now, StaleAfter: staleAfter}
	if err != nil {
		e.Err, e.Status = err, StatusError
		return e
	}
	e.Data, e.Status, e.FetchedAt = data, StatusSuccess, now
	return e
}

func cloneKey(k Key) Key {
	return append(Key(nil), k...)
}
