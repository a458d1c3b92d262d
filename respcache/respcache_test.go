package respcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/provider/ristretto"
)

type memProvider struct {
	mu   sync.Mutex
	m    map[string][]byte
	sets int
	deny bool
}

func newMem() *memProvider { return &memProvider{m: map[string][]byte{}} }

func (p *memProvider) Get(_ context.Context, k string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.m[k]
	return b, ok, nil
}

func (p *memProvider) Set(_ context.Context, k string, v []byte, _ int64, _ time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sets++
	if p.deny {
		return false, nil
	}
	p.m[k] = append([]byte(nil), v...)
	return true, nil
}

func (p *memProvider) Del(_ context.Context, k string) error {
	p.mu.Lock()
	delete(p.m, k)
	p.mu.Unlock()
	return nil
}

func (p *memProvider) Close(context.Context) error { return nil }

func (p *memProvider) put(k string, v []byte) {
	p.mu.Lock()
	p.m[k] = v
	p.mu.Unlock()
}

func (p *memProvider) has(k string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.m[k]
	return ok
}

type healLog struct {
	mu       sync.Mutex
	reasons  []string
	rejected int
}

func (h *healLog) SelfHeal(_, reason string) {
	h.mu.Lock()
	h.reasons = append(h.reasons, reason)
	h.mu.Unlock()
}

func (h *healLog) SetRejected(string) {
	h.mu.Lock()
	h.rejected++
	h.mu.Unlock()
}

type todo struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

type fixture struct {
	c     *Cache[[]todo]
	p     *memProvider
	hooks *healLog
	now   time.Time
	mu    sync.Mutex
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{p: newMem(), hooks: &healLog{}, now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	c, err := New(Options[[]todo]{
		Namespace:  "todos",
		Provider:   f.p,
		Codec:      codec.JSON[[]todo]{},
		Hooks:      f.hooks,
		DefaultTTL: 10 * time.Second,
		Now:        f.clock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	f.c = c
	return f
}

var sample = []todo{{ID: 1, Title: "delectus aut autem"}}

func TestNewValidates(t *testing.T) {
	if _, err := New(Options[int]{Codec: codec.JSON[int]{}, Namespace: "x"}); err == nil {
		t.Fatalf("missing provider accepted")
	}
	if _, err := New(Options[int]{Provider: newMem(), Namespace: "x"}); err == nil {
		t.Fatalf("missing codec accepted")
	}
	if _, err := New(Options[int]{Provider: newMem(), Codec: codec.JSON[int]{}}); err == nil {
		t.Fatalf("missing namespace accepted")
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	obs := f.c.SnapshotGen(ctx, "all")
	if err := f.c.SetWithGen(ctx, "all", sample, obs, 0); err != nil {
		t.Fatalf("SetWithGen: %v", err)
	}
	got, ok, err := f.c.Get(ctx, "all")
	if err != nil || !ok || len(got) != 1 || got[0].Title != sample[0].Title {
		t.Fatalf("Get=%v ok=%v err=%v", got, ok, err)
	}
	if !f.p.has("resp:todos:all") {
		t.Fatalf("storage key not namespaced")
	}
}

func TestSetWithStaleGenIsSkipped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	obs := f.c.SnapshotGen(ctx, "all")
	if err := f.c.Invalidate(ctx, "all"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if err := f.c.SetWithGen(ctx, "all", sample, obs, 0); err != nil {
		t.Fatalf("SetWithGen: %v", err)
	}
	if _, ok, _ := f.c.Get(ctx, "all"); ok {
		t.Fatalf("write observed before invalidation was stored")
	}
	if f.p.sets != 0 {
		t.Fatalf("provider Set called %d times", f.p.sets)
	}
}

func TestExpiryFromFrame(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_ = f.c.SetWithGen(ctx, "all", sample, 0, 5*time.Second)
	f.advance(5*time.Second - time.Nanosecond)
	if _, ok, _ := f.c.Get(ctx, "all"); !ok {
		t.Fatalf("miss before expiry")
	}
	f.advance(time.Nanosecond)
	if _, ok, _ := f.c.Get(ctx, "all"); ok {
		t.Fatalf("hit at expiry")
	}
	if f.p.has("resp:todos:all") {
		t.Fatalf("expired frame not deleted")
	}
	if len(f.hooks.reasons) != 1 || f.hooks.reasons[0] != ReasonExpired {
		t.Fatalf("reasons=%v", f.hooks.reasons)
	}
}

func TestSelfHealCorruptAndUndecodable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.p.put("resp:todos:a", []byte("not a frame"))
	if _, ok, err := f.c.Get(ctx, "a"); ok || err != nil {
		t.Fatalf("corrupt: ok=%v err=%v", ok, err)
	}

	// valid frame, payload of the wrong shape for []todo
	strCache, err := New(Options[string]{Namespace: "todos", Provider: f.p, Codec: codec.JSON[string]{}, Now: f.clock})
	if err != nil {
		t.Fatal(err)
	}
	defer strCache.Close(ctx)
	_ = strCache.SetWithGen(ctx, "b", "oops", 0, time.Minute)
	if _, ok, err := f.c.Get(ctx, "b"); ok || err != nil {
		t.Fatalf("undecodable: ok=%v err=%v", ok, err)
	}

	want := []string{ReasonCorrupt, ReasonDecode}
	if len(f.hooks.reasons) != 2 || f.hooks.reasons[0] != want[0] || f.hooks.reasons[1] != want[1] {
		t.Fatalf("reasons=%v want %v", f.hooks.reasons, want)
	}
	if f.p.has("resp:todos:a") || f.p.has("resp:todos:b") {
		t.Fatalf("bad frames not deleted")
	}
}

func TestGenMismatchOnRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_ = f.c.SetWithGen(ctx, "all", sample, 0, 0)

	// bump without deleting, as a second process sharing the provider would see it
	_, _ = f.c.gen.Bump(ctx, f.c.storageKey("all"))
	if _, ok, _ := f.c.Get(ctx, "all"); ok {
		t.Fatalf("hit with outdated generation")
	}
	if f.hooks.reasons[0] != ReasonGen {
		t.Fatalf("reasons=%v", f.hooks.reasons)
	}
}

func TestGetOrLoad(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	calls := 0
	load := func(context.Context) ([]todo, error) {
		calls++
		return sample, nil
	}

	for i := 0; i < 3; i++ {
		v, err := f.c.GetOrLoad(ctx, "all", 0, load)
		if err != nil || len(v) != 1 {
			t.Fatalf("GetOrLoad=%v err=%v", v, err)
		}
	}
	if calls != 1 {
		t.Fatalf("load calls=%d want 1", calls)
	}

	boom := errors.New("boom")
	_ = f.c.Invalidate(ctx, "all")
	if _, err := f.c.GetOrLoad(ctx, "all", 0, func(context.Context) ([]todo, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
	if f.p.has("resp:todos:all") {
		t.Fatalf("failed load stored a value")
	}
}

func TestRejectedWriteReported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.p.deny = true
	_ = f.c.SetWithGen(ctx, "all", sample, 0, 0)
	if f.hooks.rejected != 1 {
		t.Fatalf("rejected=%d want 1", f.hooks.rejected)
	}
}

func TestDisabledIsPassThrough(t *testing.T) {
	ctx := context.Background()
	p := newMem()
	c, err := New(Options[int]{Namespace: "n", Provider: p, Codec: codec.JSON[int]{}, Disabled: true})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(ctx)
	calls := 0
	for i := 0; i < 2; i++ {
		_, _ = c.GetOrLoad(ctx, "k", 0, func(context.Context) (int, error) { calls++; return 1, nil })
	}
	if calls != 2 || p.sets != 0 || c.Enabled() {
		t.Fatalf("calls=%d sets=%d", calls, p.sets)
	}
}

func TestWithRistretto(t *testing.T) {
	ctx := context.Background()
	p, err := ristretto.New(ristretto.DefaultConfig(1 << 20))
	if err != nil {
		t.Fatal(err)
	}
	c, err := New(Options[[]todo]{Namespace: "todos", Provider: p, Codec: codec.Msgpack[[]todo]{}})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close(ctx)

	if err := c.SetWithGen(ctx, "all", sample, c.SnapshotGen(ctx, "all"), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, "all")
	if err != nil || !ok || got[0].ID != 1 {
		t.Fatalf("Get=%v ok=%v err=%v", got, ok, err)
	}
}

func TestMultiHooks(t *testing.T) {
	a, b := &healLog{}, &healLog{}
	m := MultiHooks{a, nil, b}
	m.SelfHeal("k", ReasonExpired)
	m.SetRejected("k")
	if len(a.reasons) != 1 || len(b.reasons) != 1 || a.rejected != 1 || b.rejected != 1 {
		t.Fatalf("a=%+v b=%+v", a, b)
	}
}

func TestRefreshSkipsStoredValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	calls := 0
	load := func(context.Context) ([]todo, error) {
		calls++
		return []todo{{ID: calls}}, nil
	}

	if _, err := f.c.GetOrLoad(ctx, "all", 0, load); err != nil {
		t.Fatal(err)
	}
	v, err := f.c.Refresh(ctx, "all", 0, load)
	if err != nil || calls != 2 || v[0].ID != 2 {
		t.Fatalf("Refresh=%v err=%v calls=%d", v, err, calls)
	}
	if v, ok, _ := f.c.Get(ctx, "all"); !ok || v[0].ID != 2 {
		t.Fatalf("stored after Refresh=%v ok=%v", v, ok)
	}
}

func TestGetOrLoadBypassedWhenQueryRevalidates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	qc := querycache.New(querycache.Options{SweepInterval: -1})
	t.Cleanup(func() { _ = qc.Close(ctx) })

	calls := 0
	fetch := func(fctx context.Context) (any, error) {
		return f.c.GetOrLoad(fctx, "all", time.Hour, func(context.Context) ([]todo, error) {
			calls++
			return []todo{{ID: calls}}, nil
		})
	}
	key := querycache.Key{"todos"}

	qc.Ensure(ctx, key, fetch, time.Hour)
	qc.Invalidate(key)
	e := qc.Ensure(ctx, key, fetch, time.Hour)
	if calls != 2 {
		t.Fatalf("load calls after invalidation=%d want 2", calls)
	}
	if got, _ := e.Data.([]todo); len(got) != 1 || got[0].ID != 2 || e.Invalidated {
		t.Fatalf("entry data=%v invalidated=%v", e.Data, e.Invalidated)
	}

	qc.Refetch(ctx, key, fetch, time.Hour)
	if calls != 3 {
		t.Fatalf("load calls after Refetch=%d want 3", calls)
	}

	// a cold key still reads through the response cache
	qc.Ensure(ctx, querycache.Key{"todos", "copy"}, fetch, time.Hour)
	if calls != 3 {
		t.Fatalf("cold key reached the source: calls=%d", calls)
	}
}
