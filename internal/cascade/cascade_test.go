package cascade

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/terra-clan/ladder-cache/internal/catalog"
	"github.com/terra-clan/ladder-cache/internal/flatcache"
	"github.com/terra-clan/ladder-cache/internal/httpcache"
	"github.com/terra-clan/ladder-cache/internal/models"
	"github.com/terra-clan/ladder-cache/internal/sections"
	"github.com/terra-clan/ladder-cache/internal/storage"
)

type fakeRemote struct {
	mu       sync.Mutex
	contests []models.Contest
	problems map[int][]models.Problem
	err      error
	syncErr  error
	delay    time.Duration
	// catalogDelay stalls ContestsByCategory until it elapses or ctx ends
	catalogDelay time.Duration

	catalogCalls atomic.Int32
	problemCalls atomic.Int32
	syncCalls    atomic.Int32
	freshReads   atomic.Int32

	inflight    atomic.Int32
	maxInflight atomic.Int32
}

func (f *fakeRemote) ContestsByCategory(ctx context.Context, fresh bool) ([]models.Contest, error) {
	f.catalogCalls.Add(1)
	if fresh {
		f.freshReads.Add(1)
	}
	if f.catalogDelay > 0 {
		if err := sleepCtx(ctx, f.catalogDelay); err != nil {
			return nil, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Contest, len(f.contests))
	copy(out, f.contests)
	return out, nil
}

func (f *fakeRemote) ContestProblems(ctx context.Context, contestID int, fresh bool) ([]models.Problem, error) {
	f.problemCalls.Add(1)
	if fresh {
		f.freshReads.Add(1)
	}

	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.maxInflight.Load()
		if n <= peak || f.maxInflight.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 {
		_ = sleepCtx(ctx, f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.problems[contestID], nil
}

func (f *fakeRemote) Sync(context.Context) (*catalog.SyncResult, error) {
	f.syncCalls.Add(1)
	if f.syncErr != nil {
		return nil, f.syncErr
	}
	return &catalog.SyncResult{}, nil
}

func (f *fakeRemote) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fixture struct {
	kv     *storage.MemoryStore
	flat   *flatcache.Cache
	remote *fakeRemote
	c      *Cascade
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		kv:     storage.NewMemoryStore(),
		flat:   flatcache.New(flatcache.NewMemoryStore()),
		remote: &fakeRemote{problems: make(map[int][]models.Problem)},
	}
	opts := DefaultOptions()
	opts.PrefetchAll = false
	opts.ChunkDelay = time.Millisecond
	f.c = New(f.kv, f.flat, f.remote, opts)
	t.Cleanup(f.c.Close)
	return f
}

func ptr64(v int64) *int64 { return &v }
func ptrInt(v int) *int    { return &v }

func mkContest(id int, name string, start *int64) models.Contest {
	return models.Contest{ID: id, Name: name, Phase: models.PhaseFinished, StartTimeSeconds: start}
}

func mkProblems(contestID int, indexes ...string) []models.Problem {
	out := make([]models.Problem, 0, len(indexes))
	for _, idx := range indexes {
		out = append(out, models.Problem{ContestID: contestID, Index: idx, Name: "P" + idx})
	}
	return out
}

func TestResolveProblemsStructuredStoreWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stored := mkProblems(10, "A", "B")
	if err := f.kv.PutProblems(ctx, 10, stored); err != nil {
		t.Fatalf("PutProblems() error = %v", err)
	}
	_ = f.flat.PutProblems(ctx, 10, mkProblems(10, "Z"))
	f.remote.problems[10] = mkProblems(10, "N")

	got := f.c.ResolveProblems(ctx, 10, false)
	if !reflect.DeepEqual(got, stored) {
		t.Errorf("ResolveProblems() = %+v, want %+v", got, stored)
	}
	if n := f.remote.problemCalls.Load(); n != 0 {
		t.Errorf("network calls = %d, want 0", n)
	}
}

func TestResolveProblemsFlatTier(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cached := mkProblems(11, "A")
	_ = f.flat.PutProblems(ctx, 11, cached)

	got := f.c.ResolveProblems(ctx, 11, false)
	if !reflect.DeepEqual(got, cached) {
		t.Errorf("ResolveProblems() = %+v, want %+v", got, cached)
	}
	if n := f.remote.problemCalls.Load(); n != 0 {
		t.Errorf("network calls = %d, want 0", n)
	}
}

func TestResolveProblemsWriteThrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.remote.problems[12] = []models.Problem{{ContestID: 12, Index: "A", Name: "X", Rating: ptrInt(900)}}

	cold := f.c.ResolveProblems(ctx, 12, false)
	warm := f.c.ResolveProblems(ctx, 12, false)

	if !reflect.DeepEqual(cold, warm) {
		t.Errorf("cold = %+v, warm = %+v", cold, warm)
	}
	if n := f.remote.problemCalls.Load(); n != 1 {
		t.Errorf("network calls = %d, want 1", n)
	}

	kv, _ := f.kv.GetProblems(ctx, 12)
	if !reflect.DeepEqual(kv, cold) {
		t.Errorf("structured store = %+v", kv)
	}
	if flat, ok := f.flat.Problems(ctx, 12); !ok || !reflect.DeepEqual(flat, cold) {
		t.Errorf("flat cache = %+v, %v", flat, ok)
	}
	if held, ok := f.c.State().Problems(12); !ok || len(held) != 1 {
		t.Errorf("in-memory = %+v, %v", held, ok)
	}
}

func TestResolveProblemsForceNetwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_ = f.kv.PutProblems(ctx, 13, mkProblems(13, "A"))
	f.remote.problems[13] = mkProblems(13, "A", "B")

	got := f.c.ResolveProblems(ctx, 13, true)
	if len(got) != 2 {
		t.Fatalf("ResolveProblems(force) = %+v", got)
	}
	if f.remote.freshReads.Load() != 1 {
		t.Errorf("fresh reads = %d, want 1", f.remote.freshReads.Load())
	}
	if kv, _ := f.kv.GetProblems(ctx, 13); len(kv) != 2 {
		t.Errorf("structured store not overwritten: %+v", kv)
	}
}

func TestResolveProblemsNeverFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.setErr(errors.New("offline"))

	got := f.c.ResolveProblems(ctx, 14, false)
	if got == nil || len(got) != 0 {
		t.Errorf("ResolveProblems() = %#v, want empty slice", got)
	}

	// forced read falls back to what the caches hold
	_ = f.flat.PutProblems(ctx, 14, mkProblems(14, "C"))
	got = f.c.ResolveProblems(ctx, 14, true)
	if len(got) != 1 || got[0].Index != "C" {
		t.Errorf("ResolveProblems(force) = %+v", got)
	}

	// empty network result counts as failure
	f.remote.setErr(nil)
	got = f.c.ResolveProblems(ctx, 15, false)
	if got == nil || len(got) != 0 {
		t.Errorf("ResolveProblems(empty) = %#v", got)
	}
}

func TestResolveProblemsStorageUnavailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.kv.Err = errors.New("disk gone")
	f.remote.problems[16] = mkProblems(16, "A")

	got := f.c.ResolveProblems(ctx, 16, false)
	if len(got) != 1 {
		t.Fatalf("ResolveProblems() = %+v", got)
	}
	if cached, ok := f.flat.Problems(ctx, 16); !ok || len(cached) != 1 {
		t.Errorf("flat write-through missing: %+v", cached)
	}
}

func TestResolveSectionSortOrder(t *testing.T) {
	f := newFixture(t)
	f.remote.contests = []models.Contest{
		mkContest(1, "Codeforces Round 1 (Div. 2)", ptr64(100)),
		mkContest(2, "Codeforces Round 2 (Div. 2)", ptr64(300)),
		mkContest(3, "Codeforces Round 3 (Div. 2)", nil),
		mkContest(4, "Codeforces Round 4 (Div. 2)", ptr64(200)),
	}

	got, err := f.c.ResolveSection(context.Background(), sections.Div2, false)
	if err != nil {
		t.Fatalf("ResolveSection() error = %v", err)
	}
	if ids := models.ContestIDs(got); !reflect.DeepEqual(ids, []int{2, 4, 1, 3}) {
		t.Errorf("order = %v, want [2 4 1 3]", ids)
	}
}

func TestResolveSectionNetworkPersistsAllSections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.contests = []models.Contest{
		mkContest(1, "Codeforces Round 1 (Div. 2)", ptr64(100)),
		mkContest(2, "Educational Codeforces Round 2", ptr64(200)),
		mkContest(3, "Codeforces Round 3 (Div. 1 + Div. 2)", ptr64(300)),
	}

	if _, err := f.c.ResolveSection(ctx, sections.Div2, false); err != nil {
		t.Fatalf("ResolveSection() error = %v", err)
	}
	f.c.Wait()

	if all := f.flat.Contests(ctx, flatcache.KeyContestsAll); len(all) != 3 {
		t.Errorf("global list = %+v", all)
	}
	if _, ok := f.c.CatalogUpdatedAt(ctx); !ok {
		t.Error("catalog timestamp not written")
	}
	for _, name := range sections.All() {
		if _, ok := f.flat.Get(ctx, flatcache.SectionKey(sections.Key(name))); !ok {
			t.Errorf("section entry %q not written", name)
		}
	}
	if edu := f.flat.Contests(ctx, flatcache.SectionKey(sections.Key(sections.Educational))); len(edu) != 1 || edu[0].ID != 2 {
		t.Errorf("educational entry = %+v", edu)
	}

	// switching sections is served from the flat tier
	got, err := f.c.ResolveSection(ctx, sections.Div1And2, false)
	if err != nil || len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("ResolveSection(Div 1+2) = %+v, %v", got, err)
	}
	if n := f.remote.catalogCalls.Load(); n != 1 {
		t.Errorf("catalog calls = %d, want 1", n)
	}
}

func TestResolveSectionFromGlobalList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.flat.PutContests(ctx, flatcache.KeyContestsAll, []models.Contest{
		mkContest(5, "Codeforces Round 5 (Div. 3)", ptr64(5)),
		mkContest(6, "Codeforces Round 6 (Div. 4)", ptr64(6)),
	})

	got, err := f.c.ResolveSection(ctx, sections.Div3, false)
	if err != nil || len(got) != 1 || got[0].ID != 5 {
		t.Fatalf("ResolveSection() = %+v, %v", got, err)
	}
	if derived := f.flat.Contests(ctx, flatcache.SectionKey(sections.Key(sections.Div3))); len(derived) != 1 {
		t.Errorf("derived section entry = %+v", derived)
	}
	if f.remote.catalogCalls.Load() != 0 {
		t.Error("network was used")
	}
}

func TestResolveSectionFromSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := sections.Key(sections.Global)
	_ = f.kv.PutSnapshot(ctx, models.SectionSnapshot{
		SectionKey: key,
		Contests:   []models.Contest{mkContest(7, "Codeforces Global Round 7", ptr64(7))},
		ProblemsByContestID: map[int][]models.Problem{
			7: mkProblems(7, "A"),
		},
	})

	got, err := f.c.ResolveSection(ctx, sections.Global, false)
	if err != nil || len(got) != 1 || got[0].ID != 7 {
		t.Fatalf("ResolveSection() = %+v, %v", got, err)
	}
	if !f.c.State().HasProblems(7) {
		t.Error("snapshot problems not merged")
	}
	if derived := f.flat.Contests(ctx, flatcache.SectionKey(key)); len(derived) != 1 {
		t.Errorf("derived section entry = %+v", derived)
	}
	if f.remote.catalogCalls.Load() != 0 {
		t.Error("network was used")
	}
}

func TestResolveSectionSnapshotMergeKeepsMemory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := sections.Key(sections.Global)
	_ = f.kv.PutSnapshot(ctx, models.SectionSnapshot{
		SectionKey:          key,
		Contests:            []models.Contest{mkContest(8, "Codeforces Global Round 8", ptr64(8))},
		ProblemsByContestID: map[int][]models.Problem{8: mkProblems(8, "OLD")},
	})
	f.c.State().SetProblems(8, mkProblems(8, "NEW"))

	if _, err := f.c.ResolveSection(ctx, sections.Global, false); err != nil {
		t.Fatalf("ResolveSection() error = %v", err)
	}
	held, _ := f.c.State().Problems(8)
	if len(held) != 1 || held[0].Index != "NEW" {
		t.Errorf("in-memory problems = %+v, want NEW", held)
	}
}

func TestResolveSectionForceUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.flat.PutContests(ctx, flatcache.SectionKey(sections.Key(sections.Div2)), []models.Contest{
		mkContest(1, "Codeforces Round 1 (Div. 2)", ptr64(1)),
	})
	f.remote.contests = []models.Contest{
		mkContest(1, "Codeforces Round 1 (Div. 2)", ptr64(1)),
		mkContest(9, "Codeforces Round 9 (Div. 2)", ptr64(9)),
	}

	got, err := f.c.ResolveSection(ctx, sections.Div2, true)
	if err != nil {
		t.Fatalf("ResolveSection(force) error = %v", err)
	}
	if len(got) != 2 || got[0].ID != 9 {
		t.Errorf("ResolveSection(force) = %+v", got)
	}
	if f.remote.freshReads.Load() != 1 {
		t.Errorf("fresh reads = %d, want 1", f.remote.freshReads.Load())
	}
	if cached := f.flat.Contests(ctx, flatcache.SectionKey(sections.Key(sections.Div2))); len(cached) != 2 {
		t.Errorf("section entry not refreshed: %+v", cached)
	}
}

func TestResolveSectionNetworkFailure(t *testing.T) {
	f := newFixture(t)
	f.remote.setErr(errors.New("offline"))

	got, err := f.c.ResolveSection(context.Background(), sections.Div4, false)
	var loadErr *SectionLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("error = %v, want *SectionLoadError", err)
	}
	if loadErr.Warning == "" || loadErr.Section != sections.Div4 {
		t.Errorf("load error = %+v", loadErr)
	}
	if len(got) != 0 {
		t.Errorf("contests = %+v, want none", got)
	}
}

func TestResolveSectionKeepsPriorOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.contests = []models.Contest{mkContest(1, "Codeforces Round 1 (Div. 2)", ptr64(1))}
	if _, err := f.c.ResolveSection(ctx, sections.Div2, false); err != nil {
		t.Fatalf("ResolveSection() error = %v", err)
	}

	f.remote.setErr(errors.New("offline"))
	got, err := f.c.ResolveSection(ctx, sections.Div2, true)
	if err == nil {
		t.Fatal("expected error on forced update")
	}
	if len(got) != 1 {
		t.Errorf("prior contests = %+v", got)
	}
}

func TestResolveSectionSharedFetchSurvivesCallerCancel(t *testing.T) {
	f := newFixture(t)
	f.remote.catalogDelay = 200 * time.Millisecond
	f.remote.contests = []models.Contest{
		mkContest(1, "Codeforces Round 1 (Div. 1)", ptr64(1)),
		mkContest(2, "Codeforces Round 2 (Div. 2)", ptr64(2)),
	}

	first, cancelFirst := context.WithCancel(context.Background())
	defer cancelFirst()
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.c.ResolveSection(first, sections.Div1, false)
		firstErr <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for f.remote.catalogCalls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("catalog fetch never started")
		}
		time.Sleep(time.Millisecond)
	}

	type result struct {
		contests []models.Contest
		err      error
	}
	second := make(chan result, 1)
	go func() {
		contests, err := f.c.ResolveSection(context.Background(), sections.Div2, false)
		second <- result{contests, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelFirst()

	if err := <-firstErr; err == nil {
		t.Error("cancelled caller got no error")
	}

	res := <-second
	if res.err != nil {
		t.Fatalf("live caller error = %v", res.err)
	}
	if len(res.contests) != 1 || res.contests[0].ID != 2 {
		t.Errorf("live caller contests = %+v", res.contests)
	}
	if f.remote.catalogCalls.Load() != 1 {
		t.Errorf("catalog calls = %d, want 1 shared fetch", f.remote.catalogCalls.Load())
	}
}

func TestResolveSectionUnknown(t *testing.T) {
	f := newFixture(t)
	if _, err := f.c.ResolveSection(context.Background(), "Div. 7", false); !errors.Is(err, ErrUnknownSection) {
		t.Errorf("error = %v, want ErrUnknownSection", err)
	}
}

func TestUpdateContests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.contests = []models.Contest{mkContest(1, "Codeforces Round 1 (Div. 2)", ptr64(1))}

	got, err := f.c.UpdateContests(ctx, sections.Key(sections.Div2))
	if err != nil || len(got) != 1 {
		t.Fatalf("UpdateContests() = %+v, %v", got, err)
	}
	if f.remote.syncCalls.Load() != 1 || f.remote.freshReads.Load() != 1 {
		t.Errorf("sync = %d, fresh = %d", f.remote.syncCalls.Load(), f.remote.freshReads.Load())
	}

	f.remote.syncErr = errors.New("sync down")
	_, err = f.c.UpdateContests(ctx, sections.Div2)
	var loadErr *SectionLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("error = %v, want *SectionLoadError", err)
	}
	if f.remote.catalogCalls.Load() != 1 {
		t.Errorf("catalog read after failed sync")
	}
}

func TestEnsureSectionCaches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if n := f.c.EnsureSectionCaches(ctx); n != 0 {
		t.Errorf("EnsureSectionCaches() on empty caches = %d", n)
	}

	_ = f.kv.PutSnapshot(ctx, models.SectionSnapshot{
		SectionKey: sections.Key(sections.Div3),
		Contests:   []models.Contest{mkContest(3, "Codeforces Round 3 (Div. 3)", ptr64(3))},
	})
	if n := f.c.EnsureSectionCaches(ctx); n != 1 {
		t.Errorf("EnsureSectionCaches() from snapshots = %d, want 1", n)
	}

	_ = f.flat.PutContests(ctx, flatcache.KeyContestsAll, []models.Contest{
		mkContest(1, "Codeforces Round 1 (Div. 2)", ptr64(1)),
	})
	if n := f.c.EnsureSectionCaches(ctx); n != len(sections.All()) {
		t.Errorf("EnsureSectionCaches() from global = %d, want %d", n, len(sections.All()))
	}
	if n := f.c.EnsureSectionCaches(ctx); n != 0 {
		t.Errorf("EnsureSectionCaches() when complete = %d, want 0", n)
	}
}

func TestPrefetchBoundedConcurrency(t *testing.T) {
	f := newFixture(t)
	f.remote.delay = 5 * time.Millisecond

	ids := make([]int, 0, 30)
	for id := 100; id < 130; id++ {
		ids = append(ids, id)
		f.remote.problems[id] = mkProblems(id, "A")
	}
	// already held contests are skipped
	f.c.State().SetProblems(100, mkProblems(100, "A"))

	if err := f.c.Prefetch(context.Background(), ids); err != nil {
		t.Fatalf("Prefetch() error = %v", err)
	}

	if n := f.remote.problemCalls.Load(); n != 29 {
		t.Errorf("network calls = %d, want 29", n)
	}
	if peak := f.remote.maxInflight.Load(); peak > 4 {
		t.Errorf("max concurrent fetches = %d, want <= 4", peak)
	}
	for _, id := range ids {
		if !f.c.State().HasProblems(id) {
			t.Errorf("contest %d not loaded", id)
		}
	}
	if loading := f.c.State().LoadingIDs(); len(loading) != 0 {
		t.Errorf("loading flags left: %v", loading)
	}
}

func TestPrefetchCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.c.Prefetch(ctx, []int{1, 2, 3}); !errors.Is(err, context.Canceled) {
		t.Errorf("Prefetch() error = %v, want context.Canceled", err)
	}
}

func TestWarmFirstPageUsesCachesOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.kv.PutProblems(ctx, 1, mkProblems(1, "A"))
	f.remote.problems[2] = mkProblems(2, "A")

	warmed := f.c.WarmFirstPage(ctx, []models.Contest{
		mkContest(1, "a", nil),
		mkContest(2, "b", nil),
	})
	if warmed != 1 {
		t.Errorf("WarmFirstPage() = %d, want 1", warmed)
	}
	if f.remote.problemCalls.Load() != 0 {
		t.Error("network was used")
	}
}

func TestSaveSnapshotAndMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	key := sections.Key(sections.Div2)

	if err := f.c.SaveSnapshot(ctx, sections.Div2); err != nil {
		t.Fatalf("SaveSnapshot() before resolve error = %v", err)
	}
	if snap, _ := f.kv.GetSnapshot(ctx, key); snap != nil {
		t.Fatal("snapshot written for unresolved section")
	}

	_ = f.kv.PutSnapshot(ctx, models.SectionSnapshot{
		SectionKey:          key,
		Contests:            []models.Contest{mkContest(1, "Codeforces Round 1 (Div. 2)", ptr64(1))},
		ProblemsByContestID: map[int][]models.Problem{3: mkProblems(3, "OLD")},
	})
	f.remote.contests = []models.Contest{
		mkContest(1, "Codeforces Round 1 (Div. 2)", ptr64(1)),
		mkContest(2, "Codeforces Round 2 (Div. 2)", ptr64(2)),
		mkContest(3, "Codeforces Round 3 (Div. 2)", ptr64(3)),
	}
	if _, err := f.c.ResolveSection(ctx, sections.Div2, true); err != nil {
		t.Fatalf("ResolveSection() error = %v", err)
	}
	f.c.State().SetProblems(1, mkProblems(1, "A"))

	missing, err := f.c.Missing(sections.Div2)
	if err != nil {
		t.Fatalf("Missing() error = %v", err)
	}
	if !reflect.DeepEqual(missing, []int{3, 2}) {
		t.Errorf("Missing() = %v, want [3 2]", missing)
	}

	if err := f.c.SaveSnapshot(ctx, sections.Div2); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}
	snap, err := f.kv.GetSnapshot(ctx, key)
	if err != nil || snap == nil {
		t.Fatalf("GetSnapshot() = %v, %v", snap, err)
	}
	if len(snap.Contests) != 3 {
		t.Errorf("snapshot contests = %d", len(snap.Contests))
	}
	if len(snap.ProblemsByContestID[1]) != 1 || snap.ProblemsByContestID[3][0].Index != "OLD" {
		t.Errorf("snapshot problems = %+v", snap.ProblemsByContestID)
	}
	if _, ok := snap.ProblemsByContestID[2]; ok {
		t.Error("snapshot holds an entry for an unloaded contest")
	}
}

func TestRefreshContest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.kv.PutProblems(ctx, 21, mkProblems(21, "A"))
	f.remote.problems[21] = mkProblems(21, "A", "B")

	got := f.c.RefreshContest(ctx, 21)
	if len(got) != 2 {
		t.Errorf("RefreshContest() = %+v", got)
	}
	if f.c.State().Loading(21) {
		t.Error("loading flag left set")
	}

	f.remote.setErr(errors.New("offline"))
	got = f.c.RefreshContest(ctx, 21)
	if len(got) != 2 {
		t.Errorf("RefreshContest() after failure = %+v, want cached", got)
	}
}

func TestReloadProblems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.flat.PutProblems(ctx, 30, mkProblems(30, "A"))
	f.remote.problems[30] = mkProblems(30, "A", "B")
	f.remote.problems[31] = mkProblems(31, "A", "B", "C")

	if got := f.c.ReloadProblems(ctx, 30); len(got) != 1 {
		t.Errorf("ReloadProblems(30) = %+v, want cached entry", got)
	}
	if f.remote.problemCalls.Load() != 0 {
		t.Errorf("network read for a cached contest")
	}

	if got := f.c.ReloadProblems(ctx, 31); len(got) != 3 {
		t.Errorf("ReloadProblems(31) = %+v", got)
	}
	if f.remote.freshReads.Load() != 1 {
		t.Errorf("fresh reads = %d, want 1", f.remote.freshReads.Load())
	}
	if held, ok := f.c.State().Problems(30); !ok || len(held) != 1 {
		t.Errorf("state for 30 = %+v", held)
	}
}

func TestEndToEnd(t *testing.T) {
	var detailCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/contests/by-category":
			_, _ = w.Write([]byte(`{"success":true,"categories":{"DIV2":[{"id":1,"name":"Codeforces Round 999 (Div. 2)","phase":"FINISHED","startTimeSeconds":1000}]}}`))
		case "/contests/1":
			detailCalls.Add(1)
			_, _ = w.Write([]byte(`{"problems":[{"contestId":1,"index":"a","name":"X","rating":900}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := catalog.NewClient(srv.URL, httpcache.New(httpcache.NewMemoryStore()))
	opts := DefaultOptions()
	opts.PrefetchAll = false
	c := New(storage.NewMemoryStore(), flatcache.New(flatcache.NewMemoryStore()), client, opts)
	defer c.Close()

	ctx := context.Background()
	contests, err := c.ResolveSection(ctx, sections.Div2, false)
	if err != nil {
		t.Fatalf("ResolveSection() error = %v", err)
	}
	if len(contests) != 1 {
		t.Fatalf("contests = %+v", contests)
	}
	if contests[0].ID != 1 || contests[0].Category != sections.Div2 || contests[0].Name != "Codeforces Round 999 (Div. 2)" {
		t.Errorf("contest = %+v", contests[0])
	}

	got := c.ResolveProblems(ctx, 1, false)
	want := []models.Problem{{ContestID: 1, Index: "A", Name: "X", Rating: ptrInt(900)}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ResolveProblems() = %+v, want %+v", got, want)
	}

	c.ResolveProblems(ctx, 1, false)
	if detailCalls.Load() != 1 {
		t.Errorf("detail calls = %d, want 1", detailCalls.Load())
	}
}
