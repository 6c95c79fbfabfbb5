package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"linebell/internal/jobs"
	"linebell/internal/store"
	"linebell/internal/transport"
	logx "linebell/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	sends []string // recipient ids, in completion order
	fail  map[string]error
}

func (f *fakeSender) Push(_ context.Context, recipientID, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[recipientID]; ok {
		return err
	}
	f.sends = append(f.sends, recipientID)
	return nil
}

func (f *fakeSender) count(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sends {
		if s == id {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T, sender transport.Sender) (*Service, *jobs.Repo) {
	t.Helper()
	return newTestServiceCfg(t, sender, Config{SendTimeout: time.Second, MaxInflight: 2, RatePerSec: 1000})
}

func newTestServiceCfg(t *testing.T, sender transport.Sender, cfg Config) (*Service, *jobs.Repo) {
	t.Helper()
	st, err := store.Open(store.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "jobs.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	repo := jobs.NewRepo(st)
	svc := New(cfg, repo, sender, nil, logx.Nop())
	return svc, repo
}

func TestTickOneTimeFiresExactlyOnce(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	svc, repo := newTestService(t, sender)
	ctx := context.Background()

	trigger := mustTime(t, "2026-03-10 09:00:00")
	job := store.Job{
		ID:          "j1",
		Recipients:  []string{"g1", "g2"},
		Title:       "t",
		MessageText: "hello",
		TriggerAt:   trigger,
		Recurrence:  store.RecurNone,
	}
	if err := repo.Append(ctx, job); err != nil {
		t.Fatalf("append: %v", err)
	}

	rep := svc.Tick(ctx, trigger.Add(-time.Minute))
	if rep.Due != 0 || len(sender.sends) != 0 {
		t.Fatalf("nothing should fire before the trigger, got due=%d sends=%v", rep.Due, sender.sends)
	}

	rep = svc.Tick(ctx, trigger.Add(time.Minute))
	if rep.Due != 1 || rep.Sent != 2 {
		t.Fatalf("due=%d sent=%d, want 1/2", rep.Due, rep.Sent)
	}
	if sender.count("g1") != 1 || sender.count("g2") != 1 {
		t.Fatalf("each recipient gets exactly one message, got %v", sender.sends)
	}

	got, ok, err := repo.Get(ctx, "j1")
	if err != nil || !ok {
		t.Fatalf("get after fire: ok=%v err=%v", ok, err)
	}
	if !got.Delivered {
		t.Fatal("one-time job must latch delivered")
	}

	// Later ticks see the latch and never send again.
	rep = svc.Tick(ctx, trigger.Add(time.Hour))
	if rep.Due != 0 || len(sender.sends) != 2 {
		t.Fatalf("delivered job fired again: due=%d sends=%v", rep.Due, sender.sends)
	}
}

func TestTickDailyFiresOncePerDay(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	svc, repo := newTestService(t, sender)
	ctx := context.Background()

	if err := repo.Append(ctx, store.Job{
		ID:          "daily",
		Recipients:  []string{"g1"},
		MessageText: "standup",
		TriggerAt:   mustTime(t, "2026-01-01 09:00:00"),
		Recurrence:  store.RecurDaily,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// 08:59, 09:01 and 09:05 on the same day, then 09:01 the next day.
	for _, tc := range []struct {
		now  string
		want int // cumulative sends
	}{
		{"2026-03-10 08:59:00", 0},
		{"2026-03-10 09:01:00", 1},
		{"2026-03-10 09:05:00", 1},
		{"2026-03-11 09:01:00", 2},
	} {
		svc.Tick(ctx, mustTime(t, tc.now))
		if got := sender.count("g1"); got != tc.want {
			t.Fatalf("after tick at %s: sends = %d, want %d", tc.now, got, tc.want)
		}
	}

	got, _, err := repo.Get(ctx, "daily")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastFired != "2026-03-11" {
		t.Fatalf("last fired = %q, want 2026-03-11", got.LastFired)
	}
}

func TestTickWeeklyOverTwoWeeks(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	svc, repo := newTestService(t, sender)
	ctx := context.Background()

	day := 2 // Tuesday
	if err := repo.Append(ctx, store.Job{
		ID:          "weekly",
		Recipients:  []string{"g1"},
		MessageText: "weekly sync",
		TriggerAt:   mustTime(t, "2026-01-01 09:00:00"),
		Recurrence:  store.RecurWeekly,
		WeekDay:     &day,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// One tick per day at 10:00 across two weeks starting Monday 2026-03-09.
	start := mustTime(t, "2026-03-09 10:00:00")
	for i := 0; i < 14; i++ {
		svc.Tick(ctx, start.AddDate(0, 0, i))
	}
	if got := sender.count("g1"); got != 2 {
		t.Fatalf("weekly job fired %d times in two weeks, want 2", got)
	}
}

func TestTickPartialFailureStillTransitions(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{fail: map[string]error{"bad": errors.New("boom")}}
	svc, repo := newTestService(t, sender)
	ctx := context.Background()

	trigger := mustTime(t, "2026-03-10 09:00:00")
	if err := repo.Append(ctx, store.Job{
		ID:          "j1",
		Recipients:  []string{"bad", "good"},
		MessageText: "m",
		TriggerAt:   trigger,
		Recurrence:  store.RecurNone,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	rep := svc.Tick(ctx, trigger.Add(time.Minute))
	if rep.Sent != 1 || len(rep.Failures) != 1 {
		t.Fatalf("sent=%d failures=%d, want 1/1", rep.Sent, len(rep.Failures))
	}
	if rep.Failures[0].Recipient != "bad" {
		t.Fatalf("failure recipient = %q", rep.Failures[0].Recipient)
	}

	got, _, err := repo.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Delivered {
		t.Fatal("job must transition even when some sends fail")
	}

	// No redelivery for the recipient that succeeded.
	svc.Tick(ctx, trigger.Add(time.Hour))
	if got := sender.count("good"); got != 1 {
		t.Fatalf("good recipient received %d messages, want 1", got)
	}
}

func TestTickDeletedJobNeverFires(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	svc, repo := newTestService(t, sender)
	ctx := context.Background()

	trigger := mustTime(t, "2026-03-10 09:00:00")
	if err := repo.Append(ctx, store.Job{
		ID:          "gone",
		Recipients:  []string{"g1"},
		MessageText: "m",
		TriggerAt:   trigger,
		Recurrence:  store.RecurNone,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	err := repo.Update(ctx, func(all []store.Job) ([]store.Job, error) {
		return all[:0], nil
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}

	rep := svc.Tick(ctx, trigger.Add(time.Minute))
	if rep.Due != 0 || len(sender.sends) != 0 {
		t.Fatalf("deleted job fired: due=%d sends=%v", rep.Due, sender.sends)
	}
}

func TestTickRearmedJobFiresOnceMore(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	svc, repo := newTestService(t, sender)
	ctx := context.Background()

	trigger := mustTime(t, "2026-03-10 09:00:00")
	if err := repo.Append(ctx, store.Job{
		ID:          "j1",
		Recipients:  []string{"g1"},
		MessageText: "m",
		TriggerAt:   trigger,
		Recurrence:  store.RecurNone,
	}); err != nil {
		t.Fatalf("append: %v", err)
	}

	svc.Tick(ctx, trigger.Add(time.Minute))
	if got := sender.count("g1"); got != 1 {
		t.Fatalf("first fire: sends = %d", got)
	}

	// An edit clears the latch; the job is eligible exactly once more.
	err := repo.Update(ctx, func(all []store.Job) ([]store.Job, error) {
		all[0].Delivered = false
		return all, nil
	})
	if err != nil {
		t.Fatalf("re-arm: %v", err)
	}

	svc.Tick(ctx, trigger.Add(time.Hour))
	svc.Tick(ctx, trigger.Add(2*time.Hour))
	if got := sender.count("g1"); got != 2 {
		t.Fatalf("after re-arm: sends = %d, want 2", got)
	}
}

// blockingSender parks every Push until release is closed, signaling each
// entry on entered. It lets tests hold a tick open mid-send.
type blockingSender struct {
	entered chan string
	release chan struct{}

	mu    sync.Mutex
	sends []string
}

func newBlockingSender() *blockingSender {
	return &blockingSender{entered: make(chan string, 8), release: make(chan struct{})}
}

func (b *blockingSender) Push(ctx context.Context, recipientID, _, _ string) error {
	b.entered <- recipientID
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.mu.Lock()
	b.sends = append(b.sends, recipientID)
	b.mu.Unlock()
	return nil
}

func (b *blockingSender) sent() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sends)
}

// hungSender never returns until the per-send context expires.
type hungSender struct{}

func (hungSender) Push(ctx context.Context, _, _, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func appendDueJob(t *testing.T, repo *jobs.Repo, id string, recipients ...string) {
	t.Helper()
	if err := repo.Append(context.Background(), store.Job{
		ID:          id,
		Recipients:  recipients,
		MessageText: "m",
		TriggerAt:   time.Now().Add(-time.Minute),
		Recurrence:  store.RecurNone,
	}); err != nil {
		t.Fatalf("append %s: %v", id, err)
	}
}

func TestRunTickSingleFlight(t *testing.T) {
	t.Parallel()
	sender := newBlockingSender()
	svc, repo := newTestService(t, sender)
	appendDueJob(t, repo, "j1", "g1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.runTick()
	}()
	<-sender.entered // first tick is mid-send and owns the job

	// Overlapping ticks are skipped outright, not queued: they return
	// immediately even though the first tick is still parked in Push.
	svc.runTick()
	svc.runTick()

	close(sender.release)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("tick did not finish")
	}

	if got := sender.sent(); got != 1 {
		t.Fatalf("sends = %d, want exactly 1 across three overlapping ticks", got)
	}
	j, _, err := repo.Get(context.Background(), "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !j.Delivered {
		t.Fatal("job must be delivered after the surviving tick")
	}
}

func TestCreateWaitsForInFlightTick(t *testing.T) {
	t.Parallel()
	sender := newBlockingSender()
	svc, repo := newTestService(t, sender)
	appendDueJob(t, repo, "j1", "g1")
	ctx := context.Background()

	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		svc.Tick(ctx, time.Now())
	}()
	<-sender.entered // tick holds the store across its load-then-replace

	appendDone := make(chan error, 1)
	go func() {
		appendDone <- repo.Append(ctx, store.Job{
			ID:          "j2",
			Recipients:  []string{"g2"},
			MessageText: "m",
			TriggerAt:   time.Now().Add(time.Hour),
			Recurrence:  store.RecurNone,
		})
	}()

	// The create must block until the tick commits; otherwise the tick's
	// ReplaceAll would overwrite it.
	select {
	case <-appendDone:
		t.Fatal("append completed while the tick still owned the store")
	case <-time.After(100 * time.Millisecond):
	}

	close(sender.release)
	select {
	case <-tickDone:
	case <-time.After(5 * time.Second):
		t.Fatal("tick did not finish")
	}
	if err := <-appendDone; err != nil {
		t.Fatalf("append: %v", err)
	}

	all, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("store has %d jobs, want both the fired and the created one", len(all))
	}
	if !all[0].Delivered || all[1].ID != "j2" {
		t.Fatalf("store contents = %+v", all)
	}
}

func TestSendTimeoutBoundsHungSender(t *testing.T) {
	t.Parallel()
	svc, repo := newTestServiceCfg(t, hungSender{}, Config{SendTimeout: 50 * time.Millisecond, MaxInflight: 2, RatePerSec: 1000})
	appendDueJob(t, repo, "j1", "g1")
	ctx := context.Background()

	type result struct{ rep Report }
	resCh := make(chan result, 1)
	go func() {
		resCh <- result{rep: svc.Tick(ctx, time.Now())}
	}()

	var rep Report
	select {
	case r := <-resCh:
		rep = r.rep
	case <-time.After(5 * time.Second):
		t.Fatal("tick never returned; a hung sender must not stall it past its send timeout")
	}

	if rep.Sent != 0 || len(rep.Failures) != 1 {
		t.Fatalf("sent=%d failures=%d, want the hung send reported as a failure", rep.Sent, len(rep.Failures))
	}
	j, _, err := repo.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !j.Delivered {
		t.Fatal("job must still transition after the bounded send attempt")
	}
}

func TestStopWaitsForInFlightTickCommit(t *testing.T) {
	t.Parallel()
	sender := newBlockingSender()
	svc, repo := newTestService(t, sender)
	appendDueJob(t, repo, "j1", "g1")

	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		svc.runTick()
	}()
	<-sender.entered

	stopDone := make(chan struct{})
	go func() {
		defer close(stopDone)
		svc.Stop()
	}()

	// Stop must block behind the in-flight tick and must not cancel its
	// sends: the parked Push stays parked instead of failing with a
	// canceled context.
	select {
	case <-stopDone:
		t.Fatal("stop returned while a tick was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(sender.release)
	select {
	case <-tickDone:
	case <-time.After(5 * time.Second):
		t.Fatal("tick did not finish")
	}
	select {
	case <-stopDone:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return after the tick committed")
	}

	if got := sender.sent(); got != 1 {
		t.Fatalf("sends = %d, want the in-flight send to complete", got)
	}
	j, _, err := repo.Get(context.Background(), "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !j.Delivered {
		t.Fatal("shutdown must let the tick finish its persistence write")
	}
}

func TestLastReportIsRetained(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{}
	svc, _ := newTestService(t, sender)

	if _, ok := svc.Last(); ok {
		t.Fatal("no report expected before the first tick")
	}
	now := mustTime(t, "2026-03-10 09:00:00")
	svc.Tick(context.Background(), now)
	rep, ok := svc.Last()
	if !ok || !rep.At.Equal(now) {
		t.Fatalf("last report = %+v ok=%v", rep, ok)
	}
}
