package core

// archiver.go runs the background archive export.
//
// All run state lives in one atomic word: the low byte holds the Status, the
// next byte the progress percent and the remaining bits a run generation.
// Start bumps the generation. A run only writes the word through
// CompareAndSwap against the value it last wrote, so once Reset (or a newer
// run) has touched the word the old run can neither move progress nor
// complete. Archives and failure reasons carry the generation that produced
// them and are only served while that generation is current.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/contacts/internal/metrics"
)

// ErrArchiveTimeout is the failure reason of a run that exceeded RunTimeout.
var ErrArchiveTimeout = errors.New("archive run timed out")

// Status is the lifecycle state of the archiver's single job slot.
type Status uint8

const (
	StatusWaiting Status = iota
	StatusRunning
	StatusComplete
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusRunning:
		return "running"
	case StatusComplete:
		return "complete"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(text []byte) error {
	for _, st := range []Status{StatusWaiting, StatusRunning, StatusComplete, StatusFailed} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown archive status %q", text)
}

// ArchiverConfig tunes the simulated archive work.
// Zero values fall back to the defaults below.
type ArchiverConfig struct {
	Stages        int           // Progress steps per run (default: 10)
	MaxStageDelay time.Duration // Upper bound of each stage's random delay (default: 1s)
	SettleDelay   time.Duration // Pause after the last stage (default: 1s)
	RunTimeout    time.Duration // Bound on a whole run (default: 1m)
}

// DefaultArchiverConfig returns the stock run shape.
func DefaultArchiverConfig() ArchiverConfig {
	return ArchiverConfig{
		Stages:        10,
		MaxStageDelay: time.Second,
		SettleDelay:   time.Second,
		RunTimeout:    time.Minute,
	}
}

func (c ArchiverConfig) withDefaults() ArchiverConfig {
	d := DefaultArchiverConfig()
	if c.Stages <= 0 {
		c.Stages = d.Stages
	}
	if c.MaxStageDelay < 0 {
		c.MaxStageDelay = 0
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = d.RunTimeout
	}
	return c
}

// ContactSource supplies the full contact set for an archive.
type ContactSource interface {
	All(ctx context.Context) ([]Contact, error)
}

// ArchiveState is a consistent view of the archiver taken from one read.
type ArchiveState struct {
	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`
	RunID    string  `json:"run_id,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// Archiver produces archives of the contact set in the background.
// At most one run is active at a time.
type Archiver struct {
	source  ContactSource
	cfg     ArchiverConfig
	metrics *metrics.Metrics

	state   atomic.Uint64
	run     atomic.Pointer[archiveRun]
	archive atomic.Pointer[Archive]

	wg sync.WaitGroup
}

type archiveRun struct {
	gen     uint64
	id      string
	started time.Time
	cancel  context.CancelFunc
	err     atomic.Pointer[error]
}

// NewArchiver creates an archiver in the Waiting state.
func NewArchiver(source ContactSource, cfg ArchiverConfig, m *metrics.Metrics) *Archiver {
	return &Archiver{
		source:  source,
		cfg:     cfg.withDefaults(),
		metrics: m,
	}
}

// Start begins a run when the archiver is Waiting and reports whether it did.
// While Running it is a no-op. After Complete or Failed the state is kept
// until Reset is called.
func (a *Archiver) Start() bool {
	for {
		cur := runState(a.state.Load())
		if cur.status() != StatusWaiting {
			return false
		}

		next := packState(cur.gen()+1, 0, StatusRunning)
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RunTimeout)
		if !a.state.CompareAndSwap(uint64(cur), uint64(next)) {
			cancel()
			continue
		}

		run := &archiveRun{
			gen:     next.gen(),
			id:      uuid.NewString(),
			started: time.Now(),
			cancel:  cancel,
		}
		a.publishRun(run)
		if now := runState(a.state.Load()); now.gen() != run.gen || now.status() != StatusRunning {
			// a Reset landed before the run was visible to it
			cancel()
		}
		a.metrics.SetArchiveProgress(0)

		a.wg.Add(1)
		go a.execute(ctx, run, next)
		return true
	}
}

// Reset returns the archiver to Waiting from any state, signals an in-flight
// run to stop and drops the current archive.
func (a *Archiver) Reset() {
	var gen uint64
	for {
		cur := runState(a.state.Load())
		gen = cur.gen()
		if a.state.CompareAndSwap(uint64(cur), uint64(packState(gen, 0, StatusWaiting))) {
			break
		}
	}

	if run := a.run.Load(); run != nil && run.gen == gen {
		run.cancel()
	}
	if old := a.archive.Load(); old != nil && old.gen <= gen {
		a.archive.CompareAndSwap(old, nil)
	}
	a.metrics.SetArchiveProgress(0)
}

// Status returns the current lifecycle state.
func (a *Archiver) Status() Status {
	return runState(a.state.Load()).status()
}

// Progress returns the current run's progress in [0, 1].
func (a *Archiver) Progress() float64 {
	return float64(runState(a.state.Load()).progress()) / 100
}

// Archive returns the archive of the completed run, or nil unless the
// archiver is Complete.
func (a *Archiver) Archive() *Archive {
	cur := runState(a.state.Load())
	if cur.status() != StatusComplete {
		return nil
	}
	ar := a.archive.Load()
	if ar == nil || ar.gen != cur.gen() {
		return nil
	}
	return ar
}

// Err returns the reason of a Failed run, or nil in any other state.
func (a *Archiver) Err() error {
	cur := runState(a.state.Load())
	if cur.status() != StatusFailed {
		return nil
	}
	run := a.run.Load()
	if run == nil || run.gen != cur.gen() {
		return nil
	}
	if err := run.err.Load(); err != nil {
		return *err
	}
	return nil
}

// State returns status, progress and run details from a single read.
func (a *Archiver) State() ArchiveState {
	cur := runState(a.state.Load())
	st := ArchiveState{
		Status:   cur.status(),
		Progress: float64(cur.progress()) / 100,
	}
	if cur.status() == StatusWaiting {
		return st
	}
	if run := a.run.Load(); run != nil && run.gen == cur.gen() {
		st.RunID = run.id
		if err := run.err.Load(); err != nil && cur.status() == StatusFailed {
			st.Error = (*err).Error()
		}
	}
	return st
}

// Wait blocks until no run goroutine is in flight or ctx is done.
func (a *Archiver) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops any in-flight run and waits for its goroutine to exit.
func (a *Archiver) Shutdown(ctx context.Context) error {
	if a.Status() == StatusRunning {
		a.Reset()
	}
	return a.Wait(ctx)
}

func (a *Archiver) execute(ctx context.Context, run *archiveRun, cur runState) {
	defer a.wg.Done()
	defer run.cancel()

	log := slog.With("run_id", run.id)
	log.Info("archive run started", "stages", a.cfg.Stages)

	for i := range a.cfg.Stages {
		if err := sleepCtx(ctx, stageDelay(a.cfg.MaxStageDelay)); err != nil {
			a.interrupt(run, cur, err, log)
			return
		}

		pct := (i + 1) * 100 / a.cfg.Stages
		next := cur.withProgress(pct)
		if !a.state.CompareAndSwap(uint64(cur), uint64(next)) {
			a.aborted(log)
			return
		}
		cur = next
		a.metrics.SetArchiveProgress(pct)
	}

	if err := sleepCtx(ctx, a.cfg.SettleDelay); err != nil {
		a.interrupt(run, cur, err, log)
		return
	}
	if runState(a.state.Load()) != cur {
		a.aborted(log)
		return
	}

	contacts, err := a.source.All(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			a.interrupt(run, cur, ctxErr, log)
			return
		}
		a.fail(run, cur, fmt.Errorf("load contacts: %w", err), log)
		return
	}

	ar, err := newArchive(cur.gen(), run.id, contacts)
	if err != nil {
		a.fail(run, cur, err, log)
		return
	}

	if !a.publishArchive(ar) {
		a.aborted(log)
		return
	}
	if !a.state.CompareAndSwap(uint64(cur), uint64(packState(cur.gen(), 100, StatusComplete))) {
		a.archive.CompareAndSwap(ar, nil)
		a.aborted(log)
		return
	}

	a.metrics.SetArchiveProgress(100)
	a.metrics.ObserveArchiveRun("complete")
	log.Info("archive run complete",
		"contacts", ar.Count,
		"bytes", ar.Size(),
		"duration_ms", time.Since(run.started).Milliseconds(),
	)
}

// publishRun makes run the current run unless a newer one is already set.
func (a *Archiver) publishRun(run *archiveRun) bool {
	for {
		old := a.run.Load()
		if old != nil && old.gen > run.gen {
			return false
		}
		if a.run.CompareAndSwap(old, run) {
			return true
		}
	}
}

// publishArchive stores ar unless an archive from a newer run is already set.
func (a *Archiver) publishArchive(ar *Archive) bool {
	for {
		old := a.archive.Load()
		if old != nil && old.gen > ar.gen {
			return false
		}
		if a.archive.CompareAndSwap(old, ar) {
			return true
		}
	}
}

// interrupt handles a run whose context ended before it finished.
func (a *Archiver) interrupt(run *archiveRun, cur runState, err error, log *slog.Logger) {
	if errors.Is(err, context.DeadlineExceeded) {
		err = ErrArchiveTimeout
	} else {
		err = fmt.Errorf("archive run canceled: %w", err)
	}
	a.fail(run, cur, err, log)
}

func (a *Archiver) fail(run *archiveRun, cur runState, err error, log *slog.Logger) {
	run.err.Store(&err)
	if !a.state.CompareAndSwap(uint64(cur), uint64(packState(cur.gen(), cur.progress(), StatusFailed))) {
		a.aborted(log)
		return
	}
	result := "failed"
	if errors.Is(err, ErrArchiveTimeout) {
		result = "timeout"
	}
	a.metrics.ObserveArchiveRun(result)
	log.Error("archive run failed", "error", err, "duration_ms", time.Since(run.started).Milliseconds())
}

func (a *Archiver) aborted(log *slog.Logger) {
	a.metrics.ObserveArchiveRun("aborted")
	log.Info("archive run aborted")
}

// runState packs status (bits 0-7), progress (bits 8-15) and generation.
type runState uint64

const (
	progressShift = 8
	genShift      = 16
)

func packState(gen uint64, progress int, status Status) runState {
	return runState(gen<<genShift | uint64(progress&0xff)<<progressShift | uint64(status))
}

func (s runState) status() Status { return Status(s & 0xff) }
func (s runState) progress() int  { return int(s >> progressShift & 0xff) }
func (s runState) gen() uint64    { return uint64(s) >> genShift }

func (s runState) withProgress(pct int) runState {
	return packState(s.gen(), pct, s.status())
}

func stageDelay(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return rand.N(limit)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
