// Package manager implements the Manager: the process-wide coordinator
// owning the Database, the in-flight set, the active-job registry, the
// unload and observation queues, the Job scheduler, and the per-frame
// tick that drives progress, notifications, and unloads.
//
// The Job scheduler is a bounded-width pool of Job completion
// orchestrations rather than a single task queue.
package manager

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/spaghettifunk/cinderload/loader/config"
	"github.com/spaghettifunk/cinderload/loader/containers"
	"github.com/spaghettifunk/cinderload/loader/core"
	"github.com/spaghettifunk/cinderload/loader/database"
	"github.com/spaghettifunk/cinderload/loader/job"
	"github.com/spaghettifunk/cinderload/loader/model"
)

// DefaultJobSchedulerWidth is the default width of the Job scheduler
// pool when the caller does not specify one.
const DefaultJobSchedulerWidth = 4

// ObserveRequest is one entry of the observation queue, drained on the
// first step of each tick.
type ObserveRequest struct {
	Kind           model.ResourceKind
	Path           model.VirtualPath
	Observer       database.Observer
	RequiredAccess model.AccessLevel
	Tag            string
	IsLive         func() bool
}

// UnloadRequest is one entry of the unload queue, drained on the second
// step of each tick.
type UnloadRequest struct {
	Path        model.VirtualPath
	Unconditional bool
}

// GPUStagingFlusher flushes any pending GPU geometry staging once no
// Jobs are active. Supplied by the host; nil means there is nothing to
// flush.
type GPUStagingFlusher interface {
	FlushPendingStaging()
}

// activeJob tracks one registered Job plus a channel closed when its
// completion orchestration finishes, and the error that orchestration
// returned.
type activeJob struct {
	builder *job.Builder
	done    chan struct{}
	err     error
}

// Manager is the process-wide coordinator.
type Manager struct {
	cfg config.Config

	db       *database.Database
	inFlight *containers.SyncSet[model.VirtualPath]

	unloadQueue     *containers.SyncQueue[UnloadRequest]
	observeQueue    *containers.SyncQueue[ObserveRequest]
	schedulerSem    *semaphore.Weighted

	mu         sync.Mutex
	activeJobs map[string]*activeJob

	stagingFlusher GPUStagingFlusher

	refreshBuilder *job.Builder

	clock   *core.Clock
	metrics *core.TickMetrics

	udsfmPending     bool
	unloadedTexPending bool

	wasActive bool
}

// New builds a Manager. cfg's zero-valued numeric fields fall back to
// documented defaults via config.Config.WithDefaults.
func New(cfg config.Config, stagingFlusher GPUStagingFlusher) *Manager {
	cfg = cfg.WithDefaults()
	m := &Manager{
		cfg:          cfg,
		inFlight:     containers.NewSyncSet[model.VirtualPath](),
		unloadQueue:  containers.NewSyncQueue[UnloadRequest](),
		observeQueue: containers.NewSyncQueue[ObserveRequest](),
		activeJobs:   make(map[string]*activeJob),
		stagingFlusher: stagingFlusher,
		clock:        core.NewClock(),
		metrics:      core.NewTickMetrics(),
	}
	m.schedulerSem = semaphore.NewWeighted(int64(cfg.JobSchedulerWidth))
	m.db = database.New(m.onZeroRefLoaded)
	return m
}

// Database exposes the handle table for observers/pipelines that need
// direct lookups (e.g. a decoder resolving a dependency).
func (m *Manager) Database() *database.Database { return m.db }

// InFlightSet exposes the shared in-flight guard so a Job Builder can be
// constructed against it.
func (m *Manager) InFlightSet() *containers.SyncSet[model.VirtualPath] { return m.inFlight }

// SetRefreshBuilder installs the Builder the udsfm/unloaded-textures
// refresh scans run against. Unlike a Job registered with RegisterJob,
// this Builder's Job is never completed by the Manager: it stays open
// across "no jobs active" periods, since that is exactly when a refresh
// is due to run, so there has to be a live Job able to accept the
// container-expansion work the scans queue. Its reply buffer is drained
// every tick alongside the active jobs'.
func (m *Manager) SetRefreshBuilder(b *job.Builder) {
	m.mu.Lock()
	m.refreshBuilder = b
	m.mu.Unlock()
}

func (m *Manager) refreshBuilderSnapshot() *job.Builder {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshBuilder
}

// onZeroRefLoaded is wired into the Database; it schedules a conditional
// unload by pushing onto the unload queue rather than unloading inline
// (unload only ever happens on the tick goroutine).
func (m *Manager) onZeroRefLoaded(h *database.Handle) {
	m.unloadQueue.Push(UnloadRequest{Path: h.VirtualPath(), Unconditional: false})
}

// Observe enqueues an observation request, drained on the next tick.
// Safe to call from any goroutine.
func (m *Manager) Observe(req ObserveRequest) {
	m.observeQueue.Push(req)
}

// Unload enqueues an unload request, drained on the next tick when no
// jobs are active.
func (m *Manager) Unload(req UnloadRequest) {
	m.unloadQueue.Push(req)
}

// RegisterJob adds b's Job to the active-job registry and schedules its
// completion orchestration on the Job scheduler pool, bounded to
// job_scheduler_width concurrent orchestrations.
func (m *Manager) RegisterJob(ctx context.Context, b *job.Builder) {
	aj := &activeJob{builder: b, done: make(chan struct{})}

	m.mu.Lock()
	m.activeJobs[b.Job().ID().String()] = aj
	m.mu.Unlock()

	go func() {
		if err := m.schedulerSem.Acquire(ctx, 1); err != nil {
			aj.err = err
			close(aj.done)
			return
		}
		defer m.schedulerSem.Release(1)
		aj.err = b.Job().Complete(ctx)
		close(aj.done)
	}()
}

// RequestUDSFMRefresh arms the one-shot udsfm refresh flag, run the next
// time no Jobs are active.
func (m *Manager) RequestUDSFMRefresh() {
	m.mu.Lock()
	m.udsfmPending = true
	m.mu.Unlock()
}

// RequestUnloadedTexturesRefresh arms the one-shot unloaded-textures
// refresh flag.
func (m *Manager) RequestUnloadedTexturesRefresh() {
	m.mu.Lock()
	m.unloadedTexPending = true
	m.mu.Unlock()
}

// Tick runs one pass of the five-step cooperative tick. Intended to be
// invoked once per UI frame by the host; never blocks. Its duration,
// active-job count, and replies processed are folded into the
// TickMetrics exposed through Snapshot.
func (m *Manager) Tick(ctx context.Context) {
	m.clock.Start()

	m.drainObservations()

	activeBefore := m.activeCount() > 0

	if !activeBefore {
		m.inFlight.Clear()
		m.drainUnloads()
	}

	repliesProcessed := m.drainReplies()
	activeAfter := m.reapFinishedJobs()
	anyActive := activeAfter > 0

	if !anyActive {
		if m.stagingFlusher != nil {
			m.stagingFlusher.FlushPendingStaging()
		}
		m.runRefreshes(ctx)
	}

	if m.wasActive && !anyActive {
		m.db.SweepUnusedAndRemove()
	}
	m.wasActive = anyActive

	m.clock.Update()
	m.metrics.RecordTick(float64(m.clock.Elapsed().Microseconds())/1000.0, activeAfter, repliesProcessed)
}

func (m *Manager) drainObservations() {
	for _, req := range m.observeQueue.DrainAll() {
		isLive := req.IsLive
		if _, err := m.db.Observe(req.Kind, req.Path, req.Observer, req.RequiredAccess, req.Tag, isLive); err != nil {
			// KindMismatch is a programming-error invariant violation,
			// never a recoverable load failure: it means something is
			// requesting two different resource kinds under the same
			// virtual path. LogFatal aborts the process, matching the
			// invariant's contract.
			core.LogFatal("%s", err.Error())
		}
	}
}

func (m *Manager) drainUnloads() {
	for _, req := range m.unloadQueue.DrainAll() {
		m.db.ProcessUnload(req.Path, req.Unconditional)
	}
}

// drainReplies implements tick step 3: for every active job, drain its
// reply buffer non-blocking and install each reply into the database.
// The refresh builder's Job is drained the same way even though it
// never appears in the active-job registry. Returns the total number of
// replies installed, folded into TickMetrics.
func (m *Manager) drainReplies() int {
	total := 0
	for _, aj := range m.snapshotActiveJobs() {
		total += m.drainJobReplies(aj.builder.Job())
	}
	if rb := m.refreshBuilderSnapshot(); rb != nil {
		total += m.drainJobReplies(rb.Job())
	}
	return total
}

// drainJobReplies drains j's reply buffer non-blocking and installs each
// reply into the database. Once j.FatalErr() is set (a strict-mode
// descriptor exhaustion already flagged the Job as failing), remaining
// replies are drained and discarded rather than installed: Complete's
// own FatalErr check runs later than this tick, so without this guard a
// sibling slot's reply could still land in the database between the
// fatal flag being set and the Job's completion future resolving.
func (m *Manager) drainJobReplies(j *job.Job) int {
	n := 0
	for {
		select {
		case reply, ok := <-j.ReplyChan():
			if !ok {
				return n
			}
			if j.FatalErr() != nil {
				continue
			}
			if err := m.db.Install(reply.Kind, reply.Path, reply.Resource, reply.Access); err != nil {
				// Same invariant-violation contract as drainObservations:
				// KindMismatch here must abort the Job and the process.
				core.LogFatal("%s", err.Error())
				continue
			}
			j.RecordProgress()
			n++
		default:
			return n
		}
	}
}

// reapFinishedJobs removes jobs whose completion future has fired,
// returning the number still active.
func (m *Manager) reapFinishedJobs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, aj := range m.activeJobs {
		select {
		case <-aj.done:
			if aj.err != nil {
				core.LogError("job %q failed: %v", name, aj.err)
			}
			delete(m.activeJobs, name)
		default:
		}
	}
	return len(m.activeJobs)
}

func (m *Manager) runRefreshes(ctx context.Context) {
	m.mu.Lock()
	runUDSFM := m.udsfmPending
	runUnloaded := m.unloadedTexPending
	rb := m.refreshBuilder
	m.udsfmPending = false
	m.unloadedTexPending = false
	m.mu.Unlock()

	if rb == nil || (!runUDSFM && !runUnloaded) {
		return
	}
	if runUDSFM {
		rb.LoadUDSFMTextures(ctx)
	}
	if runUnloaded {
		rb.LoadUnloadedTextures(ctx)
	}
}

func (m *Manager) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.activeJobs)
}

func (m *Manager) snapshotActiveJobs() []*activeJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*activeJob, 0, len(m.activeJobs))
	for _, aj := range m.activeJobs {
		out = append(out, aj)
	}
	return out
}

// Snapshot is the UI polling surface: one entry per currently active
// Job, plus the rolling tick-timing metrics.
type Snapshot struct {
	Jobs    []JobStatus
	Metrics core.Snapshot
}

// JobStatus reports one active Job's progress for the UI.
type JobStatus struct {
	Name          string
	Progress      int
	EstimatedSize int
	Finished      bool
}

// Snapshot reports the current state of every active Job.
func (m *Manager) Snapshot() Snapshot {
	snap := Snapshot{Metrics: m.metrics.Snapshot()}
	for _, aj := range m.snapshotActiveJobs() {
		j := aj.builder.Job()
		snap.Jobs = append(snap.Jobs, JobStatus{
			Name:          j.Name(),
			Progress:      j.Progress(),
			EstimatedSize: j.EstimatedSize(),
			Finished:      j.Finished(),
		})
	}
	return snap
}
