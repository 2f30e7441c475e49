package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"scrub/internal/pipeline"
	"scrub/internal/pipeline/readers"
	"scrub/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Job Service — business logic for cleaning jobs
// ─────────────────────────────────────────────────────────────

// runTimeout bounds a single pipeline execution.
const runTimeout = 10 * time.Minute

// JobService manages cleaning jobs: CRUD, execution, scheduling, and
// file watching. Execution wires a reader, the compiled pipeline, and
// the clean-record destination together, then persists the run and its
// audit trail.
type JobService struct {
	jobs        *storage.JobStore
	runs        *storage.RunStore
	dest        *storage.CleanStore
	emitter     EventEmitter
	log         zerolog.Logger
	runningJobs runningJobsGuard

	// watcher / cron lifecycle
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewJobService creates a JobService ready for use.
func NewJobService(
	jobs *storage.JobStore,
	runs *storage.RunStore,
	dest *storage.CleanStore,
	emitter EventEmitter,
	log zerolog.Logger,
) *JobService {
	return &JobService{
		jobs:    jobs,
		runs:    runs,
		dest:    dest,
		emitter: emitter,
		log:     log.With().Str("component", "jobs").Logger(),
	}
}

// ── Job CRUD ───────────────────────────────────────────────

// CreateJob validates and stores a job definition. Validation is the
// startup gate: a stored job can be assumed runnable as far as its
// configuration goes.
func (s *JobService) CreateJob(ctx context.Context, job *pipeline.Job) error {
	if err := validateJob(job); err != nil {
		return err
	}
	if err := s.jobs.CreateJob(job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	s.RestartWatchers(ctx)
	return nil
}

func (s *JobService) GetJob(id string) (*pipeline.Job, error) {
	return s.jobs.GetJob(id)
}

func (s *JobService) ListJobs() ([]pipeline.Job, error) {
	return s.jobs.ListJobs()
}

func (s *JobService) UpdateJob(ctx context.Context, job *pipeline.Job) error {
	if err := validateJob(job); err != nil {
		return err
	}
	if err := s.jobs.UpdateJob(job); err != nil {
		return err
	}
	s.RestartWatchers(ctx)
	return nil
}

func (s *JobService) DeleteJob(ctx context.Context, id string) error {
	if s.runningJobs.IsRunning(id) {
		return fmt.Errorf("job %s is running; wait for it to finish", id)
	}
	err := s.jobs.DeleteJob(id)
	if err == nil {
		s.RestartWatchers(ctx)
	}
	return err
}

func validateJob(job *pipeline.Job) error {
	if job.Name == "" {
		return fmt.Errorf("job has no name")
	}
	if _, err := readers.Get(job.ReaderType); err != nil {
		return err
	}
	if err := job.Pipeline.Validate(); err != nil {
		return err
	}
	switch job.TriggerType {
	case "", pipeline.TriggerManual, pipeline.TriggerSchedule, pipeline.TriggerFileWatch:
	default:
		return fmt.Errorf("unknown trigger type: %q", job.TriggerType)
	}
	return nil
}

// ── Run ────────────────────────────────────────────────────

// RunJob executes a stored job synchronously.
func (s *JobService) RunJob(ctx context.Context, id string) (*pipeline.Summary, error) {
	// Prevent concurrent execution of the same job.
	if !s.runningJobs.TryLock(id) {
		return nil, fmt.Errorf("job %s is already running", id)
	}
	defer s.runningJobs.Unlock(id)

	job, err := s.jobs.GetJob(id)
	if err != nil {
		return nil, err
	}

	s.jobs.UpdateJobStatus(id, "running", "")

	sum, runErr := s.Execute(ctx, job)

	status := pipeline.StatusAborted
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	if sum != nil {
		status = sum.Status
	}
	s.jobs.UpdateJobStatus(id, status, errMsg)

	if runErr == nil {
		s.emitter.Emit(ctx, "job:completed", map[string]any{
			"jobId":    id,
			"runId":    sum.RunID,
			"accepted": sum.Accepted,
		})
	}
	return sum, runErr
}

// Execute runs a job definition end-to-end without requiring it to be
// stored: wire the reader, seed the dedup index from the destination,
// run the pipeline, persist the summary and audit trail. Used both by
// RunJob and by ad-hoc runs from job files.
func (s *JobService) Execute(ctx context.Context, job *pipeline.Job) (*pipeline.Summary, error) {
	if err := validateJob(job); err != nil {
		return nil, err
	}

	src, err := readers.Open(job.ReaderType, readers.Config(job.ReaderConfig))
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	seed, err := s.dest.SeedIndex(runCtx)
	if err != nil {
		return nil, fmt.Errorf("seed dedup index: %w", err)
	}

	runner, err := pipeline.New(&job.Pipeline, s.dest, seed, s.log)
	if err != nil {
		return nil, err
	}

	sum, runErr := runner.Run(runCtx, src)

	// The summary is persisted even for aborted runs; a truncated run
	// with its cause on record beats a silent gap in history.
	if err := s.runs.SaveSummary(job.ID, sum); err != nil {
		s.log.Error().Err(err).Str("run", sum.RunID).Msg("persist run summary")
	}
	return sum, runErr
}

// Preview runs extraction and normalization over the first maxRows
// rows of a reader. Nothing is committed.
func (s *JobService) Preview(ctx context.Context, readerType string, cfg map[string]any, pcfg *pipeline.Config, maxRows int) ([]pipeline.CandidateRecord, error) {
	src, err := readers.Open(readerType, readers.Config(cfg))
	if err != nil {
		return nil, err
	}
	runner, err := pipeline.New(pcfg, nil, nil, s.log)
	if err != nil {
		return nil, err
	}

	previewCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if maxRows <= 0 {
		maxRows = 10
	}
	return runner.Preview(previewCtx, src, maxRows)
}

// DiscoverColumns samples a reader and returns its column labels.
func (s *JobService) DiscoverColumns(ctx context.Context, readerType string, cfg map[string]any) ([]string, error) {
	r, err := readers.Get(readerType)
	if err != nil {
		return nil, err
	}
	discCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	return r.Discover(discCtx, readers.Config(cfg))
}

// ListReaders returns the available reader descriptors.
func (s *JobService) ListReaders() []readers.Spec {
	return readers.List()
}

// ── Run history ────────────────────────────────────────────

// ListRuns returns the last 50 runs for a job (all jobs when jobID is
// empty).
func (s *JobService) ListRuns(jobID string) ([]storage.RunRecord, error) {
	return s.runs.ListRuns(jobID, 50)
}

// GetRun returns one stored run with its full per-row outcome log.
func (s *JobService) GetRun(runID string) (*storage.RunRecord, []pipeline.RowOutcome, error) {
	run, err := s.runs.GetRun(runID)
	if err != nil {
		return nil, nil, err
	}
	outcomes, err := s.runs.ListOutcomes(runID)
	if err != nil {
		return nil, nil, err
	}
	return run, outcomes, nil
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher/cron and rebuilds them from scratch.
func (s *JobService) RestartWatchers(ctx context.Context) {
	s.stopWatchers()

	jobs, err := s.jobs.ListEnabledTriggeredJobs()
	if err != nil {
		s.log.Error().Err(err).Msg("watcher: list jobs")
		return
	}

	// ── Cron jobs ──
	var cronJobs []struct {
		jobID string
		expr  string
	}
	for _, j := range jobs {
		if j.TriggerType == pipeline.TriggerSchedule && j.TriggerConfig != "" {
			cronJobs = append(cronJobs, struct {
				jobID string
				expr  string
			}{jobID: j.ID, expr: j.TriggerConfig})
		}
	}

	if len(cronJobs) > 0 {
		c := cron.New()
		for _, cj := range cronJobs {
			jid := cj.jobID
			_, err := c.AddFunc(cj.expr, func() {
				s.log.Info().Str("job", jid).Msg("cron trigger")
				if _, err := s.RunJob(ctx, jid); err != nil {
					s.log.Error().Err(err).Str("job", jid).Msg("cron run failed")
				}
			})
			if err != nil {
				s.log.Error().Err(err).Str("job", cj.jobID).Str("expr", cj.expr).Msg("invalid cron expression")
			}
		}
		c.Start()
		s.cronSched = c
		s.log.Info().Int("jobs", len(cronJobs)).Msg("cron schedule active")
	}

	// ── File watchers ──
	type watchEntry struct {
		jobID string
		path  string
	}
	var entries []watchEntry
	for _, j := range jobs {
		if j.TriggerType == pipeline.TriggerFileWatch && j.TriggerConfig != "" {
			entries = append(entries, watchEntry{jobID: j.ID, path: j.TriggerConfig})
		}
	}

	if len(entries) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Error().Err(err).Msg("watcher: create")
		return
	}
	s.watcher = watcher

	pathToJob := make(map[string]string)
	watchedDirs := make(map[string]bool)
	for _, e := range entries {
		absPath, err := filepath.Abs(e.path)
		if err != nil {
			s.log.Error().Err(err).Str("path", e.path).Msg("watcher: bad path")
			continue
		}
		pathToJob[absPath] = e.jobID

		dir := filepath.Dir(absPath)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				s.log.Error().Err(err).Str("dir", dir).Msg("watcher: watch dir")
			} else {
				watchedDirs[dir] = true
			}
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	go func() {
		// Editors fire bursts of writes; debounce per job so one save
		// means one run.
		timers := make(map[string]*time.Timer)
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				jobID, ok := pathToJob[absPath]
				if !ok {
					continue
				}
				if t, exists := timers[jobID]; exists {
					t.Stop()
				}
				jid := jobID
				timers[jobID] = time.AfterFunc(500*time.Millisecond, func() {
					s.log.Info().Str("job", jid).Str("path", absPath).Msg("file trigger")
					if _, err := s.RunJob(ctx, jid); err != nil {
						s.log.Error().Err(err).Str("job", jid).Msg("file-trigger run failed")
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Error().Err(err).Msg("watcher error")
			}
		}
	}()

	s.log.Info().Int("files", len(pathToJob)).Msg("file watch active")
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *JobService) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *JobService) Stop() {
	s.stopWatchers()
}

func (s *JobService) stopWatchers() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
