package discovery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	config "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Config"
	"gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.DashboardService/aggregator"
	"gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.DashboardService/pipeline"
	"gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.DashboardService/reporter"
	logger "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Logger"
	sfymodels "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Models"
	interfaces "gitlab.com/maplesense1/sfy.dashboard/src/production/SFY.Repository/Interfaces"
)

var (
	ErrStopped    = errors.New("discovery service stopped")
	ErrUnknownRun = errors.New("unknown discovery run")
)

const saveTimeout = 5 * time.Second

// runHistory bounds how many runs Wait can still look up
const runHistory = 16

// Runner executes one discovery run, emitting each device as it resolves
type Runner interface {
	Run(ctx context.Context, emit func(pipeline.DeviceResult)) (int, error)
}

type run struct {
	id      string
	trigger string
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	final   *sfymodels.Snapshot
}

// Service coordinates discovery runs. A new trigger cancels the run in flight;
// every run fills its own aggregator and only the current run may publish.
type Service struct {
	runner   Runner
	runs     interfaces.RunRepository
	reporter reporter.Reporter
	cfg      config.DiscoveryConfig
	logger   *logger.Logger

	now   func() time.Time
	newID func() string

	snapshot atomic.Pointer[sfymodels.Snapshot]

	mu       sync.Mutex
	current  *run
	byID     map[string]*run
	order    []string
	stopped  bool
	baseCtx  context.Context
	stopBase context.CancelFunc
	wg       sync.WaitGroup
}

func NewService(runner Runner, runs interfaces.RunRepository, rep reporter.Reporter, cfg config.DiscoveryConfig, log *logger.Logger) *Service {
	if rep == nil {
		rep = reporter.NopReporter{}
	}
	baseCtx, stopBase := context.WithCancel(context.Background())
	s := &Service{
		runner:   runner,
		runs:     runs,
		reporter: rep,
		cfg:      cfg,
		logger:   log.WithComponent("discovery"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		byID:     make(map[string]*run),
		baseCtx:  baseCtx,
		stopBase: stopBase,
	}
	s.snapshot.Store(&sfymodels.Snapshot{State: sfymodels.RunIdle, Buoys: []sfymodels.Buoy{}})
	return s
}

// Snapshot returns the latest published fleet view. It is never modified.
func (s *Service) Snapshot() *sfymodels.Snapshot {
	return s.snapshot.Load()
}

// Trigger cancels the run in flight, if any, and starts a new one
func (s *Service) Trigger(trigger string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return "", ErrStopped
	}

	if prev := s.current; prev != nil {
		s.logger.Logger.Info().Str("run_id", prev.id).Msg("Cancelling discovery run in flight")
		prev.cancel()
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if s.cfg.RunTimeout > 0 {
		ctx, cancel = context.WithTimeout(s.baseCtx, s.cfg.RunTimeout)
	} else {
		ctx, cancel = context.WithCancel(s.baseCtx)
	}
	r := &run{
		id:      s.newID(),
		trigger: trigger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.current = r
	s.byID[r.id] = r
	s.order = append(s.order, r.id)
	s.pruneFinished()

	started := s.now()
	s.snapshot.Store(&sfymodels.Snapshot{
		RunID:     r.id,
		Trigger:   trigger,
		State:     sfymodels.RunRunning,
		StartedAt: started,
		UpdatedAt: started,
		Buoys:     []sfymodels.Buoy{},
	})

	s.wg.Add(1)
	go s.execute(r, started)

	s.logger.Logger.Info().Str("run_id", r.id).Str("trigger", trigger).Msg("Discovery run started")
	return r.id, nil
}

// Wait blocks until the run finished and returns its final snapshot
func (s *Service) Wait(ctx context.Context, runID string) (*sfymodels.Snapshot, error) {
	s.mu.Lock()
	r, ok := s.byID[runID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}

	select {
	case <-r.done:
		return r.final, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start triggers the startup run and the periodic runs configured
func (s *Service) Start(ctx context.Context) error {
	if s.cfg.OnStart {
		if _, err := s.Trigger(sfymodels.TriggerStartup); err != nil {
			return err
		}
	}

	if s.cfg.Interval <= 0 {
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.baseCtx.Done():
				return
			case <-ticker.C:
				if s.running() {
					s.logger.Logger.Debug().Msg("Skipping periodic discovery, run still in flight")
					continue
				}
				if _, err := s.Trigger(sfymodels.TriggerInterval); err != nil {
					return
				}
			}
		}
	}()

	return nil
}

// Stop cancels the current run and waits for every run to finish
func (s *Service) Stop() {
	s.mu.Lock()
	s.stopped = true
	if s.current != nil {
		s.current.cancel()
	}
	s.stopBase()
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Service) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && !finished(s.current)
}

// pruneFinished forgets the oldest finished runs beyond runHistory.
// Runs still in flight are always kept.
func (s *Service) pruneFinished() {
	excess := len(s.order) - runHistory
	kept := s.order[:0]
	for _, id := range s.order {
		if excess > 0 && finished(s.byID[id]) {
			delete(s.byID, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func finished(r *run) bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// publish stores snap only while r is still the current run
func (s *Service) publish(r *run, snap *sfymodels.Snapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != r {
		return false
	}
	s.snapshot.Store(snap)
	return true
}

func (s *Service) execute(r *run, started time.Time) {
	defer s.wg.Done()
	defer close(r.done)
	defer r.cancel()

	log := s.logger.WithRunID(r.id)
	var failures []sfymodels.DeviceFailure

	agg := aggregator.New(func(buoys []sfymodels.Buoy) {
		s.publish(r, &sfymodels.Snapshot{
			RunID:     r.id,
			Trigger:   r.trigger,
			State:     sfymodels.RunRunning,
			StartedAt: started,
			UpdatedAt: s.now(),
			Buoys:     buoys,
			Failures:  slices.Clip(failures),
		})
	})

	emitted, err := s.runner.Run(r.ctx, func(res pipeline.DeviceResult) {
		if res.Failed() {
			f := sfymodels.DeviceFailure{Dev: res.Buoy.Dev, Stage: res.Stage, Error: res.Err.Error(), At: s.now()}
			failures = append(failures, f)
			s.reporter.DeviceFailed(r.id, f)
		}
		if _, err := agg.Insert(res.Buoy); err != nil {
			log.Logger.Warn().Err(err).Str("dev", res.Buoy.Dev).Msg("Dropping device record")
		}
	})

	finishedAt := s.now()
	final := &sfymodels.Snapshot{
		RunID:      r.id,
		Trigger:    r.trigger,
		State:      sfymodels.RunCompleted,
		StartedAt:  started,
		UpdatedAt:  finishedAt,
		FinishedAt: &finishedAt,
		Buoys:      agg.Buoys(),
		Failures:   slices.Clip(failures),
	}

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		final.State = sfymodels.RunCancelled
	case errors.Is(err, context.DeadlineExceeded):
		final.State = sfymodels.RunFailed
		final.Error = fmt.Sprintf("run exceeded %s", s.cfg.RunTimeout)
	default:
		final.State = sfymodels.RunFailed
		final.Error = err.Error()
	}

	r.final = final
	published := s.publish(r, final)
	rec := sfymodels.NewRunRecord(final)

	saveCtx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if s.runs != nil {
		if err := s.runs.SaveRun(saveCtx, rec); err != nil {
			log.ErrorWithError(err, "Failed to save discovery run")
		}
	}
	if final.State == sfymodels.RunFailed {
		s.reporter.RunFailed(rec)
	}

	log.Logger.Info().
		Str("state", string(final.State)).
		Int("devices", emitted).
		Int("failures", len(failures)).
		Bool("published", published).
		Dur("took", finishedAt.Sub(started)).
		Msg("Discovery run finished")
}
