// Package supervisor spawns the broadcaster and every configured task,
// restarting a task that exits on its own budget, and escalating to a
// fatal process exit only once that budget is exhausted. It is the
// transaction pipeline's outermost layer: everything else in this module
// assumes a single broadcaster and a fixed set of tasks, which the
// supervisor is what actually creates and keeps alive.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Nolus-Protocol/oracle-price-feeder/internal/task"
	"github.com/Nolus-Protocol/oracle-price-feeder/internal/txqueue"
)

// RestartPolicy bounds how many times a task may be restarted, and the
// backoff applied between restarts.
type RestartPolicy struct {
	MaxRestarts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// backoffFor returns an exponential-ish backoff for the nth restart (n
// starting at 0), capped at MaxBackoff.
func (p RestartPolicy) backoffFor(attempt int) time.Duration {
	backoff := p.BaseBackoff
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}

	return backoff
}

// Entry binds one task's descriptor to its runnable and restart policy.
type Entry struct {
	Descriptor task.Descriptor
	Runnable   task.Runnable
	Policy     RestartPolicy
}

// Supervisor owns a set of task entries and a configuration-version
// counter that is bumped whenever the entry set changes, per the
// configuration-change lifecycle: a change drains current tasks
// cooperatively and respawns under a new version.
type Supervisor struct {
	log zerolog.Logger

	mu                   sync.Mutex
	configurationVersion uint64
	taskStates           map[string]task.State

	reload chan struct{}
}

// New constructs a Supervisor.
func New(log zerolog.Logger) *Supervisor {
	return &Supervisor{
		log:        log.With().Str("module", "supervisor").Logger(),
		taskStates: make(map[string]task.State),
		reload:     make(chan struct{}, 1),
	}
}

// TaskStates returns a snapshot of every supervised task's current state,
// keyed by task name, for the status server's /healthz handler.
func (s *Supervisor) TaskStates() map[string]task.State {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]task.State, len(s.taskStates))
	for name, state := range s.taskStates {
		snapshot[name] = state
	}

	return snapshot
}

func (s *Supervisor) setTaskState(name string, state task.State) {
	s.mu.Lock()
	s.taskStates[name] = state
	s.mu.Unlock()
}

// ConfigurationVersion returns the current configuration-version counter.
func (s *Supervisor) ConfigurationVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.configurationVersion
}

// BumpConfigurationVersion increments the counter and wakes a running Run
// loop, which drains the current generation of tasks cooperatively (by
// cancelling their context and waiting for them to return) and respawns
// them under the new generation. Safe to call before Run starts or after
// it returns; the signal is simply dropped in that case.
func (s *Supervisor) BumpConfigurationVersion() {
	s.mu.Lock()
	s.configurationVersion++
	s.mu.Unlock()

	select {
	case s.reload <- struct{}{}:
	default:
	}
}

// Run spawns every entry's task and the broadcaster together under one
// generation, and blocks until ctx is cancelled, a task's restart budget
// is exhausted (a Failed state, in the task state machine's terms), or
// BumpConfigurationVersion signals a configuration change. On the latter,
// the current generation is drained (its context cancelled, all of its
// tasks awaited) and a fresh generation of the same entries is spawned,
// repeating until ctx is cancelled or a task fails outright.
func (s *Supervisor) Run(ctx context.Context, sender txqueue.Sender, broadcaster func(context.Context) error, entries []Entry) error {
	for {
		err, reloaded := s.runGeneration(ctx, sender, broadcaster, entries)
		if err != nil {
			return err
		}

		if !reloaded {
			return nil
		}

		s.log.Info().Uint64("version", s.ConfigurationVersion()).Msg("configuration change signalled, respawning tasks")
	}
}

// runGeneration spawns one generation of entries and waits for it to end
// either because ctx was cancelled, a task exhausted its restart budget,
// or a reload was signalled — in which case the generation's own context
// is cancelled and every task is awaited before returning so the next
// generation never overlaps with this one.
func (s *Supervisor) runGeneration(ctx context.Context, sender txqueue.Sender, broadcaster func(context.Context) error, entries []Entry) (err error, reloaded bool) {
	genCtx, cancelGen := context.WithCancel(ctx)
	defer cancelGen()

	errCh := make(chan error, len(entries)+1)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- runSupervised(genCtx, "broadcaster", broadcaster, RestartPolicy{MaxRestarts: 0}, s.log, func(state task.State) {
			s.setTaskState("broadcaster", state)
		})
	}()

	for _, entry := range entries {
		entry := entry
		wg.Add(1)

		go func() {
			defer wg.Done()
			time.Sleep(entry.Descriptor.DurationBeforeStart)

			errCh <- runSupervised(genCtx, entry.Descriptor.Name, func(ctx context.Context) error {
				return entry.Runnable.Run(ctx, sender)
			}, entry.Policy, s.log, func(state task.State) {
				s.setTaskState(entry.Descriptor.Name, state)
			})
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	resultCh := make(chan error, 1)
	go func() {
		for i := 0; i < len(entries)+1; i++ {
			if err := <-errCh; err != nil {
				resultCh <- err
				return
			}
		}
		resultCh <- nil
	}()

	select {
	case <-ctx.Done():
		cancelGen()
		<-done
		return ctx.Err(), false
	case <-s.reload:
		cancelGen()
		<-done
		return nil, true
	case err := <-resultCh:
		cancelGen()
		<-done
		return err, false
	}
}

// runSupervised runs fn under the given restart policy: state Starting →
// Running; on exit with an error, Restarting (with backoff) up to
// MaxRestarts, then Failed. It returns nil when fn exits cleanly, the
// context's error once ctx is cancelled, and fn's last error on Failed.
func runSupervised(ctx context.Context, name string, fn func(context.Context) error, policy RestartPolicy, log zerolog.Logger, onState func(task.State)) error {
	if onState == nil {
		onState = func(task.State) {}
	}

	state := task.StateStarting
	onState(state)

	for attempt := 0; ; attempt++ {
		state = task.StateRunning
		onState(state)
		log.Info().Str("task", name).Str("state", state.String()).Msg("task state transition")

		err := fn(ctx)
		if err == nil || ctx.Err() != nil {
			return err
		}

		if attempt >= policy.MaxRestarts {
			state = task.StateFailed
			onState(state)
			log.Error().Str("task", name).Str("state", state.String()).Err(err).Msg("task exhausted its restart budget")

			return err
		}

		state = task.StateRestarting
		onState(state)
		backoff := policy.backoffFor(attempt)

		log.Warn().
			Str("task", name).
			Str("state", state.String()).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(err).
			Msg("task exited, restarting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}
