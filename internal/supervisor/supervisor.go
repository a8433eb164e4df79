// Package supervisor keeps the stream ingester alive and launches one trading
// cycle worker whenever no position is running.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"MomentumTrader/internal/ipc"
	"MomentumTrader/internal/metrics"
)

// State is the supervisor lifecycle.
type State int

const (
	Init State = iota
	Streaming
	LaunchWorker
	ShuttingDown
	Stopped
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Streaming:
		return "STREAMING"
	case LaunchWorker:
		return "LAUNCH_WORKER"
	case ShuttingDown:
		return "SHUTTING_DOWN"
	case Stopped:
		return "STOPPED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Signals is the part of the signal store the supervisor reads and cleans up.
type Signals interface {
	Clear(name string) error
	IsSet(name string) bool
}

// Config holds the supervision settings.
type Config struct {
	PollInterval time.Duration
	StreamWarmup time.Duration
	GracePeriod  time.Duration
	StreamCmd    []string
	StreamLog    string
	TraderCmd    []string
	TraderLog    string
}

// Supervisor manages the child processes.
type Supervisor struct {
	Cron *cron.Cron

	cfg      Config
	signals  Signals
	launcher Launcher
	log      zerolog.Logger

	mu     sync.Mutex
	state  State
	stream Process
	worker Process
}

// New creates a Supervisor.
func New(cfg Config, signals Signals, launcher Launcher, log zerolog.Logger) *Supervisor {
	log = log.With().Str("component", "supervisor").Logger()
	cl := cron.PrintfLogger(&log)
	return &Supervisor{
		Cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		cfg:      cfg,
		signals:  signals,
		launcher: launcher,
		log:      log,
		state:    Init,
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start clears a stale running signal, starts the ingester and schedules the
// worker poll. Calling Start again is a no-op.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Init {
		s.mu.Unlock()
		return nil
	}
	if s.signals.IsSet(ipc.IsRunning) {
		s.log.Warn().Msg("clearing stale running signal from a previous run")
	}
	if err := s.signals.Clear(ipc.IsRunning); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("clear running signal: %w", err)
	}
	if err := s.startStreamLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.state = Streaming
	s.mu.Unlock()

	if s.cfg.StreamWarmup > 0 {
		s.log.Info().Dur("warmup", s.cfg.StreamWarmup).Msg("waiting for price history")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.StreamWarmup):
		}
	}

	spec := fmt.Sprintf("@every %s", s.cfg.PollInterval)
	if _, err := s.Cron.AddFunc(spec, s.Poll); err != nil {
		return fmt.Errorf("register poll: %w", err)
	}
	s.Cron.Start()
	s.log.Info().Dur("poll_interval", s.cfg.PollInterval).Msg("supervisor started")
	s.Poll()
	return nil
}

func (s *Supervisor) startStreamLocked() error {
	p, err := s.launcher.Start("stream", s.cfg.StreamCmd, s.cfg.StreamLog)
	if err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	s.stream = p
	s.log.Info().Int("pid", p.Pid()).Msg("stream ingester started")
	return nil
}

// Poll launches a worker when no position is running, the operator has not
// paused trading and no earlier worker is still alive. Launch failures are
// retried on the next poll.
func (s *Supervisor) Poll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Streaming {
		return
	}

	if s.stream != nil && s.stream.Exited() {
		s.log.Warn().Msg("stream ingester exited, restarting")
		if err := s.startStreamLocked(); err != nil {
			s.log.Error().Err(err).Msg("stream restart failed")
		}
	}

	if s.signals.IsSet(ipc.IsRunning) || s.signals.IsSet(ipc.IsPaused) {
		return
	}
	if s.worker != nil && !s.worker.Exited() {
		return
	}

	s.state = LaunchWorker
	p, err := s.launcher.Start("trader", s.cfg.TraderCmd, s.cfg.TraderLog)
	s.state = Streaming
	if err != nil {
		metrics.WorkerLaunchesTotal.WithLabelValues("error").Inc()
		s.log.Error().Err(err).Msg("worker launch failed, retrying next poll")
		return
	}
	metrics.WorkerLaunchesTotal.WithLabelValues("ok").Inc()
	s.worker = p
	s.log.Info().Int("pid", p.Pid()).Msg("trading worker launched")
}

// Stop halts polling, stops the ingester, clears the running signal and waits
// the grace period. A worker holding a position is left to finish it.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if s.state == ShuttingDown || s.state == Stopped {
		s.mu.Unlock()
		return
	}
	s.state = ShuttingDown
	s.mu.Unlock()

	<-s.Cron.Stop().Done()

	s.mu.Lock()
	stream, worker := s.stream, s.worker
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(s.cfg.GracePeriod); err != nil {
			s.log.Error().Err(err).Msg("stop stream ingester")
		}
	}
	if err := s.signals.Clear(ipc.IsRunning); err != nil {
		s.log.Error().Err(err).Msg("clear running signal")
	}
	if worker != nil && !worker.Exited() {
		s.log.Warn().Int("pid", worker.Pid()).Msg("trading worker still running, leaving it to close its position")
	}
	time.Sleep(s.cfg.GracePeriod)

	s.mu.Lock()
	s.state = Stopped
	s.mu.Unlock()
	s.log.Info().Msg("supervisor stopped")
}
