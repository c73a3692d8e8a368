// Package platform keeps the long-running parts of a live lab session alive.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Policy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	// MaxRestarts bounds restarts per task; 0 means unlimited.
	MaxRestarts int
}

type RestartPolicy string

const (
	// RestartPermanent restarts the task whenever it returns.
	RestartPermanent RestartPolicy = "permanent"
	// RestartTransient restarts the task only when it returns an error.
	RestartTransient RestartPolicy = "transient"
	// RestartTemporary never restarts the task.
	RestartTemporary RestartPolicy = "temporary"
)

type TaskSpec struct {
	Name    string
	Restart RestartPolicy
	Run     func(ctx context.Context) error
}

type TaskStatus struct {
	Name         string        `json:"name"`
	Restart      RestartPolicy `json:"restart"`
	Running      bool          `json:"running"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
	Failed       bool          `json:"failed"`
}

type Hooks struct {
	OnRestart func(name string, err error, restartCount int)
	// OnFailure fires once a task has used up MaxRestarts.
	OnFailure func(name string, err error, restartCount int)
}

func defaultPolicy() Policy {
	return Policy{
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2.0,
	}
}

func normalizePolicy(policy Policy) Policy {
	def := defaultPolicy()
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = def.InitialBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = def.MaxBackoff
	}
	if policy.MaxBackoff < policy.InitialBackoff {
		policy.MaxBackoff = policy.InitialBackoff
	}
	if policy.BackoffFactor < 1 {
		policy.BackoffFactor = def.BackoffFactor
	}
	if policy.MaxRestarts < 0 {
		policy.MaxRestarts = 0
	}
	return policy
}

// Supervisor runs named tasks on their own goroutines and restarts them with
// exponential backoff according to each task's restart policy.
type Supervisor struct {
	policy Policy
	hooks  Hooks
	logger *zap.Logger

	mu       sync.Mutex
	tasks    map[string]*task
	finished map[string]TaskStatus
}

type task struct {
	spec   TaskSpec
	cancel context.CancelFunc
	done   chan struct{}

	restartCount int
	lastErr      error
	failed       bool
}

func NewSupervisor(policy Policy, hooks Hooks, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Supervisor{
		policy:   normalizePolicy(policy),
		hooks:    hooks,
		logger:   logger,
		tasks:    make(map[string]*task),
		finished: make(map[string]TaskStatus),
	}
}

// Start launches spec under ctx. Cancelling ctx stops the task without a
// restart.
func (s *Supervisor) Start(ctx context.Context, spec TaskSpec) error {
	if spec.Name == "" {
		return errors.New("task name is required")
	}
	if spec.Run == nil {
		return errors.New("task runner is required")
	}
	switch spec.Restart {
	case RestartPermanent, RestartTransient, RestartTemporary:
	default:
		spec.Restart = RestartPermanent
	}

	s.mu.Lock()
	if _, exists := s.tasks[spec.Name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("task already running: %s", spec.Name)
	}
	delete(s.finished, spec.Name)
	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{spec: spec, cancel: cancel, done: make(chan struct{})}
	s.tasks[spec.Name] = t
	s.mu.Unlock()

	s.logger.Debug("task started", zap.String("task", spec.Name), zap.String("restart", string(spec.Restart)))
	go s.run(taskCtx, t)
	return nil
}

func (s *Supervisor) run(ctx context.Context, t *task) {
	defer func() {
		t.cancel()
		s.mu.Lock()
		if current, ok := s.tasks[t.spec.Name]; ok && current == t {
			s.finished[t.spec.Name] = statusOf(t, false)
			delete(s.tasks, t.spec.Name)
		}
		s.mu.Unlock()
		close(t.done)
	}()

	backoff := s.policy.InitialBackoff
	for {
		err := t.spec.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		s.mu.Lock()
		t.lastErr = err
		s.mu.Unlock()
		if !shouldRestart(t.spec.Restart, err) {
			return
		}

		s.mu.Lock()
		restarts := t.restartCount
		if s.policy.MaxRestarts > 0 && restarts >= s.policy.MaxRestarts {
			t.failed = true
			s.mu.Unlock()
			s.logger.Error("task failed permanently", zap.String("task", t.spec.Name), zap.Int("restarts", restarts), zap.Error(err))
			if s.hooks.OnFailure != nil {
				s.hooks.OnFailure(t.spec.Name, err, restarts)
			}
			return
		}
		restarts++
		t.restartCount = restarts
		s.mu.Unlock()

		s.logger.Warn("task restarting", zap.String("task", t.spec.Name), zap.Int("restarts", restarts), zap.Duration("backoff", backoff), zap.Error(err))
		if s.hooks.OnRestart != nil {
			s.hooks.OnRestart(t.spec.Name, err, restarts)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(time.Duration(float64(backoff)*s.policy.BackoffFactor), s.policy.MaxBackoff)
	}
}

func shouldRestart(policy RestartPolicy, err error) bool {
	switch policy {
	case RestartTransient:
		return err != nil
	case RestartTemporary:
		return false
	default:
		return true
	}
}

func (s *Supervisor) Stop(name string) {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	t.cancel()
	<-t.done
}

func (s *Supervisor) StopAll() {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.cancel()
	}
	for _, t := range tasks {
		<-t.done
	}
}

// Tasks lists running task names in order.
func (s *Supervisor) Tasks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status reports running and finished tasks sorted by name.
func (s *Supervisor) Status() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]TaskStatus, 0, len(s.tasks)+len(s.finished))
	for _, t := range s.tasks {
		out = append(out, statusOf(t, true))
	}
	for name, status := range s.finished {
		if _, running := s.tasks[name]; running {
			continue
		}
		out = append(out, status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func statusOf(t *task, running bool) TaskStatus {
	status := TaskStatus{
		Name:         t.spec.Name,
		Restart:      t.spec.Restart,
		Running:      running,
		RestartCount: t.restartCount,
		Failed:       t.failed,
	}
	if t.lastErr != nil {
		status.LastError = t.lastErr.Error()
	}
	return status
}
