// Package background runs periodic maintenance tasks on cron schedules.
// Tasks are registered by name, executed with panic recovery, and logged
// through slog. Typical use is periodic bookkeeping submissions that go
// through Dispatcher.SubmitBackground.
package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
)

// ErrDuplicateTask is returned when registering a task name twice.
var ErrDuplicateTask = errors.New("background: task already registered")

// Task is one periodic unit of work. The context is cancelled when the
// manager stops.
type Task func(ctx context.Context) error

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Manager schedules registered tasks with robfig/cron.
type Manager struct {
	cron   *cronlib.Cron
	logger *slog.Logger

	mu      sync.Mutex
	tasks   map[string]cronlib.EntryID
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cron:   cronlib.New(cronlib.WithParser(cronParser)),
		logger: logger,
		tasks:  make(map[string]cronlib.EntryID),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register schedules a task. Tasks may be registered before or after
// Start; registration after Start takes effect immediately.
func (m *Manager) Register(name, schedule string, t Task) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("background: invalid schedule %q for task %q: %w", schedule, name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[name]; exists {
		return ErrDuplicateTask
	}

	entryID, err := m.cron.AddFunc(schedule, func() { m.run(name, t) })
	if err != nil {
		return fmt.Errorf("background: schedule task %q: %w", name, err)
	}
	m.tasks[name] = entryID

	m.logger.Info("background task registered",
		slog.String("task", name),
		slog.String("schedule", schedule),
	)
	return nil
}

// Deregister removes a task by name. Unknown names are a no-op.
func (m *Manager) Deregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entryID, ok := m.tasks[name]; ok {
		m.cron.Remove(entryID)
		delete(m.tasks, name)
	}
}

// TaskNames returns all registered task names.
func (m *Manager) TaskNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.tasks))
	for name := range m.tasks {
		names = append(names, name)
	}
	return names
}

// Start launches the scheduler. It returns immediately.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.cron.Start()
	m.logger.Info("background manager started", slog.Int("tasks", len(m.tasks)))
}

// Stop cancels running tasks and waits for them to finish, or until the
// context deadline expires.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.mu.Unlock()

	m.cancel()
	stopped := m.cron.Stop()

	select {
	case <-stopped.Done():
		m.logger.Info("background manager stopped gracefully")
		return nil
	case <-ctx.Done():
		m.logger.Warn("background manager shutdown timed out")
		return ctx.Err()
	}
}

// run executes one task invocation with panic recovery.
func (m *Manager) run(name string, t Task) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("background task panicked",
				slog.String("task", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	if err := t(m.ctx); err != nil {
		m.logger.Error("background task failed",
			slog.String("task", name),
			slog.Duration("elapsed", time.Since(started)),
			slog.String("error", err.Error()),
		)
		return
	}

	m.logger.Debug("background task completed",
		slog.String("task", name),
		slog.Duration("elapsed", time.Since(started)),
	)
}
