package runner

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fte-hq/fte-connectors/internal/metrics"
)

// Runner manages and executes scheduled background tasks
type Runner struct {
	cron     *cron.Cron
	registry *TaskRegistry
	logger   *log.Logger
	wg       sync.WaitGroup
}

// NewRunner creates a new task runner. A nil logger logs to stderr.
func NewRunner(registry *TaskRegistry, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(os.Stderr, "[RUNNER] ", log.LstdFlags)
	}
	return &Runner{
		cron: cron.New(
			cron.WithParser(scheduleParser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		registry: registry,
		logger:   logger,
	}
}

// Run schedules every registered task and blocks until ctx is done, then
// waits for running tasks to finish.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Println("Starting task runner...")

	for _, task := range r.registry.All() {
		task := task
		r.logger.Printf("Registering task: %s with schedule: %s", task.Name(), task.Schedule())

		_, err := r.cron.AddFunc(task.Schedule(), func() {
			r.executeTask(ctx, task)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule task %s: %w", task.Name(), err)
		}
	}

	r.cron.Start()
	r.logger.Println("Task runner started successfully")

	<-ctx.Done()
	r.Stop()
	return nil
}

// RunNow executes a registered task immediately, outside its schedule.
func (r *Runner) RunNow(ctx context.Context, name string) error {
	task, ok := r.registry.Get(name)
	if !ok {
		return fmt.Errorf("unknown task %s", name)
	}
	return r.executeTask(ctx, task)
}

// executeTask runs a single task with timeout and error handling
func (r *Runner) executeTask(ctx context.Context, task Task) error {
	r.wg.Add(1)
	defer r.wg.Done()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	taskCtx, cancel := context.WithTimeout(ctx, task.Timeout())
	defer cancel()

	start := time.Now()
	err := task.Run(taskCtx)
	duration := time.Since(start)

	if err != nil {
		metrics.TaskRuns.WithLabelValues(task.Name(), "error").Inc()
		r.logger.Printf("Task %s failed after %v: %v", task.Name(), duration, err)
		return err
	}
	metrics.TaskRuns.WithLabelValues(task.Name(), "ok").Inc()
	return nil
}

// Stop gracefully shuts down the runner
func (r *Runner) Stop() {
	r.logger.Println("Stopping task runner...")

	// Stop accepting new tasks
	ctx := r.cron.Stop()

	// Wait for running tasks to complete
	r.wg.Wait()
	<-ctx.Done()

	r.logger.Println("Task runner stopped")
}
