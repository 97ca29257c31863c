package runner

// runner.go contains the execution engine driving a compiled Go test binary
// through test2json and re-executing single tests on request.

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"slices"
	"strings"
	"sync"

	gocmd "github.com/perfgo/testretry/cli/go"
	"github.com/perfgo/testretry/retry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	maxDetailLines = 40
	maxLineBytes   = 16 << 20
)

// Sink consumes test events. The retry orchestrator is the production sink.
type Sink interface {
	OnTestStarted(id retry.TestIdentity) error
	OnTestOutcome(id retry.TestIdentity, ordinal int, result retry.Result, detail string) error
}

// CommandFunc creates the process for one execution.
type CommandFunc func(ctx context.Context, opts RunOptions) *exec.Cmd

// Config configures a Runner.
type Config struct {
	Package  string
	Binary   string
	Dir      string // working directory of the test binary
	Args     []string
	Tags     *Tags
	Parallel int
	Stdout   io.Writer
	Stderr   io.Writer
	// Command overrides process creation, e.g. in tests.
	Command CommandFunc
}

// Runner executes tests and implements retry.Engine.
type Runner struct {
	logger zerolog.Logger
	cfg    Config
	sem    *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelCauseFunc
	sink   Sink

	mu       sync.Mutex
	ordinals map[string]int
	errs     []error

	pending sync.WaitGroup
}

func New(logger zerolog.Logger, cfg Config) *Runner {
	if cfg.Parallel <= 0 {
		cfg.Parallel = 1
	}
	if cfg.Stdout == nil {
		cfg.Stdout = io.Discard
	}
	if cfg.Stderr == nil {
		cfg.Stderr = io.Discard
	}
	// retries write concurrently with the initial run
	cfg.Stdout = &syncWriter{w: cfg.Stdout}
	cfg.Stderr = &syncWriter{w: cfg.Stderr}
	if cfg.Command == nil {
		cfg.Command = defaultCommand(cfg.Dir)
	}
	return &Runner{
		logger:   logger,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.Parallel)),
		ordinals: make(map[string]int),
	}
}

func defaultCommand(dir string) CommandFunc {
	return func(ctx context.Context, opts RunOptions) *exec.Cmd {
		cmd := gocmd.CommandContext(ctx, BuildTest2JSONArgs(opts)...)
		cmd.Dir = dir
		return cmd
	}
}

// Identity returns the retry identity of a top-level test.
func (r *Runner) Identity(test string) retry.TestIdentity {
	return retry.NewTestIdentity(r.cfg.Package, test, r.cfg.Tags.Test(test), r.cfg.Tags.Package())
}

// Run executes the test binary, delivers its events to sink and returns once
// every retry requested along the way has completed.
func (r *Runner) Run(ctx context.Context, sink Sink) error {
	r.ctx, r.cancel = context.WithCancelCause(ctx)
	defer r.cancel(nil)
	r.sink = sink

	r.logger.Info().Str("package", r.cfg.Package).Msg("Executing tests")
	err := r.execute(r.ctx, "")
	if err != nil {
		r.record(err)
	}

	r.pending.Wait()
	return r.err()
}

// RequestRetry schedules a re-execution of exactly id. It never blocks.
func (r *Runner) RequestRetry(id retry.TestIdentity) {
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		if err := r.sem.Acquire(r.ctx, 1); err != nil {
			r.logger.Debug().Err(err).Str("test", id.String()).Msg("Retry cancelled")
			return
		}
		defer r.sem.Release(1)

		r.logger.Debug().
			Str("test", id.String()).
			Str("command", BuildReproduceCommand(r.runOptions(id.Method))).
			Msg("Executing retry")
		if err := r.execute(r.ctx, id.Method); err != nil {
			r.record(err)
		}
	}()
}

func (r *Runner) runOptions(test string) RunOptions {
	return RunOptions{
		Package: r.cfg.Package,
		Binary:  r.cfg.Binary,
		Args:    r.cfg.Args,
		Test:    test,
	}
}

// ReproduceCommand returns the shell command re-running test on its own.
func (r *Runner) ReproduceCommand(test string) string {
	return BuildReproduceCommand(r.runOptions(test))
}

// execution tracks the tests of one process.
type execution struct {
	expect   string // the test a retry was requested for
	started  map[string]bool
	finished map[string]bool
	output   map[string]*tail
	pkgOut   *tail
}

func newExecution(expect string) *execution {
	return &execution{
		expect:   expect,
		started:  make(map[string]bool),
		finished: make(map[string]bool),
		output:   make(map[string]*tail),
		pkgOut:   newTail(maxDetailLines),
	}
}

func (e *execution) testOutput(name string) *tail {
	t, ok := e.output[name]
	if !ok {
		t = newTail(maxDetailLines)
		e.output[name] = t
	}
	return t
}

func (r *Runner) execute(ctx context.Context, test string) error {
	cmd := r.cfg.Command(ctx, r.runOptions(test))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to execute test: %w", err)
	}

	ex := newExecution(test)
	var g errgroup.Group
	g.Go(func() error {
		return r.consume(stdout, ex)
	})
	g.Go(func() error {
		_, err := io.Copy(r.cfg.Stderr, stderr)
		return err
	})
	streamErr := g.Wait()
	waitErr := cmd.Wait()

	if streamErr != nil {
		return streamErr
	}
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return r.settle(ex, waitErr)
}

// consume reads the test2json stream of one process.
func (r *Runner) consume(stdout io.Reader, ex *execution) error {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		ev, ok := ParseEvent(line)
		if !ok {
			fmt.Fprintln(r.cfg.Stdout, string(line))
			continue
		}
		if err := r.handle(ev, ex); err != nil {
			r.cancel(err)
			// drain so the process is not blocked on a full pipe
			_, _ = io.Copy(io.Discard, stdout)
			return err
		}
	}
	return scanner.Err()
}

func (r *Runner) handle(ev Event, ex *execution) error {
	if ev.Test == "" {
		if ev.Action == ActionOutput {
			ex.pkgOut.Write(ev.Output)
			fmt.Fprint(r.cfg.Stdout, ev.Output)
		}
		return nil
	}

	name, subtest := ev.TopLevel()
	switch {
	case ev.Action == ActionOutput:
		ex.testOutput(name).Write(ev.Output)
		fmt.Fprint(r.cfg.Stdout, ev.Output)
		return nil
	case subtest:
		return nil
	case ev.Action == ActionRun:
		ex.started[name] = true
		return r.sink.OnTestStarted(r.Identity(name))
	case ev.IsOutcome():
		ex.finished[name] = true
		detail := ""
		if ev.Action == ActionFail {
			detail = ex.testOutput(name).String()
		}
		return r.deliver(name, resultOf(ev.Action), detail)
	}
	return nil
}

func resultOf(action string) retry.Result {
	switch action {
	case ActionPass:
		return retry.ResultPassed
	case ActionSkip:
		return retry.ResultSkipped
	default:
		return retry.ResultFailed
	}
}

func (r *Runner) deliver(name string, result retry.Result, detail string) error {
	r.mu.Lock()
	r.ordinals[name]++
	ordinal := r.ordinals[name]
	r.mu.Unlock()

	return r.sink.OnTestOutcome(r.Identity(name), ordinal, result, detail)
}

// settle reports tests the process never finished, e.g. after a panic,
// a timeout or a retry that did not run the requested test.
func (r *Runner) settle(ex *execution, waitErr error) error {
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return fmt.Errorf("failed to execute test: %w", waitErr)
	}

	reason := "test did not report a result"
	if exitErr != nil {
		reason = fmt.Sprintf("%s (exit code %d)", reason, exitErr.ExitCode())
	}

	var unfinished []string
	for name := range ex.started {
		if !ex.finished[name] {
			unfinished = append(unfinished, name)
		}
	}
	slices.Sort(unfinished)
	if ex.expect != "" && !ex.finished[ex.expect] && !ex.started[ex.expect] {
		unfinished = append(unfinished, ex.expect)
	}

	for _, name := range unfinished {
		detail := strings.TrimSpace(ex.testOutput(name).String() + ex.pkgOut.String())
		if detail == "" {
			detail = reason
		} else {
			detail = reason + "\n" + detail
		}
		r.logger.Warn().Str("test", name).Msg("Test did not report a result, counting it as failed")
		if err := r.deliver(name, retry.ResultFailed, detail); err != nil {
			return err
		}
	}

	if exitErr != nil && ex.expect == "" && len(ex.finished) == 0 && len(unfinished) == 0 {
		return fmt.Errorf("test binary exited with code %d without reporting any test: %s",
			exitErr.ExitCode(), strings.TrimSpace(ex.pkgOut.String()))
	}
	return nil
}

func (r *Runner) record(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *Runner) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// tail keeps the last lines written to it.
type tail struct {
	max   int
	lines []string
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) Write(s string) {
	t.lines = append(t.lines, s)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tail) String() string {
	return strings.Join(t.lines, "")
}
