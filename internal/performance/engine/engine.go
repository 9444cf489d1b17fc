// Package engine is the run controller. It resolves the configuration into
// scenario runners, drives them through setup, ramp, drain and teardown,
// and turns the collected metrics into a verdict.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/groomload/internal/http"
	"github.com/wesleyorama2/groomload/internal/performance"
	"github.com/wesleyorama2/groomload/internal/performance/config"
	"github.com/wesleyorama2/groomload/internal/performance/executor"
	"github.com/wesleyorama2/groomload/internal/performance/failure"
	"github.com/wesleyorama2/groomload/internal/performance/metrics"
	"github.com/wesleyorama2/groomload/internal/performance/rate"
	"github.com/wesleyorama2/groomload/internal/performance/scenario"
	"github.com/wesleyorama2/groomload/internal/performance/session"
	"github.com/wesleyorama2/groomload/internal/performance/threshold"
	"github.com/wesleyorama2/groomload/internal/salon"
)

// ErrStopped is the run error of a run that Stop ended before every
// profile finished. The run still drains and tears down, but its verdict
// is ABORTED: thresholds over a truncated profile prove nothing.
var ErrStopped = errors.New("run stopped before its profiles ended")

// Engine orchestrates one run.
//
// It coordinates:
//   - configuration resolution and validation
//   - setup hooks (setup-phase login)
//   - every scenario's executor, concurrently
//   - live and final threshold evaluation
//   - teardown hooks
//
// Example usage:
//
//	cfg, _ := config.LoadConfig("salon.yaml")
//	eng, _ := engine.NewEngine(cfg, engine.WithLogger(logger))
//	report, _ := eng.Run(ctx)
//	os.Exit(report.ExitCode())
type Engine struct {
	config *config.TestConfig
	runID  string

	client   http.Requester
	mode     session.Mode
	creds    session.Credentials
	accounts *session.AccountPool
	paths    session.Paths
	clock    performance.Clock
	logger   *zap.Logger
	observer metrics.Observer

	runners    []*scenarioRunner
	thresholds []threshold.Spec

	mu          sync.RWMutex
	state       State
	transitions []Transition
	startTime   time.Time
	monitors    []*liveMonitor

	collector   atomic.Pointer[metrics.Collector]
	stopOnce    sync.Once
	stopCh      chan struct{}
	interrupted atomic.Bool
}

// scenarioRunner is one configured scenario and its executor.
type scenarioRunner struct {
	name       string
	body       string
	config     *config.ScenarioConfig
	scenario   *performance.Scenario
	exec       executor.Executor
	startDelay time.Duration
	thresholds []threshold.Spec
	maxVUs     int

	scheduler *performance.VUScheduler
	data      any
	launched  atomic.Bool
	started   time.Time
	finished  time.Time
}

type liveMonitor struct {
	scenario string
	monitor  *threshold.LiveMonitor
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. A nil logger is replaced by a no-op one.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver attaches a metrics observer, e.g. the Prometheus exporter.
func WithObserver(o metrics.Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// WithClock replaces the clock used for pacing, think time and start delays.
func WithClock(c performance.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithRequester replaces the HTTP client built from settings.
func WithRequester(r http.Requester) Option {
	return func(e *Engine) {
		e.client = r
	}
}

// NewEngine resolves cfg into scenario runners. Every problem found here is
// returned as a *failure.ConfigurationError and no traffic is generated.
func NewEngine(cfg *config.TestConfig, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, &failure.ConfigurationError{Message: "no configuration"}
	}

	e := &Engine{
		config: cfg,
		runID:  uuid.NewString(),
		clock:  performance.RealClock{},
		logger: zap.NewNop(),
		state:  StatePending,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("run_id", e.runID))

	applyBuiltinProfiles(cfg)
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, &failure.ConfigurationError{Err: err}
	}

	s := cfg.Settings
	mode, err := session.ParseMode(s.Auth.Mode)
	if err != nil {
		return nil, &failure.ConfigurationError{Field: "settings.auth.mode", Err: err}
	}
	e.mode = mode
	e.creds = session.Credentials{Username: s.Auth.Username, Password: s.Auth.Password}
	users := make([]session.Credentials, 0, len(s.Auth.Users))
	for _, u := range s.Auth.Users {
		users = append(users, session.Credentials{Username: u.Username, Password: u.Password})
	}
	e.accounts = session.NewAccountPool(users)
	e.paths = session.Paths{Login: s.Auth.LoginPath, Refresh: s.Auth.RefreshPath, Logout: s.Auth.LogoutPath}

	if e.client == nil {
		e.client = rate.Limit(newClient(s), s.MaxRPS)
	}

	if e.thresholds, err = threshold.ParseAll(cfg.Thresholds); err != nil {
		return nil, &failure.ConfigurationError{Field: "thresholds", Err: err}
	}

	// Mode checks need no authenticator.
	guard := session.NewCoordinator(mode, nil, e.creds, e.logger).WithAccounts(e.accounts)

	names := make([]string, 0, len(cfg.Scenarios))
	for name := range cfg.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r, usesLogout, err := e.buildRunner(name, cfg.Scenarios[name])
		if err != nil {
			return nil, err
		}
		if err := guard.ValidateScenario(name, usesLogout); err != nil {
			return nil, err
		}
		e.runners = append(e.runners, r)
	}

	// VU ids are run-wide, so accounts are shared across scenarios.
	vus := 0
	for _, r := range e.runners {
		vus += r.maxVUs
	}
	for _, r := range e.runners {
		if !r.scenario.UsesLogout {
			continue
		}
		if err := guard.ValidateAccounts(r.name, vus); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// applyBuiltinProfiles gives a built-in body its default profile when the
// scenario declares no load shape of its own.
func applyBuiltinProfiles(cfg *config.TestConfig) {
	for _, sc := range cfg.Scenarios {
		if sc == nil || sc.Body == "" {
			continue
		}
		def, ok := salon.Lookup(sc.Body)
		if !ok {
			continue
		}
		if sc.Executor == "" && sc.Profile == "" && len(sc.Stages) == 0 && sc.VUs == 0 && sc.Duration == "" {
			sc.Profile = def.Profile
		}
	}
}

func (e *Engine) buildRunner(name string, sc *config.ScenarioConfig) (*scenarioRunner, bool, error) {
	prefix := "scenarios." + name

	if len(sc.Stages) == 0 && sc.Profile != "" {
		stages, ok := salon.Profile(sc.Profile)
		if !ok {
			return nil, false, &failure.ConfigurationError{
				Field:   prefix + ".profile",
				Message: fmt.Sprintf("unknown profile %q (available: %v)", sc.Profile, salon.ProfileNames()),
			}
		}
		sc.Stages = stages
	}

	pacing, err := executor.PacingFromConfig(sc.Pacing)
	if err != nil {
		return nil, false, &failure.ConfigurationError{Field: prefix + ".pacing", Err: err}
	}

	r := &scenarioRunner{
		name:   name,
		config: sc,
		scenario: &performance.Scenario{
			Name:   name,
			Pacing: pacing,
		},
	}

	setupLogin := sc.Setup != nil && sc.Setup.Login
	thresholds := sc.Thresholds

	if sc.Body != "" {
		def, ok := salon.Lookup(sc.Body)
		if !ok {
			return nil, false, &failure.ConfigurationError{
				Field:   prefix + ".body",
				Message: fmt.Sprintf("unknown built-in scenario %q (available: %v)", sc.Body, salon.Names()),
			}
		}
		if e.creds.Username == "" && e.accounts.Len() == 0 {
			return nil, false, &failure.ConfigurationError{
				Field:   "settings.auth.username",
				Message: fmt.Sprintf("required by built-in scenario %s.body", prefix),
			}
		}
		r.body = def.Name
		r.scenario.Body = def.Body
		r.scenario.UsesLogout = def.UsesLogout
		setupLogin = setupLogin || def.SetupLogin
		if thresholds == nil {
			thresholds = def.Thresholds
		}
	} else {
		body, err := scenario.Build(name, sc, e.config)
		if err != nil {
			return nil, false, &failure.ConfigurationError{Field: prefix + ".requests", Err: err}
		}
		r.body = "requests"
		r.scenario.Body = body
		r.scenario.UsesLogout = scenario.LogsOut(sc, e.config)
	}

	if setupLogin {
		r.scenario.Setup = setupLoginHook
	}
	teardownLogout := sc.Teardown != nil && sc.Teardown.Logout
	if teardownLogout {
		r.scenario.Teardown = teardownLogoutHook
	}

	if r.thresholds, err = threshold.ParseAll(thresholds); err != nil {
		return nil, false, &failure.ConfigurationError{Field: prefix + ".thresholds", Err: err}
	}

	if sc.StartTime != "" {
		if r.startDelay, err = config.ParseDurationString(sc.StartTime); err != nil {
			return nil, false, &failure.ConfigurationError{Field: prefix + ".startTime", Err: err}
		}
	}

	exec, execConfig, err := executor.CreateExecutorFromScenarioConfig(context.Background(), name, sc)
	if err != nil {
		return nil, false, &failure.ConfigurationError{Field: prefix, Err: err}
	}
	r.exec = exec
	r.maxVUs = execConfig.Profile().MaxTarget()

	return r, r.scenario.UsesLogout || teardownLogout, nil
}

func newClient(s config.GlobalSettings) *http.Client {
	opts := []http.ClientOption{
		http.WithBaseURL(s.BaseURL),
		http.WithTransport(http.TransportConfig{
			Timeout:             time.Duration(s.Timeout),
			MaxIdleConns:        1000,
			MaxIdleConnsPerHost: s.MaxIdleConnsPerHost,
			MaxConnsPerHost:     s.MaxConnectionsPerHost,
			IdleConnTimeout:     90 * time.Second,
			InsecureSkipVerify:  s.InsecureSkipVerify,
		}),
		http.WithHeader("User-Agent", s.UserAgent),
	}
	for k, v := range s.Headers {
		opts = append(opts, http.WithHeader(k, v))
	}
	return http.NewClient(opts...)
}

func setupLoginHook(ctx context.Context, rt *performance.Runtime) (any, error) {
	pair, err := rt.Sessions.SetupLogin(ctx)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func teardownLogoutHook(ctx context.Context, rt *performance.Runtime, data any) error {
	pair, ok := data.(session.TokenPair)
	if !ok {
		return nil
	}
	s := rt.Sessions.NewSession(0)
	defer s.Close()
	s.Set(pair)
	return s.Logout(ctx)
}

// RunID returns the identifier stamped on logs and the report.
func (e *Engine) RunID() string {
	return e.runID
}

// Run executes the whole lifecycle and returns the report. The report is
// never nil once the run has started: an aborted run still gets one, next
// to the error that aborted it.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	if e.state != StatePending {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine already ran (state %s)", e.state)
	}
	e.startTime = time.Now()
	e.mu.Unlock()

	collector := metrics.NewCollector(e.metricsConfig(), e.collectorOptions()...)
	e.collector.Store(collector)

	e.transition(StateSetup)
	if err := e.setup(ctx); err != nil {
		e.transition(StateAborted)
		collector.Stop()
		report := e.buildReport(collector, nil, nil, err)
		e.logVerdict(report)
		return report, err
	}

	e.transition(StateRamping)
	runErr := e.ramp(ctx, collector)
	if runErr == nil && e.interrupted.Load() {
		runErr = ErrStopped
	}

	if runErr == nil {
		e.transition(StateTeardown)
	}
	e.teardown()
	collector.Stop()

	results := e.evaluate(collector)
	if runErr != nil {
		e.transition(StateAborted)
	} else {
		e.transition(StateDone)
	}

	report := e.buildReport(collector, results, e.breaches(), runErr)
	e.logVerdict(report)
	return report, runErr
}

func (e *Engine) metricsConfig() metrics.Config {
	cfg := metrics.DefaultConfig()
	opts := e.config.Options
	cfg.BucketInterval = opts.BucketInterval.GetDuration(config.DefaultBucketInterval)

	if lt := opts.LiveThresholds; lt != nil && lt.Enabled {
		window := lt.Window.GetDuration(config.DefaultLiveWindow)
		slots := int((window + cfg.BucketInterval - 1) / cfg.BucketInterval)
		if slots < 1 {
			slots = 1
		}
		cfg.WindowSlots = slots
	}
	return cfg
}

func (e *Engine) collectorOptions() []metrics.Option {
	if e.observer == nil {
		return nil
	}
	return []metrics.Option{metrics.WithObserver(e.observer)}
}

// hookRuntime is the runtime setup and teardown hooks run with. Its
// traffic is not recorded.
func (e *Engine) hookRuntime() *performance.Runtime {
	auth := session.NewHTTPAuthenticator(e.client, e.paths, nil)
	return &performance.Runtime{
		Client:   e.client,
		Sessions: session.NewCoordinator(e.mode, auth, e.creds, e.logger).WithAccounts(e.accounts),
		Clock:    e.clock,
		Logger:   e.logger,
	}
}

// setup runs every setup hook in scenario order. The first failure aborts.
func (e *Engine) setup(ctx context.Context) error {
	timeout := e.config.Options.SetupTimeout.GetDuration(config.DefaultSetupTimeout)
	rt := e.hookRuntime()

	for _, r := range e.runners {
		if r.scenario.Setup == nil {
			continue
		}
		hookCtx, cancel := context.WithTimeout(ctx, timeout)
		data, err := r.scenario.Setup(hookCtx, rt)
		cancel()
		if err != nil {
			e.logger.Error("setup hook failed", zap.String("scenario", r.name), zap.Error(err))
			return &failure.SetupError{Scenario: r.name, Err: err}
		}
		r.data = data
		e.logger.Info("setup hook completed", zap.String("scenario", r.name))
	}
	return nil
}

// ramp runs every scenario concurrently and returns once all of them have
// drained. A non-nil error means the run was interrupted.
func (e *Engine) ramp(parent context.Context, collector *metrics.Collector) error {
	ctx, abort := context.WithCancelCause(parent)
	defer abort(nil)

	var ids atomic.Int64
	for _, r := range e.runners {
		scoped := collector.Scope(r.name)
		logger := e.logger.With(zap.String("scenario", r.name))
		auth := session.NewHTTPAuthenticator(e.client, e.paths, scoped)
		rt := &performance.Runtime{
			Client:   e.client,
			Metrics:  scoped,
			Sessions: session.NewCoordinator(e.mode, auth, e.creds, logger).WithAccounts(e.accounts),
			Clock:    e.clock,
			Logger:   logger,
			Abort: func(err error) {
				if ctx.Err() == nil {
					logger.Error("fatal error in scenario body, aborting run", zap.Error(err))
				}
				abort(err)
			},
		}
		r.scheduler = performance.NewVUScheduler(r.scenario, rt, r.data)
		r.scheduler.ShareVUIDs(&ids)
	}

	monitorCtx, stopMonitors := context.WithCancel(ctx)
	var monitorWg sync.WaitGroup
	for _, m := range e.startMonitors(collector) {
		monitorWg.Add(1)
		go func(m *liveMonitor) {
			defer monitorWg.Done()
			m.monitor.Run(monitorCtx)
		}(m)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range e.runners {
		r := r
		g.Go(func() error {
			return e.runScenario(gctx, r)
		})
	}

	ramped := make(chan struct{})
	go func() {
		defer close(ramped)
		for _, r := range e.runners {
			select {
			case <-r.exec.Ramped():
			case <-gctx.Done():
				return
			}
		}
		e.transition(StateDraining)
	}()

	err := g.Wait()
	<-ramped
	stopMonitors()
	monitorWg.Wait()

	if cause := context.Cause(ctx); failure.IsFatal(cause) {
		return cause
	}
	if err != nil {
		return err
	}
	if e.State() == StateRamping {
		e.transition(StateDraining)
	}
	return nil
}

func (e *Engine) runScenario(ctx context.Context, r *scenarioRunner) error {
	logger := e.logger.With(zap.String("scenario", r.name))

	if r.startDelay > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("scenario %s: %w", r.name, ctx.Err())
		case <-e.stopCh:
			return nil
		case <-e.clock.After(r.startDelay):
		}
	}

	r.launched.Store(true)
	r.started = time.Now()
	logger.Info("scenario started",
		zap.String("executor", string(r.exec.Type())),
		zap.String("body", r.body),
	)

	err := r.exec.Run(ctx, r.scheduler)
	r.finished = time.Now()
	if err != nil {
		return fmt.Errorf("scenario %s: %w", r.name, err)
	}

	stats := r.exec.GetStats()
	logger.Info("scenario finished",
		zap.Int64("iterations", stats.Iterations),
		zap.Int64("iteration_errors", stats.IterationErrors),
		zap.Int("peak_vus", r.scheduler.PeakVUs()),
	)
	return nil
}

func (e *Engine) startMonitors(collector *metrics.Collector) []*liveMonitor {
	lt := e.config.Options.LiveThresholds
	if lt == nil || !lt.Enabled {
		return nil
	}
	interval := lt.Interval.GetDuration(config.DefaultLiveInterval)

	var monitors []*liveMonitor
	if len(e.thresholds) > 0 {
		src := threshold.CollectorSource{Collector: collector, Window: true}
		monitors = append(monitors, &liveMonitor{
			monitor: threshold.NewLiveMonitor(e.thresholds, src, interval, e.logger),
		})
	}
	for _, r := range e.runners {
		if len(r.thresholds) == 0 {
			continue
		}
		src := threshold.CollectorSource{Collector: collector.Scope(r.name), Window: true}
		monitors = append(monitors, &liveMonitor{
			scenario: r.name,
			monitor:  threshold.NewLiveMonitor(r.thresholds, src, interval, e.logger.With(zap.String("scenario", r.name))),
		})
	}

	e.mu.Lock()
	e.monitors = monitors
	e.mu.Unlock()
	return monitors
}

// teardown runs every teardown hook. Failures are logged and never change
// the verdict.
func (e *Engine) teardown() {
	timeout := e.config.Options.TeardownTimeout.GetDuration(config.DefaultTeardownTimeout)
	rt := e.hookRuntime()

	for _, r := range e.runners {
		if r.scenario.Teardown == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := r.scenario.Teardown(ctx, rt, r.data)
		cancel()
		if err != nil {
			e.logger.Warn("teardown hook failed", zap.String("scenario", r.name), zap.Error(err))
			continue
		}
		e.logger.Info("teardown hook completed", zap.String("scenario", r.name))
	}
}

type evaluation struct {
	global    []threshold.Result
	scenarios map[string][]threshold.Result
}

func (e *Engine) evaluate(collector *metrics.Collector) *evaluation {
	ev := &evaluation{
		global:    threshold.Evaluate(e.thresholds, threshold.CollectorSource{Collector: collector}),
		scenarios: make(map[string][]threshold.Result),
	}
	for _, r := range e.runners {
		if len(r.thresholds) == 0 {
			continue
		}
		ev.scenarios[r.name] = threshold.Evaluate(r.thresholds, threshold.CollectorSource{Collector: collector.Scope(r.name)})
	}
	return ev
}

func (e *Engine) breaches() []ThresholdResult {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []ThresholdResult
	for _, m := range e.monitors {
		for _, b := range m.monitor.Breaches() {
			out = append(out, ThresholdResult{Scenario: m.scenario, Result: b})
		}
	}
	return out
}

func (e *Engine) transition(to State) bool {
	e.mu.Lock()
	from := e.state
	if !CanTransition(from, to) {
		e.mu.Unlock()
		return false
	}
	e.state = to
	e.transitions = append(e.transitions, Transition{From: from, To: to, At: time.Now()})
	e.mu.Unlock()

	e.logger.Info("run state changed", zap.String("from", string(from)), zap.String("to", string(to)))
	return true
}

func (e *Engine) logVerdict(r *Report) {
	fields := []zap.Field{
		zap.String("verdict", string(r.Verdict)),
		zap.Int64("requests", r.Total.Count),
		zap.Float64("error_rate", r.Total.ErrorRate),
		zap.Int("violations", len(r.Violations())),
		zap.Duration("duration", r.Duration),
	}
	if r.Verdict == VerdictPass {
		e.logger.Info("run finished", fields...)
		return
	}
	e.logger.Warn("run finished", fields...)
}

// Stop ends every profile early. In-flight iterations still complete and
// the run proceeds through drain and teardown. A stop that lands before
// the profiles have ended makes Run return ErrStopped.
func (e *Engine) Stop(ctx context.Context) error {
	switch e.State() {
	case StatePending, StateSetup, StateRamping:
		e.interrupted.Store(true)
	}
	e.stopOnce.Do(func() { close(e.stopCh) })

	var firstErr error
	for _, r := range e.runners {
		if !r.launched.Load() {
			// Closes the executor's stop channel without waiting for a
			// profile that may never start.
			done, cancel := context.WithCancel(ctx)
			cancel()
			_ = r.exec.Stop(done)
			continue
		}
		if err := r.exec.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop scenario %s: %w", r.name, err)
		}
	}
	return firstErr
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Transitions returns the state changes so far.
func (e *Engine) Transitions() []Transition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Transition, len(e.transitions))
	copy(out, e.transitions)
	return out
}

// Scenarios returns the scenario names in run order.
func (e *Engine) Scenarios() []string {
	names := make([]string, len(e.runners))
	for i, r := range e.runners {
		names[i] = r.name
	}
	return names
}

// Progress is a point-in-time view of a running test.
type Progress struct {
	State      State         `json:"state"`
	Elapsed    time.Duration `json:"elapsed"`
	Percent    float64       `json:"percent"`
	ActiveVUs  int           `json:"activeVUs"`
	TargetVUs  int           `json:"targetVUs"`
	Requests   int64         `json:"requests"`
	Failures   int64         `json:"failures"`
	Iterations int64         `json:"iterations"`
	RPS        float64       `json:"rps"`
	P95        time.Duration `json:"p95"`
	Breached   bool          `json:"breached"`
}

// Progress reports the live state of the run.
func (e *Engine) Progress() Progress {
	e.mu.RLock()
	p := Progress{State: e.state}
	if !e.startTime.IsZero() {
		p.Elapsed = time.Since(e.startTime)
	}
	for _, m := range e.monitors {
		p.Breached = p.Breached || m.monitor.Breached()
	}
	e.mu.RUnlock()

	if len(e.runners) > 0 {
		var sum float64
		for _, r := range e.runners {
			sum += r.exec.GetProgress()
			stats := r.exec.GetStats()
			p.TargetVUs += stats.TargetVUs
		}
		p.Percent = sum / float64(len(e.runners))
	}

	collector := e.collector.Load()
	if collector == nil {
		return p
	}
	total := collector.Total()
	p.ActiveVUs = collector.ActiveVUs()
	p.Requests = total.Count()
	p.Failures = total.Failures()
	p.Iterations = collector.Iterations()
	if elapsed := collector.Elapsed().Seconds(); elapsed > 0 {
		p.RPS = float64(p.Requests) / elapsed
	}
	if w, ok := collector.WindowSnapshot(metrics.TotalLabel); ok {
		p.P95 = w.Percentile(95)
	}
	return p
}
