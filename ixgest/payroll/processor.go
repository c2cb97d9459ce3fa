// Package payroll runs extraction passes over the payroll API.
//
// A pass walks every client from a checkpoint, every employee page of each
// client and, depending on the mode, either the employee detail or every
// check of the employee. Each record is resolved against the client's lookup
// tables, classified and written idempotently. Record-level failures are
// tallied as outcomes and the pass continues; only credential failures and
// cancellation stop it.
package payroll

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/paysync/errors"
	"github.com/teranos/paysync/load"
	"github.com/teranos/paysync/logger"
	"github.com/teranos/paysync/normalize"
	"github.com/teranos/paysync/pulse"
	"github.com/teranos/paysync/pulse/schedule"
	"github.com/teranos/paysync/remote"
	"github.com/teranos/paysync/resolve"
)

// Credentials keeps the API token fresh
type Credentials interface {
	RefreshIfDue(ctx context.Context, threshold time.Duration) (bool, error)
}

// Sink writes classified records
type Sink interface {
	UpsertProfile(ctx context.Context, variant normalize.Variant, rec normalize.ProfileRecord) (bool, error)
	UpsertCheckLine(ctx context.Context, rec normalize.CheckLineRecord) (bool, error)
}

// RunLog persists run progress
type RunLog interface {
	Start(ctx context.Context, mode string, clientOffset, page int, now time.Time) (*load.Run, error)
	Progress(ctx context.Context, run *load.Run) error
	Finish(ctx context.Context, run *load.Run, status string, runErr error, now time.Time) error
}

// Exporter receives every inserted record
type Exporter interface {
	WriteProfile(variant normalize.Variant, rec normalize.ProfileRecord) error
	WriteCheckLine(rec normalize.CheckLineRecord) error
}

// Options configures a processor
type Options struct {
	Mode             Mode
	ProfileThreshold time.Duration // Token age that forces a refresh in profile mode
	CheckThreshold   time.Duration // Token age that forces a refresh in check mode
	ExceptionNames   []string      // Facility names routed to type-B
	ExceptionCodes   []string      // Legal code fragments skipped in check mode
	ProgressInterval int           // Log every N inserted rows, 0 = off
	Schedule         schedule.TickerConfig
	RetryInitial     time.Duration // First pause after a failed pass in check mode
	RetryMax         time.Duration
}

// Processor runs extraction passes
type Processor struct {
	fetcher    *remote.Fetcher
	creds      Credentials
	sink       Sink
	runs       RunLog
	export     Exporter
	emitter    pulse.ProgressEmitter
	opts       Options
	exceptions normalize.ExceptionSet
	now        func() time.Time
	logger     *zap.SugaredLogger
	ixLog      *zap.SugaredLogger // Logger with IX symbol pre-attached
	inserted   int                // Rows inserted since the processor was created
}

// NewProcessor creates a processor for one mode
func NewProcessor(fetcher *remote.Fetcher, creds Credentials, sink Sink, opts Options, log *zap.SugaredLogger) *Processor {
	log = logger.OrNop(log)
	return &Processor{
		fetcher:    fetcher,
		creds:      creds,
		sink:       sink,
		emitter:    pulse.NopEmitter{},
		opts:       opts,
		exceptions: normalize.NewExceptionSet(opts.ExceptionNames),
		now:        time.Now,
		logger:     log,
		ixLog:      logger.AddIXSymbol(log).With(logger.FieldMode, opts.Mode.String()),
	}
}

// SetRunLog enables the extract_runs log
func (p *Processor) SetRunLog(runs RunLog) { p.runs = runs }

// SetExporter enables the CSV export of inserted records
func (p *Processor) SetExporter(e Exporter) { p.export = e }

// SetEmitter routes progress to e
func (p *Processor) SetEmitter(e pulse.ProgressEmitter) { p.emitter = pulse.OrNop(e) }

// SetClock replaces the wall clock, used for load dates and run timestamps
func (p *Processor) SetClock(now func() time.Time) { p.now = now }

// Mode returns the processor's mode
func (p *Processor) Mode() Mode { return p.opts.Mode }

func (p *Processor) threshold() time.Duration {
	if p.opts.Mode == ModeCheck {
		return p.opts.CheckThreshold
	}
	return p.opts.ProfileThreshold
}

// pass carries the state of one RunOnce call
type pass struct {
	result   *RunResult
	run      *load.Run
	loadDate string
}

// RunOnce performs one full pass starting at cp.
// It returns an error only when the pass could not run to its end: a
// credential failure, cancellation, or a failed client list.
func (p *Processor) RunOnce(ctx context.Context, cp Checkpoint) (*RunResult, error) {
	if p.opts.Mode != ModeProfile && p.opts.Mode != ModeCheck {
		return nil, errors.Wrapf(errors.ErrInvalidMode, "%q", p.opts.Mode)
	}

	start := p.now()
	ps := &pass{
		result: &RunResult{
			Mode:      p.opts.Mode,
			StartedAt: start,
			Position:  cp,
		},
		loadDate: normalize.LoadDate(start),
	}
	p.startRun(ctx, ps, cp)

	logger.PulseOpenInfow("Run started",
		logger.FieldMode, p.opts.Mode.String(),
		logger.FieldRunID, ps.result.RunID,
		"begin_at", cp.ClientOffset,
		logger.FieldPage, cp.Page,
	)
	p.emitter.EmitStage("clients", "Walking client list")

	err := p.walkClients(ctx, ps, cp)

	ps.result.FinishedAt = p.now()
	p.finishRun(ctx, ps, err)

	summary := ps.result.Summary()
	if err != nil {
		p.emitter.EmitError("run", err)
		p.ixLog.Errorw("Run ended early", "error", err, "loaded", ps.result.Loaded, "failed", ps.result.Failed)
		return ps.result, err
	}

	p.emitter.EmitComplete(summary)
	logger.PulseCloseInfow("Run finished",
		logger.FieldMode, p.opts.Mode.String(),
		logger.FieldRunID, ps.result.RunID,
		"loaded", ps.result.Loaded,
		"skipped", ps.result.Skipped,
		"failed", ps.result.Failed,
		logger.FieldDurationMS, ps.result.Duration().Milliseconds(),
	)
	return ps.result, nil
}

func (p *Processor) walkClients(ctx context.Context, ps *pass, cp Checkpoint) error {
	// The client list needs a token too
	if err := p.refresh(ctx, p.threshold()); err != nil {
		return err
	}

	clients := p.fetcher.Clients()
	index := 0
	resumePage := cp.Page

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, ok, err := clients.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return errors.Wrap(err, "list clients")
		}
		if !ok {
			return nil
		}

		for _, c := range page {
			if index < cp.ClientOffset {
				index++
				continue
			}
			// The page override applies to the first resumed client only
			startPage := resumePage
			resumePage = 0

			ps.result.Clients++
			ps.result.Position = Checkpoint{ClientOffset: index, Page: startPage}
			if err := p.processClient(ctx, ps, c, index, startPage); err != nil {
				return err
			}
			index++
			ps.result.Position = Checkpoint{ClientOffset: index}
			p.checkpoint(ctx, ps)
		}
	}
}

func (p *Processor) processClient(ctx context.Context, ps *pass, c remote.Client, index, startPage int) error {
	clientID := c.ID.String()
	log := p.ixLog.With(logger.FieldClientID, clientID)

	detail, err := p.fetcher.ClientDetail(ctx, clientID)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.fail(ps, log, Outcome{Op: OpClientDetail, ClientID: clientID, Err: err})
		return nil
	}
	tables := resolve.BuildLookupTables(detail)

	var start string
	if startPage > 0 {
		start = remote.EmployeesPageURL(p.fetcher.BaseURL(), clientID, startPage)
	} else {
		var ok bool
		if start, ok = remote.EmployeesURL(c); !ok {
			p.fail(ps, log, Outcome{
				Op:       OpEmployeePage,
				ClientID: clientID,
				Err:      errors.Wrap(errors.ErrNotFound, "client has no self link"),
			})
			return nil
		}
	}

	p.emitter.EmitStage("client", "Client "+clientID)
	employees := p.fetcher.Employees(start)
	current := start
	for {
		log.Infow("Fetching employee page", logger.FieldURL, current)
		page, ok, err := employees.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			p.fail(ps, log, Outcome{Op: OpEmployeePage, ClientID: clientID, Err: err})
			return nil
		}
		if !ok {
			return nil
		}
		ps.result.Pages++

		for _, e := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := p.processEmployee(ctx, ps, clientID, e, tables); err != nil {
				return err
			}
		}

		current = employees.URL()
		if current != "" {
			ps.result.Position = Checkpoint{ClientOffset: index, Page: PageNumber(current)}
			p.checkpoint(ctx, ps)
		}
	}
}

// PageNumber reads the page query parameter of an employee page URL, 0 when absent
func PageNumber(pageURL string) int {
	u, err := url.Parse(pageURL)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (p *Processor) processEmployee(ctx context.Context, ps *pass, clientID string, e remote.Employee, tables resolve.Tables) error {
	employeeID := e.ID.String()
	legalCode := e.LegalCode.String()
	log := p.ixLog.With(
		logger.FieldClientID, clientID,
		logger.FieldEmployeeID, employeeID,
		logger.FieldLegalCode, legalCode,
	)
	ps.result.Employees++

	if p.opts.Mode == ModeCheck && normalize.MatchesExceptionCode(legalCode, p.opts.ExceptionCodes) {
		log.Warnw("Exception facility, skipping checks")
		ps.result.Record(Outcome{
			Op:         OpEmployee,
			Status:     StatusSkipped,
			ClientID:   clientID,
			EmployeeID: employeeID,
			Reason:     ReasonExceptionCode,
		})
		return nil
	}

	if err := p.refresh(ctx, p.threshold()); err != nil {
		return err
	}

	jobs, err := p.fetcher.EmployeeJobs(ctx, e)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Without jobs the references fall back to the checks
		log.Warnw("Employee jobs unavailable", "error", err)
		jobs = nil
	}

	if p.opts.Mode == ModeProfile {
		return p.processProfile(ctx, ps, log, clientID, e, jobs, tables)
	}
	return p.processChecks(ctx, ps, log, clientID, e, jobs, tables)
}

func (p *Processor) processProfile(ctx context.Context, ps *pass, log *zap.SugaredLogger, clientID string, e remote.Employee, jobs []remote.Job, tables resolve.Tables) error {
	employeeID := e.ID.String()
	outcome := func(op string, err error) Outcome {
		return Outcome{Op: op, ClientID: clientID, EmployeeID: employeeID, Err: err}
	}

	detail, err := p.fetcher.EmployeeDetail(ctx, e)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.fail(ps, log, outcome(OpEmployeeDetail, err))
		return nil
	}

	refs, source, err := resolve.Select(jobs, func() ([]resolve.Reference, error) {
		return p.firstCheckReferences(ctx, log, e)
	})
	if err != nil {
		return err
	}
	resolved, err := resolve.Resolve(refs, tables)
	if err != nil {
		p.fail(ps, log, outcome(OpResolve, err))
		return nil
	}

	variant, rec := normalize.ClassifyProfile(detail, resolved, tables.Legals, p.exceptions, ps.loadDate)
	log.Debugw("Profile classified", "variant", variant.String(), "references", source.String())

	inserted, err := p.sink.UpsertProfile(ctx, variant, rec)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.fail(ps, log, outcome(OpUpsertProfile, err))
		return nil
	}
	if !inserted {
		ps.result.Record(Outcome{Op: OpUpsertProfile, Status: StatusSkipped, ClientID: clientID, EmployeeID: employeeID, Reason: ReasonExists})
		return nil
	}

	ps.result.Record(Outcome{Op: OpUpsertProfile, Status: StatusLoaded, ClientID: clientID, EmployeeID: employeeID})
	if p.export != nil {
		if err := p.export.WriteProfile(variant, rec); err != nil {
			log.Warnw("Export failed", "error", err)
		}
	}
	p.noteInserted(detail.LegalCode.String(), rec.FacilityName)
	return nil
}

// firstCheckReferences returns the references of the first check whose detail
// can be fetched and is not empty. Only cancellation is returned as an error.
func (p *Processor) firstCheckReferences(ctx context.Context, log *zap.SugaredLogger, e remote.Employee) ([]resolve.Reference, error) {
	checks, err := p.fetcher.Checks(ctx, e)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warnw("Check list incomplete", "error", err, logger.FieldCount, len(checks))
	}

	for _, summary := range checks {
		check, err := p.fetcher.CheckDetail(ctx, summary)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Warnw("Check detail unavailable", "error", err)
			continue
		}
		if check.IsEmpty() {
			continue
		}
		return resolve.CheckReferences(check), nil
	}
	return nil, nil
}

func (p *Processor) processChecks(ctx context.Context, ps *pass, log *zap.SugaredLogger, clientID string, e remote.Employee, jobs []remote.Job, tables resolve.Tables) error {
	employeeID := e.ID.String()

	checks, err := p.fetcher.Checks(ctx, e)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.fail(ps, log, Outcome{Op: OpCheckList, ClientID: clientID, EmployeeID: employeeID, Err: err})
	}
	log.Infow("Check list fetched", logger.FieldCount, len(checks))

	for _, summary := range checks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.refresh(ctx, p.opts.CheckThreshold); err != nil {
			return err
		}
		if err := p.processCheck(ctx, ps, log, clientID, employeeID, summary, jobs, tables); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) processCheck(ctx context.Context, ps *pass, log *zap.SugaredLogger, clientID, employeeID string, summary remote.CheckSummary, jobs []remote.Job, tables resolve.Tables) error {
	outcome := func(op string, err error) Outcome {
		return Outcome{Op: op, ClientID: clientID, EmployeeID: employeeID, Err: err}
	}
	ps.result.Checks++

	check, err := p.fetcher.CheckDetail(ctx, summary)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.fail(ps, log, outcome(OpCheckDetail, err))
		return nil
	}
	if check.IsEmpty() {
		ps.result.Record(Outcome{Op: OpCheckDetail, Status: StatusSkipped, ClientID: clientID, EmployeeID: employeeID, Reason: ReasonEmptyCheck})
		return nil
	}
	log = log.With(logger.FieldCheckID, check.ID.String())

	// Job references win; otherwise the check's own organizations apply
	refs, _, err := resolve.Select(jobs, func() ([]resolve.Reference, error) {
		return resolve.CheckReferences(check), nil
	})
	if err != nil {
		return err
	}
	resolved, err := resolve.Resolve(refs, tables)
	if err != nil {
		p.fail(ps, log, outcome(OpResolve, err))
		return nil
	}

	for _, line := range normalize.ClassifyCheckLines(check, resolved, ps.loadDate) {
		inserted, err := p.sink.UpsertCheckLine(ctx, line)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			p.fail(ps, log, outcome(OpUpsertCheck, err))
			continue
		}
		if !inserted {
			ps.result.Record(Outcome{Op: OpUpsertCheck, Status: StatusSkipped, ClientID: clientID, EmployeeID: employeeID, Reason: ReasonExists})
			continue
		}
		ps.result.Record(Outcome{Op: OpUpsertCheck, Status: StatusLoaded, ClientID: clientID, EmployeeID: employeeID})
		if p.export != nil {
			if err := p.export.WriteCheckLine(line); err != nil {
				log.Warnw("Export failed", "error", err)
			}
		}
		p.noteInserted(check.LegalCompanyName.String(), line.FacilityName)
	}
	return nil
}

// refresh renews the token when it is older than threshold. Any failure is fatal.
func (p *Processor) refresh(ctx context.Context, threshold time.Duration) error {
	if _, err := p.creds.RefreshIfDue(ctx, threshold); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !errors.Is(err, errors.ErrCredential) {
			err = errors.Mark(err, errors.ErrCredential)
		}
		return err
	}
	return nil
}

func (p *Processor) fail(ps *pass, log *zap.SugaredLogger, o Outcome) {
	o.Status = StatusFailed
	ps.result.Record(o)
	log.Errorw("Record failed", logger.FieldOperation, o.Op, "error", o.Err)
}

// noteInserted counts an inserted row and reports progress every interval rows
func (p *Processor) noteInserted(legalCode, facility string) {
	p.inserted++
	if p.opts.ProgressInterval <= 0 || p.inserted%p.opts.ProgressInterval != 0 {
		return
	}
	p.ixLog.Infow("Progress",
		logger.FieldCount, p.inserted,
		logger.FieldLegalCode, legalCode,
		logger.FieldFacility, facility,
	)
	p.emitter.EmitProgress(p.inserted, map[string]interface{}{
		"type":                p.opts.Mode.String() + " rows",
		logger.FieldLegalCode: legalCode,
		logger.FieldFacility:  facility,
	})
}

func (p *Processor) startRun(ctx context.Context, ps *pass, cp Checkpoint) {
	if p.runs == nil {
		return
	}
	run, err := p.runs.Start(ctx, p.opts.Mode.String(), cp.ClientOffset, cp.Page, ps.result.StartedAt)
	if err != nil {
		p.ixLog.Warnw("Run log unavailable", "error", err)
		return
	}
	ps.run = run
	ps.result.RunID = run.ID
}

func (p *Processor) syncRun(ps *pass) {
	r := ps.run
	r.ClientOffset = ps.result.Position.ClientOffset
	r.Page = ps.result.Position.Page
	r.Loaded = ps.result.Loaded
	r.Skipped = ps.result.Skipped
	r.Failed = ps.result.Failed
}

// checkpoint stores the current position in the run log
func (p *Processor) checkpoint(ctx context.Context, ps *pass) {
	if ps.run == nil {
		return
	}
	p.syncRun(ps)
	if err := p.runs.Progress(ctx, ps.run); err != nil {
		p.ixLog.Warnw("Run checkpoint not stored", "error", err)
	}
}

func (p *Processor) finishRun(ctx context.Context, ps *pass, runErr error) {
	if ps.run == nil {
		return
	}
	status := load.RunCompleted
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded):
		status = load.RunCancelled
	default:
		status = load.RunFailed
	}

	p.syncRun(ps)
	// The run row is closed even when ctx is already cancelled
	if err := p.runs.Finish(context.WithoutCancel(ctx), ps.run, status, runErr, ps.result.FinishedAt); err != nil {
		p.ixLog.Warnw("Run end not stored", "error", err)
	}
}
