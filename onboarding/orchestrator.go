// Package onboarding creates employees and business subjects as sagas over
// several records.
//
// One onboarding writes a name, an account, a contact and the employee (or
// subject) record. Each write is a saga step preceded by a uniqueness check.
// When a step fails, the records already written are deleted again in
// reverse creation order, so a failed onboarding leaves nothing behind. With
// WithTransactions the whole saga also runs inside one store transaction.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortressi/onboard/credential"
	"github.com/fortressi/onboard/guard"
	"github.com/fortressi/onboard/model"
	"github.com/fortressi/onboard/obs"
	"github.com/fortressi/onboard/saga"
	"github.com/fortressi/onboard/session"
	"github.com/fortressi/onboard/store"
)

const (
	defaultMinAge = 16
	defaultMaxAge = 100
	// defaultJournalLimit bounds the in-memory journal used when no other is
	// configured.
	defaultJournalLimit = 1024
)

// Orchestrator runs onboarding sagas. It is safe for concurrent use; every
// call gets its own saga state and, in transactional mode, its own session.
type Orchestrator struct {
	store     store.Store
	creds     *credential.Manager
	validator *model.Validator
	registry  *saga.ActionRegistry[*State, *Saga]
	dags      map[saga.SagaName]*saga.SagaDag
	journal   saga.Store[*State]

	logger        logrus.FieldLogger
	metrics       *obs.Metrics
	transactional bool
	countryCode   string
	now           func() time.Time
}

type Option func(*Orchestrator)

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithMetrics(m *obs.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithJournal sets where saga progress is kept for Rollback. The default is
// in memory and keeps the latest defaultJournalLimit sagas.
func WithJournal(j saga.Store[*State]) Option {
	return func(o *Orchestrator) { o.journal = j }
}

// WithValidator replaces the default input validator (ages 16 to 100).
func WithValidator(v *model.Validator) Option {
	return func(o *Orchestrator) { o.validator = v }
}

// WithTransactions runs each saga inside one store transaction when the
// store supports it. Stores without sessions fall back to compensation only.
func WithTransactions(on bool) Option {
	return func(o *Orchestrator) { o.transactional = on }
}

// WithDefaultCountryCode sets the country code given to phones without one.
func WithDefaultCountryCode(cc string) Option {
	return func(o *Orchestrator) {
		if cc != "" {
			o.countryCode = cc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(st store.Store, creds *credential.Manager, opts ...Option) (*Orchestrator, error) {
	if st == nil || creds == nil {
		return nil, errors.New("onboarding: store and credential manager are required")
	}
	o := &Orchestrator{
		store:       st,
		creds:       creds,
		registry:    saga.NewActionRegistry[*State, *Saga](),
		dags:        make(map[saga.SagaName]*saga.SagaDag),
		countryCode: model.DefaultCountryCode,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = obs.Discard()
	}
	if o.journal == nil {
		o.journal = saga.NewMemoryStore[*State](saga.WithLimit(defaultJournalLimit))
	}
	if o.validator == nil {
		o.validator = model.NewValidator(defaultMinAge, defaultMaxAge, o.now)
	}

	actions := steps()
	node := func(name saga.NodeName) saga.Node {
		return saga.NewActionNode(name, "", actions[name])
	}
	assemble := []saga.Node{node(StepAssembleAddress), node(StepAssembleEmail), node(StepAssemblePhone)}

	plans := map[saga.SagaName][]saga.NodeName{
		EmployeeSaga: {StepCreateName, StepCheckUsername, StepCreateAccount, StepCheckContact,
			StepCreateContact, StepCheckSignature, StepCreateEmployee},
		SubjectSaga: {StepCheckUsername, StepCreateAccount, StepCheckContact,
			StepCreateContact, StepCheckTaxID, StepCreateSubject},
	}
	for name, plan := range plans {
		b := saga.NewDagBuilder[*State, *Saga](name, o.registry)
		if err := b.AppendParallel(assemble...); err != nil {
			return nil, fmt.Errorf("onboarding: build %s saga: %w", name, err)
		}
		for _, step := range plan {
			if err := b.Append(node(step)); err != nil {
				return nil, fmt.Errorf("onboarding: build %s saga: %w", name, err)
			}
		}
		d, err := b.Build()
		if err != nil {
			return nil, fmt.Errorf("onboarding: build %s saga: %w", name, err)
		}
		o.dags[name] = saga.NewSagaDag(d)
	}
	return o, nil
}

// CreateEmployee onboards one employee. On failure the returned error is an
// *Error and no record created by this call remains.
func (o *Orchestrator) CreateEmployee(ctx context.Context, in model.EmployeeInput) (Bundle, error) {
	if err := o.validator.Employee(&in); err != nil {
		return Bundle{}, newError("validate", err)
	}
	return o.run(ctx, EmployeeSaga, &State{Username: in.Account.Username, employee: &in})
}

// CreateEmployees onboards each input independently. A failure does not stop
// the remaining items.
func (o *Orchestrator) CreateEmployees(ctx context.Context, in []model.EmployeeInput) []Result {
	results := make([]Result, len(in))
	for i := range in {
		b, err := o.CreateEmployee(ctx, in[i])
		results[i] = Result{Index: i, Bundle: b, Err: err}
	}
	return results
}

// CreateSubject onboards one business subject. The contact is named by its
// company name.
func (o *Orchestrator) CreateSubject(ctx context.Context, in model.SubjectInput) (Bundle, error) {
	if err := o.validator.Subject(&in); err != nil {
		return Bundle{}, newError("validate", err)
	}
	return o.run(ctx, SubjectSaga, &State{Username: in.Account.Username, subject: &in})
}

func (o *Orchestrator) CreateSubjects(ctx context.Context, in []model.SubjectInput) []Result {
	results := make([]Result, len(in))
	for i := range in {
		b, err := o.CreateSubject(ctx, in[i])
		results[i] = Result{Index: i, Bundle: b, Err: err}
	}
	return results
}

func (o *Orchestrator) run(ctx context.Context, name saga.SagaName, st *State) (Bundle, error) {
	started := o.now()
	sagaID := saga.NewSagaID()
	log := o.logger.WithFields(logrus.Fields{"saga": name, "saga_id": sagaID.String()})

	st.store = o.store
	st.creds = o.creds
	st.countryCode = o.countryCode

	var handle *session.Handle
	if o.transactional {
		h := session.New(o.store)
		switch err := h.Init(ctx); {
		case errors.Is(err, session.ErrUnsupported):
			log.Debug("store has no transactions, relying on compensation")
		case err != nil:
			return Bundle{}, newError("begin", err)
		default:
			handle = h
			defer func() {
				if err := handle.End(context.WithoutCancel(ctx)); err != nil {
					log.WithError(err).Warn("failed to end session")
				}
			}()
			tx, err := handle.Start(ctx)
			if err != nil {
				return Bundle{}, newError("begin", err)
			}
			st.store = tx
		}
	}
	st.guard = guard.New(st.store)

	exec := saga.NewSagaExecutor(o.dags[name], o.registry, &Saga{state: st}, sagaID, o.journal,
		saga.WithLogger(log), saga.WithClock(o.now))
	err := exec.Execute(ctx)
	if err == nil && handle != nil {
		if cerr := handle.Commit(ctx); cerr != nil {
			o.forget(ctx, sagaID, log)
			o.metrics.ObserveSaga(string(name), obs.OutcomeCompensated, o.now().Sub(started))
			e := newError("commit", cerr)
			e.SagaID = sagaID.String()
			return Bundle{}, e
		}
	}
	if err == nil {
		log.WithField("took", o.now().Sub(started)).Info("onboarding complete")
		o.metrics.ObserveSaga(string(name), obs.OutcomeSuccess, o.now().Sub(started))
		b := st.bundle
		b.SagaID = sagaID.String()
		return b, nil
	}

	return Bundle{}, o.failed(ctx, name, sagaID, st, err, started, log)
}

func (o *Orchestrator) failed(ctx context.Context, name saga.SagaName, sagaID saga.SagaID, st *State, err error, started time.Time, log logrus.FieldLogger) error {
	var stepErr *saga.StepError
	if !errors.As(err, &stepErr) {
		o.metrics.ObserveSaga(string(name), obs.OutcomeFailed, o.now().Sub(started))
		e := newError("execute", err)
		e.SagaID = sagaID.String()
		return e
	}

	e := newError(string(stepErr.Node), stepErr.Err)
	e.SagaID = sagaID.String()
	e.Partial = st.created
	e.Compensation = stepErr.Compensation

	for _, n := range stepErr.Undone {
		o.metrics.ObserveUndo(string(n), nil)
	}
	for _, ce := range stepErr.Compensation {
		o.metrics.ObserveUndo(string(ce.Node), ce.Err)
	}

	outcome := obs.OutcomeCompensated
	if len(e.Compensation) > 0 {
		outcome = obs.OutcomeFailed
		log.WithField("step", e.Step).Error("onboarding failed and could not be fully compensated")
	} else {
		o.forget(ctx, sagaID, log)
		log.WithFields(logrus.Fields{"step": e.Step, "kind": e.Kind}).Info("onboarding rejected")
	}
	o.metrics.ObserveSaga(string(name), outcome, o.now().Sub(started))
	return e
}

// forget drops the journal entry of a saga that left nothing behind.
func (o *Orchestrator) forget(ctx context.Context, sagaID saga.SagaID, log logrus.FieldLogger) {
	if err := o.journal.Delete(context.WithoutCancel(ctx), sagaID.String()); err != nil {
		log.WithError(err).Warn("failed to drop journal entry")
	}
}

// Rollback undoes the records of a journaled saga: one that completed, or
// one whose compensation failed part way. Retrying after a failed Rollback
// only repeats the undos that failed.
func (o *Orchestrator) Rollback(ctx context.Context, sagaID string) error {
	state, err := o.journal.Load(ctx, sagaID)
	if err != nil {
		return newError("rollback", err)
	}
	d, ok := o.dags[saga.SagaName(state.SagaName)]
	if !ok {
		return newError("rollback", fmt.Errorf("unknown saga %q", state.SagaName))
	}

	st := &State{store: o.store, creds: o.creds, countryCode: o.countryCode}
	st.guard = guard.New(st.store)
	log := o.logger.WithFields(logrus.Fields{"saga": state.SagaName, "saga_id": sagaID})
	exec, err := saga.NewExecutorFromState(d, o.registry, &Saga{state: st}, state, o.journal,
		saga.WithLogger(log), saga.WithClock(o.now))
	if err != nil {
		return newError("rollback", err)
	}

	switch err := exec.Rollback(ctx); {
	case err == nil, errors.Is(err, saga.ErrNothingToRollback):
		o.forget(ctx, exec.SagaID(), log)
		log.Info("saga rolled back")
		return nil
	default:
		return newError("rollback", err)
	}
}

// Graph renders the steps of a saga in Graphviz DOT format.
func (o *Orchestrator) Graph(name saga.SagaName) (string, error) {
	d, ok := o.dags[name]
	if !ok {
		return "", fmt.Errorf("onboarding: unknown saga %q", name)
	}
	return d.ExportToDot()
}

// Steps returns the steps of a saga grouped into stages. Steps in one stage
// do not depend on each other.
func (o *Orchestrator) Steps(name saga.SagaName) ([][]saga.NodeName, error) {
	d, ok := o.dags[name]
	if !ok {
		return nil, fmt.Errorf("onboarding: unknown saga %q", name)
	}
	return d.Levels()
}
