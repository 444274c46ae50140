package recurring

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fakturierung-recurring/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome for one definition of a batch run.
type Result struct {
	DefinitionID  string `json:"definition_id"`
	AccountID     string `json:"account_id"`
	InvoiceID     string `json:"invoice_id,omitempty"`
	InvoiceNumber string `json:"invoice_number,omitempty"`
	Err           error  `json:"-"`
}

func (r Result) OK() bool {
	return r.Err == nil
}

// MarshalJSON renders Err as its message.
func (r Result) MarshalJSON() ([]byte, error) {
	type result Result
	view := struct {
		result
		Error string `json:"error,omitempty"`
	}{result: result(r)}
	if r.Err != nil {
		view.Error = r.Err.Error()
	}
	return json.Marshal(view)
}

// Processor runs the due batch. Each definition is generated and advanced
// in its own transaction; a failure is recorded in its Result and never
// stops the batch. Nothing is retried within a run: a failed definition
// keeps its nextRunAt and is picked up by the next run.
type Processor struct {
	store     Store
	generator *Generator
	workers   int
	log       zerolog.Logger
}

type ProcessorOption func(*Processor)

// WithWorkers sets how many definitions are processed concurrently.
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithLogger(log zerolog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.log = log
	}
}

func NewProcessor(store Store, generator *Generator, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:     store,
		generator: generator,
		workers:   1,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessDue generates invoices for every definition in the due set at now.
// It returns one Result per due definition, in query order. The error is
// non-nil only when the due set itself could not be loaded.
//
// When ctx is done, definitions not yet started get a Result carrying the
// context error; definitions already committed stay committed.
func (p *Processor) ProcessDue(ctx context.Context, now time.Time) ([]Result, error) {
	started := time.Now()
	defs, err := p.store.FindDueRecurringDefinitions(ctx, now)
	if err != nil {
		return nil, persistence("find due definitions", err)
	}

	results := make([]Result, len(defs))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := range defs {
		i := i
		if err := ctx.Err(); err != nil {
			results[i] = Result{DefinitionID: defs[i].Id, AccountID: defs[i].AccountId, Err: err}
			continue
		}
		g.Go(func() error {
			results[i] = p.processOne(ctx, &defs[i], now)
			return nil
		})
	}
	_ = g.Wait()

	sum := Summarize(results)
	event := p.log.Info()
	if sum.Failed > 0 {
		event = p.log.Warn()
	}
	event.
		Int("due", sum.Total).
		Int("succeeded", sum.Succeeded).
		Int("failed", sum.Failed).
		Dur("took", time.Since(started)).
		Str("run_date", now.Format(time.DateOnly)).
		Msg("recurring batch finished")
	return results, nil
}

func (p *Processor) processOne(ctx context.Context, def *models.RecurringDefinition, now time.Time) (res Result) {
	res = Result{DefinitionID: def.Id, AccountID: def.AccountId}
	defer func() {
		if r := recover(); r != nil {
			res.InvoiceID, res.InvoiceNumber = "", ""
			res.Err = &GenerationError{Op: "generate", DefinitionID: def.Id, Err: fmt.Errorf("panic: %v", r)}
			p.log.Error().Err(res.Err).Str("definition_id", def.Id).Msg("recurring generation panicked")
		}
	}()

	invoice, err := p.generator.GenerateAndAdvance(ctx, p.store, def, now)
	if err != nil {
		res.Err = err
		p.log.Error().Err(err).Str("definition_id", def.Id).Str("account_id", def.AccountId).Msg("recurring generation failed")
		return res
	}
	res.InvoiceID = invoice.Id
	res.InvoiceNumber = invoice.InvoiceNumber
	p.log.Info().
		Str("definition_id", def.Id).
		Str("invoice_id", invoice.Id).
		Str("invoice_number", invoice.InvoiceNumber).
		Str("next_run_at", def.NextRunAt.Format(time.DateOnly)).
		Msg("recurring invoice generated")
	return res
}

type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.OK() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	return s
}
