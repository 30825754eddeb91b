package operations

import (
	"context"
	"fmt"

	"github.com/triage-ai/icio-mcp/internal/apperr"
	"github.com/triage-ai/icio-mcp/internal/executor"
	"github.com/triage-ai/icio-mcp/internal/shape"
	"go.uber.org/zap"
)

// Querier abstracts the query executor for testability.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) ([]executor.Row, error)
}

// Result is the outcome of one dispatched call.
type Result struct {
	Operation string // primary name, even when called through the alias
	Output    map[string]any
	RowCount  int
}

// Dispatcher maps operation names onto validation, a fixed query and
// response shaping. It holds no per-call state and is safe for concurrent use.
type Dispatcher struct {
	catalog *Catalog
	binder  *Binder
	querier Querier
	logger  *zap.Logger
}

// NewDispatcher creates a Dispatcher over the given catalogue.
func NewDispatcher(catalog *Catalog, binder *Binder, querier Querier, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		catalog: catalog,
		binder:  binder,
		querier: querier,
		logger:  logger,
	}
}

// Call validates args for the named operation, runs its query and shapes the
// response. Validation failures stop before any analytical query runs.
func (d *Dispatcher) Call(ctx context.Context, name string, args map[string]any) (*Result, error) {
	desc, ok := d.catalog.Lookup(name)
	if !ok {
		return nil, apperr.New(apperr.KindUnknownOperation, "", "unknown operation %q", name)
	}

	switch desc.Builtin {
	case BuiltinHealth:
		return &Result{Operation: desc.Name, Output: map[string]any{"result": "ok"}}, nil
	case BuiltinHealthDB:
		return d.healthDB(ctx, desc)
	}

	params, err := d.binder.Bind(ctx, desc, args)
	if err != nil {
		return nil, err
	}

	rows, err := d.querier.Query(ctx, desc.sql, params.Args(desc.Args)...)
	if err != nil {
		return nil, err
	}

	d.logger.Debug("operation query finished",
		zap.String("operation", desc.Name),
		zap.Int("rows", len(rows)),
	)

	records, err := shape.Rows(rows, desc.columns)
	if err != nil {
		return nil, apperr.QueryExecution(fmt.Errorf("%s: %w", desc.Name, err))
	}

	return &Result{
		Operation: desc.Name,
		Output:    buildOutput(desc, params, records),
		RowCount:  len(records),
	}, nil
}

func (d *Dispatcher) healthDB(ctx context.Context, desc *Descriptor) (*Result, error) {
	rows, err := d.querier.Query(ctx, desc.sql)
	if err != nil {
		return nil, err
	}
	var value any
	if len(rows) > 0 {
		value = rows[0]["value"]
	}
	return &Result{
		Operation: desc.Name,
		Output:    map[string]any{"result": fmt.Sprintf("db_ok=%v", value)},
		RowCount:  len(rows),
	}, nil
}

func buildOutput(desc *Descriptor, params *Params, records []shape.Record) map[string]any {
	if desc.Result.Single {
		out := map[string]any{}
		if len(records) > 0 {
			for k, v := range records[0] {
				out[k] = v
			}
		}
		return out
	}

	out := make(map[string]any, len(desc.Result.Echo)+1)
	for _, name := range desc.Result.Echo {
		if params.Has(name) {
			out[name] = params.Value(name)
		}
	}
	out[desc.Result.Key] = records
	return out
}
