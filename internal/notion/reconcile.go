package notion

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Column names a tracked database must carry.
const (
	ColumnStatus      = "Status"
	ColumnMedia       = "Midia"
	ColumnDescription = "Descrição"
	ColumnPublishDate = "Publicar em"
)

// StatusOptions are the publishing states, in display order.
var StatusOptions = []SelectOption{
	{Name: "⏳ Aguardando", Color: "blue"},
	{Name: "📅 Agendado", Color: "yellow"},
	{Name: "✅ Publicado", Color: "green"},
}

type requiredColumn struct {
	name string
	typ  PropertyType
}

// requiredColumns are created when missing, in this order.
var requiredColumns = []requiredColumn{
	{ColumnMedia, TypeFiles},
	{ColumnDescription, TypeRichText},
	{ColumnPublishDate, TypeDate},
}

// ErrSchemaReconciliation is wrapped by every Reconcile failure.
var ErrSchemaReconciliation = errors.New("schema reconciliation failed")

// API is the part of the Notion API the reconciler uses.
type API interface {
	RetrieveDatabase(ctx context.Context, token, databaseID string) (*Database, error)
	UpdateDatabase(ctx context.Context, token, databaseID string, properties map[string]PropertySchema) (*Database, error)
}

// StepFailure records one column the reconciler could not fix.
type StepFailure struct {
	Column  string `json:"column"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Result describes what a reconciliation found and did. The Has fields
// other than HasStatus report the columns present before the call.
// HasStatus reports whether the status column is usable afterwards.
type Result struct {
	HasStatus      bool          `json:"hasStatus"`
	HasMedia       bool          `json:"hasMedia"`
	HasDescription bool          `json:"hasDescription"`
	HasPublishDate bool          `json:"hasPublishDate"`
	Created        []string      `json:"created"`
	Updated        []string      `json:"updated"`
	Failed         []StepFailure `json:"failed"`
}

func (r *Result) fail(column string, err error) {
	r.Failed = append(r.Failed, StepFailure{Column: column, Message: err.Error(), Err: err})
}

// Err joins the step failures, or returns nil when every step succeeded.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, fmt.Errorf("column %q: %w", f.Column, f.Err))
	}
	return fmt.Errorf("%w: %w", ErrSchemaReconciliation, errors.Join(errs...))
}

// Reconciler brings a database schema up to what publishing needs. It only
// adds columns and status options, never removes or retypes them, so
// running it again on a reconciled database makes no update calls.
type Reconciler struct {
	api API
	log zerolog.Logger
}

// NewReconciler creates a reconciler on top of api.
func NewReconciler(api API, log zerolog.Logger) *Reconciler {
	return &Reconciler{api: api, log: log.With().Str("component", "reconciler").Logger()}
}

// Reconcile inspects the database once, then issues one update per missing
// piece. A failed step does not stop later ones; the returned error wraps
// ErrSchemaReconciliation whenever retrieval or any step failed.
func (r *Reconciler) Reconcile(ctx context.Context, databaseID, accessToken string) (*Result, error) {
	log := r.log.With().Str("database_id", databaseID).Logger()

	db, err := r.api.RetrieveDatabase(ctx, accessToken, databaseID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to retrieve database")
		return nil, fmt.Errorf("%w: retrieve database: %w", ErrSchemaReconciliation, err)
	}

	res := &Result{
		Created: []string{},
		Updated: []string{},
		Failed:  []StepFailure{},
	}
	_, res.HasMedia = db.Properties[ColumnMedia]
	_, res.HasDescription = db.Properties[ColumnDescription]
	_, res.HasPublishDate = db.Properties[ColumnPublishDate]

	r.reconcileStatus(ctx, log, db, databaseID, accessToken, res)

	for _, col := range requiredColumns {
		if existing, ok := db.Properties[col.name]; ok {
			if existing.Type() != col.typ {
				log.Warn().Str("column", col.name).Str("type", string(existing.Type())).
					Msg("Column exists with an unexpected type, leaving it as is")
			}
			continue
		}

		schema, err := SchemaFor(col.typ)
		if err != nil {
			res.fail(col.name, err)
			continue
		}
		if err := r.update(ctx, databaseID, accessToken, col.name, schema); err != nil {
			log.Error().Err(err).Str("column", col.name).Msg("Failed to create column")
			res.fail(col.name, err)
			continue
		}
		res.Created = append(res.Created, col.name)
	}

	if err := res.Err(); err != nil {
		return res, err
	}
	log.Info().Strs("created", res.Created).Strs("updated", res.Updated).Msg("Database schema reconciled")
	return res, nil
}

func (r *Reconciler) reconcileStatus(ctx context.Context, log zerolog.Logger, db *Database, databaseID, token string, res *Result) {
	existing, ok := db.Properties[ColumnStatus]
	if !ok {
		schema := PropertySchema{Select: &SelectSchema{Options: append([]SelectOption(nil), StatusOptions...)}}
		if err := r.update(ctx, databaseID, token, ColumnStatus, schema); err != nil {
			log.Error().Err(err).Msg("Failed to create status column")
			res.fail(ColumnStatus, err)
			return
		}
		res.HasStatus = true
		res.Created = append(res.Created, ColumnStatus)
		return
	}

	sel, ok := existing.(SelectProperty)
	if !ok {
		res.fail(ColumnStatus, fmt.Errorf("column has type %s, expected %s", existing.Type(), TypeSelect))
		return
	}

	merged, added := UnionOptions(sel.Options, StatusOptions)
	if added == 0 {
		res.HasStatus = true
		return
	}

	schema := PropertySchema{Select: &SelectSchema{Options: merged}}
	if err := r.update(ctx, databaseID, token, ColumnStatus, schema); err != nil {
		log.Error().Err(err).Msg("Failed to add status options")
		res.fail(ColumnStatus, err)
		return
	}
	res.HasStatus = true
	res.Updated = append(res.Updated, ColumnStatus)
}

func (r *Reconciler) update(ctx context.Context, databaseID, token, column string, schema PropertySchema) error {
	_, err := r.api.UpdateDatabase(ctx, token, databaseID, map[string]PropertySchema{column: schema})
	return err
}

// UnionOptions keeps every existing option in order and appends the
// required ones whose name is missing. It returns how many were appended.
func UnionOptions(existing, required []SelectOption) ([]SelectOption, int) {
	seen := make(map[string]bool, len(existing))
	merged := make([]SelectOption, 0, len(existing)+len(required))
	for _, o := range existing {
		if seen[o.Name] {
			continue
		}
		seen[o.Name] = true
		merged = append(merged, o)
	}

	added := 0
	for _, o := range required {
		if seen[o.Name] {
			continue
		}
		seen[o.Name] = true
		merged = append(merged, SelectOption{Name: o.Name, Color: o.Color})
		added++
	}
	return merged, added
}
