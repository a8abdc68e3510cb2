package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

// maxBindParams is the Postgres wire-protocol limit on parameters per statement.
const maxBindParams = 65535

var identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var ErrInvalidUpsert = errors.New("invalid upsert")

// Override sets a column on conflict to something other than the incoming
// value: either a raw SQL expression or a bound parameter.
type Override struct {
	expr  string
	value any
	bound bool
}

// Expr overrides a column with a SQL expression such as now() or NULL.
func Expr(sql string) Override { return Override{expr: sql} }

// Bind overrides a column with a bound value.
func Bind(v any) Override { return Override{value: v, bound: true} }

// UpsertSpec describes a batch insert-or-update.
//
// ConflictTarget entries are column names, or parenthesized index
// expressions for expression indexes. On conflict, UpdateColumns take the
// incoming values and Overrides are applied, but only if at least one of
// UpdateColumns actually differs from the stored row. Overrides never take
// part in that comparison, so re-importing identical data touches nothing.
type UpsertSpec struct {
	Table          string
	Columns        []string
	Rows           [][]any
	ConflictTarget []string
	UpdateColumns  []string
	Overrides      map[string]Override
}

// Upserter executes UpsertSpecs.
type Upserter struct {
	db *DB
}

func NewUpserter(db *DB) *Upserter {
	return &Upserter{db: db}
}

// Upsert writes spec.Rows and returns the number of rows inserted or
// actually updated. Batches above the bind-parameter limit are split into
// several statements inside one transaction.
func (u *Upserter) Upsert(ctx context.Context, spec UpsertSpec) (int64, error) {
	if err := spec.validate(); err != nil {
		return 0, err
	}
	if len(spec.Rows) == 0 {
		return 0, nil
	}

	var affected int64
	err := u.db.InTx(ctx, "upsert "+spec.Table, func(tx *sqlx.Tx) error {
		n, err := execUpsert(ctx, tx, spec)
		affected = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert into %s: %w", spec.Table, err)
	}
	return affected, nil
}

func execUpsert(ctx context.Context, tx *sqlx.Tx, spec UpsertSpec) (int64, error) {
	var affected int64
	for _, chunk := range spec.chunks() {
		query, args := spec.build(chunk)
		result, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		affected += n
	}
	return affected, nil
}

func (s UpsertSpec) validate() error {
	if !identifierPattern.MatchString(s.Table) {
		return fmt.Errorf("%w: bad table name %q", ErrInvalidUpsert, s.Table)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("%w: no columns", ErrInvalidUpsert)
	}
	if len(s.ConflictTarget) == 0 {
		return fmt.Errorf("%w: no conflict target", ErrInvalidUpsert)
	}

	columns := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if !identifierPattern.MatchString(c) {
			return fmt.Errorf("%w: bad column name %q", ErrInvalidUpsert, c)
		}
		if columns[c] {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidUpsert, c)
		}
		columns[c] = true
	}

	for _, target := range s.ConflictTarget {
		if isIndexExpression(target) {
			continue
		}
		if !columns[target] {
			return fmt.Errorf("%w: conflict target %q is not an inserted column", ErrInvalidUpsert, target)
		}
	}

	updates := make(map[string]bool, len(s.UpdateColumns))
	for _, c := range s.UpdateColumns {
		if !columns[c] {
			return fmt.Errorf("%w: update column %q is not an inserted column", ErrInvalidUpsert, c)
		}
		updates[c] = true
	}

	for c := range s.Overrides {
		if !identifierPattern.MatchString(c) {
			return fmt.Errorf("%w: bad override column %q", ErrInvalidUpsert, c)
		}
		if updates[c] {
			return fmt.Errorf("%w: column %q is both updated and overridden", ErrInvalidUpsert, c)
		}
	}

	for i, row := range s.Rows {
		if len(row) != len(s.Columns) {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrInvalidUpsert, i, len(row), len(s.Columns))
		}
	}

	if s.boundOverrides()+len(s.Columns) > maxBindParams {
		return fmt.Errorf("%w: too many columns", ErrInvalidUpsert)
	}
	return nil
}

func isIndexExpression(target string) bool {
	return len(target) > 2 && strings.HasPrefix(target, "(") && strings.HasSuffix(target, ")")
}

func (s UpsertSpec) overrideColumns() []string {
	keys := make([]string, 0, len(s.Overrides))
	for k := range s.Overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s UpsertSpec) boundOverrides() int {
	n := 0
	for _, o := range s.Overrides {
		if o.bound {
			n++
		}
	}
	return n
}

// chunks splits Rows so no statement exceeds maxBindParams.
func (s UpsertSpec) chunks() [][][]any {
	perChunk := (maxBindParams - s.boundOverrides()) / len(s.Columns)
	var out [][][]any
	for start := 0; start < len(s.Rows); start += perChunk {
		end := min(start+perChunk, len(s.Rows))
		out = append(out, s.Rows[start:end])
	}
	return out
}

// build renders the statement for rows and its flattened arguments. Row
// values come first; bound overrides follow in sorted column order.
func (s UpsertSpec) build(rows [][]any) (string, []any) {
	args := make([]any, 0, len(rows)*len(s.Columns)+s.boundOverrides())
	var b strings.Builder

	fmt.Fprintf(&b, "INSERT INTO %s AS t (%s) VALUES ", s.Table, strings.Join(s.Columns, ", "))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			args = append(args, v)
			fmt.Fprintf(&b, "$%d", len(args))
		}
		b.WriteByte(')')
	}

	fmt.Fprintf(&b, " ON CONFLICT (%s)", strings.Join(s.ConflictTarget, ", "))

	overrides := s.overrideColumns()
	if len(s.UpdateColumns) == 0 && len(overrides) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String(), args
	}

	sets := make([]string, 0, len(s.UpdateColumns)+len(overrides))
	for _, c := range s.UpdateColumns {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	for _, c := range overrides {
		o := s.Overrides[c]
		if o.bound {
			args = append(args, o.value)
			sets = append(sets, fmt.Sprintf("%s = $%d", c, len(args)))
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", c, o.expr))
	}
	fmt.Fprintf(&b, " DO UPDATE SET %s", strings.Join(sets, ", "))

	if len(s.UpdateColumns) > 0 {
		current := make([]string, len(s.UpdateColumns))
		incoming := make([]string, len(s.UpdateColumns))
		for i, c := range s.UpdateColumns {
			current[i] = "t." + c
			incoming[i] = "EXCLUDED." + c
		}
		fmt.Fprintf(&b, " WHERE (%s) IS DISTINCT FROM (%s)",
			strings.Join(current, ", "), strings.Join(incoming, ", "))
	}

	return b.String(), args
}
