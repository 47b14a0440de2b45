package db

import (
	"context"
	"fmt"
	"regexp"

	"github.com/uptrace/bun"

	"ms-boxoffice/internal/models"
)

// Op is a comparison a Filter applies to a column.
type Op string

const (
	OpEq  Op = "="
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

type Filter struct {
	Column string
	Op     Op
	Value  interface{}
}

// Query is a projected, filtered, ordered read of one sale stream table.
type Query struct {
	Table      string
	Columns    []string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

type DB struct {
	Bun *bun.DB
}

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkTable(table string) error {
	if !tableName.MatchString(table) {
		return fmt.Errorf("invalid table name %q", table)
	}
	return nil
}

func (q Query) validate() error {
	if err := checkTable(q.Table); err != nil {
		return err
	}
	for _, c := range q.Columns {
		if !models.IsColumn(c) {
			return fmt.Errorf("unknown column %q", c)
		}
	}
	for _, f := range q.Filters {
		if !models.IsColumn(f.Column) {
			return fmt.Errorf("unknown filter column %q", f.Column)
		}
		switch f.Op {
		case OpEq, OpGte, OpLt, OpLte:
		default:
			return fmt.Errorf("unsupported filter operator %q", f.Op)
		}
	}
	if q.OrderBy != "" && !models.IsColumn(q.OrderBy) {
		return fmt.Errorf("unknown order column %q", q.OrderBy)
	}
	if q.Limit < 0 {
		return fmt.Errorf("negative limit %d", q.Limit)
	}
	return nil
}

// InsertSale writes one row into table and returns it as stored.
func (d *DB) InsertSale(ctx context.Context, table string, sale models.SaleRecord) ([]models.SaleRecord, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	sale.ID = 0
	_, err := d.Bun.NewInsert().
		Model(&sale).
		ModelTableExpr("?", bun.Ident(table)).
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	return []models.SaleRecord{sale}, nil
}

// SelectSales runs q and returns the projected rows. Columns outside the
// projection are left zero.
func (d *DB) SelectSales(ctx context.Context, q Query) ([]models.SaleRecord, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	sales := []models.SaleRecord{}
	sel := d.Bun.NewSelect().
		Model(&sales).
		ModelTableExpr("? AS s", bun.Ident(q.Table))

	if len(q.Columns) > 0 {
		sel = sel.Column(q.Columns...)
	}
	for _, f := range q.Filters {
		sel = sel.Where("s.? "+string(f.Op)+" ?", bun.Ident(f.Column), f.Value)
	}
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		sel = sel.OrderExpr("s.? "+dir, bun.Ident(q.OrderBy))
	}
	if q.Limit > 0 {
		sel = sel.Limit(q.Limit)
	}

	if err := sel.Scan(ctx); err != nil {
		return nil, err
	}
	return sales, nil
}

// EnsureTable creates a sale stream table if it is missing. Production
// schemas come from migrations; this is for local and test databases.
func (d *DB) EnsureTable(ctx context.Context, table string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	_, err := d.Bun.NewCreateTable().
		Model((*models.SaleRecord)(nil)).
		ModelTableExpr("?", bun.Ident(table)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Ping checks that the store is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.Bun.PingContext(ctx)
}
