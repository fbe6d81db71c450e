package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/invoices-service/cmd/api/invoice"
	"go.uber.org/zap"

	_ "github.com/golang-migrate/migrate/v4/source/file"

	_ "github.com/lib/pq"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	exc DBTX
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:  db,
		exc: db,
	}
}

/* Connects to the database trought a connection string and returns a pointer to a valid DB object (*sql.DB). */
func ConnectDb(ctx context.Context, connStr string, logger *zap.Logger) (*sql.DB, error) {
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting to db, openning: %w", err)
	}

	err = sqlDB.PingContext(ctx)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connecting to db, pingging: %w", err)
	}

	logger.Info("connected to database")
	return sqlDB, nil
}

func MigrationUp(store *Store, path string) error {
	driver, err := postgres.WithInstance(store.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", path),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	err = m.Up()
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}
	return nil
}

const invoiceColumns = `id, customer_id, amount, status, to_char(date, 'YYYY-MM-DD')`

func scanInvoice(row interface{ Scan(dest ...any) error }) (invoice.Invoice, error) {
	var inv invoice.Invoice
	var status string
	err := row.Scan(&inv.ID, &inv.CustomerID, &inv.Amount, &status, &inv.Date)
	inv.Status = invoice.Status(status)
	return inv, err
}

/* Stores the invoice into the database. */
func (store *Store) CreateInvoice(ctx context.Context, inv invoice.Invoice) error {
	sqlStatement := `
	INSERT INTO invoices (id, customer_id, amount, status, date)
	VALUES ($1, $2, $3, $4, $5)`
	_, err := store.exc.ExecContext(ctx, sqlStatement, inv.ID, inv.CustomerID, inv.Amount, string(inv.Status), inv.Date)
	if err != nil {
		return fmt.Errorf("storing invoice on db: %w", err)
	}
	return nil
}

/* Rewrites customer, amount and status of the invoice with inv.ID. The date column is not touched. */
func (store *Store) UpdateInvoice(ctx context.Context, inv invoice.Invoice) error {
	sqlStatement := `
	UPDATE invoices
	SET customer_id = $2, amount = $3, status = $4
	WHERE id = $1`
	result, err := store.exc.ExecContext(ctx, sqlStatement, inv.ID, inv.CustomerID, inv.Amount, string(inv.Status))
	if err != nil {
		return fmt.Errorf("updating invoice on db: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating invoice on db: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("updating invoice on db: %w", invoice.ErrResponseInvoiceNotFound)
	}
	return nil
}

func (store *Store) DeleteInvoice(ctx context.Context, id string) error {
	sqlStatement := `
	DELETE FROM invoices
	WHERE id = $1`
	_, err := store.exc.ExecContext(ctx, sqlStatement, id)
	if err != nil {
		return fmt.Errorf("deleting invoice from db: %w", err)
	}
	return nil
}

/* Searches an invoice in database based on ID and returns it if succeed. */
func (store *Store) GetInvoiceByID(ctx context.Context, id string) (invoice.Invoice, error) {
	sqlStatement := `SELECT ` + invoiceColumns + `
	FROM invoices
	WHERE id = $1`
	inv, err := scanInvoice(store.exc.QueryRowContext(ctx, sqlStatement, id))
	if err != nil {
		switch err {
		case sql.ErrNoRows:
			return invoice.Invoice{}, fmt.Errorf("searching by ID: %w", invoice.ErrResponseInvoiceNotFound)
		default:
			return invoice.Invoice{}, fmt.Errorf("searching by ID: %w", err)
		}
	}
	return inv, nil
}

const filterClause = `
	WHERE customer_id::text ILIKE $1
	OR status ILIKE $1
	OR amount::text ILIKE $1
	OR to_char(date, 'YYYY-MM-DD') ILIKE $1`

func likePattern(query string) string {
	if query == "" {
		return "%"
	}
	return fmt.Sprint("%", query, "%")
}

/* Returns one page of the invoices matching the query, newest first. */
func (store *Store) ListInvoices(ctx context.Context, query string, page, pageSize int) ([]invoice.Invoice, error) {
	limit := pageSize
	offset := (page - 1) * pageSize

	sqlStatement := `SELECT ` + invoiceColumns + `
	FROM invoices` + filterClause + `
	ORDER BY date DESC, id ASC
	LIMIT $2 OFFSET $3`

	rows, err := store.exc.QueryContext(ctx, sqlStatement, likePattern(query), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing invoices from db: %w", err)
	}
	defer rows.Close()

	invoices := []invoice.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("listing invoices from db: %w", err)
		}
		invoices = append(invoices, inv)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("listing invoices from db: %w", err)
	}
	return invoices, nil
}

/* Counts how many rows in db fit the query. */
func (store *Store) ListInvoicesTotals(ctx context.Context, query string) (int, error) {
	sqlStatement := `SELECT COUNT(*) FROM invoices` + filterClause

	var count int
	err := store.exc.QueryRowContext(ctx, sqlStatement, likePattern(query)).Scan(&count)
	if err != nil {
		return count, fmt.Errorf("counting invoices from db: %w", err)
	}
	return count, nil
}

var _ invoice.Repository = (*Store)(nil)
