package inmemory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-memdb"
	"github.com/invoices-service/cmd/api/invoice"
)

const invoicesTable = "invoices"

type InMemoryStore struct {
	db *memdb.MemDB
}

func NewInMemoryStore() (*InMemoryStore, error) {
	// Define the schema
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			invoicesTable: {
				Name: invoicesTable,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"customer_id": {
						Name:         "customer_id",
						Unique:       false,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "CustomerID"},
					},
				},
			},
		},
	}

	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("validating in-memory schema: %w", err)
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize in-memory database: %w", err)
	}
	return &InMemoryStore{db: db}, nil
}

// storedInvoice is the row kept in memdb. Status is held as a plain string so
// the record does not depend on the domain type.
type storedInvoice struct {
	ID         string
	CustomerID string
	Amount     int64
	Status     string
	Date       string
}

func toStored(inv invoice.Invoice) storedInvoice {
	return storedInvoice{
		ID:         inv.ID,
		CustomerID: inv.CustomerID,
		Amount:     inv.Amount,
		Status:     string(inv.Status),
		Date:       inv.Date,
	}
}

func fromStored(s storedInvoice) invoice.Invoice {
	return invoice.Invoice{
		ID:         s.ID,
		CustomerID: s.CustomerID,
		Amount:     s.Amount,
		Status:     invoice.Status(s.Status),
		Date:       s.Date,
	}
}

func (store *InMemoryStore) CreateInvoice(ctx context.Context, inv invoice.Invoice) error {
	txn := store.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(invoicesTable, "id", inv.ID)
	if err != nil {
		return fmt.Errorf("storing invoice on db: %w", err)
	}
	if raw != nil {
		return fmt.Errorf("storing invoice on db: duplicate id %q", inv.ID)
	}

	if err := txn.Insert(invoicesTable, toStored(inv)); err != nil {
		return fmt.Errorf("storing invoice on db: %w", err)
	}

	txn.Commit()
	return nil
}

func (store *InMemoryStore) UpdateInvoice(ctx context.Context, inv invoice.Invoice) error {
	txn := store.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(invoicesTable, "id", inv.ID)
	if err != nil {
		return fmt.Errorf("updating invoice on db: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("updating invoice on db: %w", invoice.ErrResponseInvoiceNotFound)
	}

	updated := raw.(storedInvoice)
	updated.CustomerID = inv.CustomerID
	updated.Amount = inv.Amount
	updated.Status = string(inv.Status)
	//ID and Date will not change

	if err := txn.Insert(invoicesTable, updated); err != nil {
		return fmt.Errorf("updating invoice on db: %w", err)
	}

	txn.Commit()
	return nil
}

func (store *InMemoryStore) DeleteInvoice(ctx context.Context, id string) error {
	txn := store.db.Txn(true)
	defer txn.Abort()

	if _, err := txn.DeleteAll(invoicesTable, "id", id); err != nil {
		return fmt.Errorf("deleting invoice from db: %w", err)
	}

	txn.Commit()
	return nil
}

func (store *InMemoryStore) GetInvoiceByID(ctx context.Context, id string) (invoice.Invoice, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(invoicesTable, "id", id)
	if err != nil {
		return invoice.Invoice{}, fmt.Errorf("searching by ID: %w", err)
	}
	if raw == nil {
		return invoice.Invoice{}, fmt.Errorf("searching by ID: %w", invoice.ErrResponseInvoiceNotFound)
	}

	return fromStored(raw.(storedInvoice)), nil
}

func (store *InMemoryStore) ListInvoices(ctx context.Context, query string, page, pageSize int) ([]invoice.Invoice, error) {
	invoices, err := store.matching(query)
	if err != nil {
		return nil, fmt.Errorf("listing invoices from db: %w", err)
	}

	sortInvoices(invoices)

	// Apply pagination
	start := (page - 1) * pageSize
	if start >= len(invoices) {
		return []invoice.Invoice{}, nil
	}
	end := start + pageSize
	if end > len(invoices) {
		end = len(invoices)
	}

	return invoices[start:end], nil
}

func (store *InMemoryStore) ListInvoicesTotals(ctx context.Context, query string) (int, error) {
	invoices, err := store.matching(query)
	if err != nil {
		return 0, fmt.Errorf("counting invoices from db: %w", err)
	}
	return len(invoices), nil
}

func (store *InMemoryStore) matching(query string) ([]invoice.Invoice, error) {
	txn := store.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(invoicesTable, "id")
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(query)
	invoices := []invoice.Invoice{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		s := obj.(storedInvoice)
		if query != "" && !matches(s, query) {
			continue
		}
		invoices = append(invoices, fromStored(s))
	}
	return invoices, nil
}

// Same columns the Postgres store filters on.
func matches(s storedInvoice, query string) bool {
	for _, field := range []string{s.CustomerID, s.Status, strconv.FormatInt(s.Amount, 10), s.Date} {
		if strings.Contains(strings.ToLower(field), query) {
			return true
		}
	}
	return false
}

// Newest date first, ties broken by id.
func sortInvoices(invoices []invoice.Invoice) {
	sort.Slice(invoices, func(i, j int) bool {
		if invoices[i].Date != invoices[j].Date {
			return invoices[i].Date > invoices[j].Date
		}
		return invoices[i].ID < invoices[j].ID
	})
}

var _ invoice.Repository = (*InMemoryStore)(nil)
