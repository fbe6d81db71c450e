package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

//go:generate mockgen -source=service.go -destination=mocks/mock_service.go -package=mocks

type ServiceAPI interface {
	CreateInvoice(ctx context.Context, form Form) Result
	UpdateInvoice(ctx context.Context, id string, form Form) Result
	DeleteInvoice(ctx context.Context, id string) Result
	GetInvoice(ctx context.Context, id string) (Invoice, error)
	ListInvoices(ctx context.Context, req ListInvoicesRequest) (PagedInvoices, error)
}

type Repository interface {
	CreateInvoice(ctx context.Context, inv Invoice) error
	UpdateInvoice(ctx context.Context, inv Invoice) error
	DeleteInvoice(ctx context.Context, id string) error
	GetInvoiceByID(ctx context.Context, id string) (Invoice, error)
	ListInvoices(ctx context.Context, query string, page, pageSize int) ([]Invoice, error)
	ListInvoicesTotals(ctx context.Context, query string) (int, error)
}

// DefaultInvalidationTimeout bounds the invalidators run after a write.
const DefaultInvalidationTimeout = 2 * time.Second

type Service struct {
	repo              Repository
	cache             Invalidator
	logger            *zap.Logger
	now               func() time.Time
	invalidateTimeout time.Duration
}

type Option func(*Service)

// WithClock replaces the clock used to stamp the issue date of new invoices.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithInvalidationTimeout sets how long the invalidators may run after a write.
func WithInvalidationTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.invalidateTimeout = d
	}
}

func NewService(repo Repository, cache Invalidator, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:              repo,
		cache:             cache,
		logger:            logger,
		now:               time.Now,
		invalidateTimeout: DefaultInvalidationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

/* Validates the form, stores a new invoice dated today and sends the browser back to the listing. */
func (s *Service) CreateInvoice(ctx context.Context, form Form) Result {
	fields, err := Validate(form)
	if err != nil {
		return validationFailure(err, "Missing Fields. Failed to Create Invoice.")
	}

	inv := Invoice{
		ID:         uuid.New().String(),
		CustomerID: fields.CustomerID,
		Amount:     fields.Cents,
		Status:     fields.Status,
		Date:       DateOf(s.now()),
	}

	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		s.logger.Error("failed to create invoice",
			zap.String("customer_id", inv.CustomerID),
			zap.Error(err))
		return Failure(State{Message: "Failed to create invoice.", Err: err})
	}

	s.logger.Info("invoice created",
		zap.String("invoice_id", inv.ID),
		zap.Int64("amount", inv.Amount),
		zap.String("status", string(inv.Status)))

	s.invalidateListing(ctx)
	return Redirect(ListingPath)
}

/* Validates the form and rewrites customer, amount and status of an existing invoice. The id and the date are left as stored. */
func (s *Service) UpdateInvoice(ctx context.Context, id string, form Form) Result {
	fields, err := Validate(form)
	if err != nil {
		return validationFailure(err, "Missing Fields. Failed to Update Invoice.")
	}

	inv := Invoice{
		ID:         id,
		CustomerID: fields.CustomerID,
		Amount:     fields.Cents,
		Status:     fields.Status,
	}

	if err := s.repo.UpdateInvoice(ctx, inv); err != nil {
		s.logger.Error("failed to update invoice",
			zap.String("invoice_id", id),
			zap.Error(err))
		return Failure(State{Message: "Failed to update invoice.", Err: err})
	}

	s.logger.Info("invoice updated",
		zap.String("invoice_id", id),
		zap.Int64("amount", inv.Amount),
		zap.String("status", string(inv.Status)))

	s.invalidateListing(ctx)
	return Redirect(ListingPath)
}

/* Removes an invoice. Deleting an unknown id is not an error. */
func (s *Service) DeleteInvoice(ctx context.Context, id string) Result {
	if err := s.repo.DeleteInvoice(ctx, id); err != nil {
		s.logger.Error("failed to delete invoice",
			zap.String("invoice_id", id),
			zap.Error(err))
		return Failure(State{Message: "Failed to delete invoice.", Err: err})
	}

	s.logger.Info("invoice deleted", zap.String("invoice_id", id))

	s.invalidateListing(ctx)
	return Done()
}

func (s *Service) GetInvoice(ctx context.Context, id string) (Invoice, error) {
	return s.repo.GetInvoiceByID(ctx, id)
}

type ListInvoicesRequest struct {
	Query    string
	Page     int
	PageSize int
}

type PagedInvoices struct {
	PageCurrent int
	PageTotal   int
	PageSize    int
	ItemsTotal  int
	Results     []Invoice
}

/* Returns one page of the invoices matching the query, newest first. */
func (s *Service) ListInvoices(ctx context.Context, req ListInvoicesRequest) (PagedInvoices, error) {
	itemsTotal, err := s.repo.ListInvoicesTotals(ctx, req.Query)
	if err != nil {
		return PagedInvoices{}, repositoryError("ListInvoicesTotals", err)
	}
	if itemsTotal == 0 {
		return PagedInvoices{Results: []Invoice{}}, nil
	}

	pageTotal := itemsTotal / req.PageSize
	if itemsTotal%req.PageSize != 0 {
		pageTotal++
	}
	if req.Page > pageTotal {
		return PagedInvoices{}, ErrResponseQueryPageOutOfRange
	}

	results, err := s.repo.ListInvoices(ctx, req.Query, req.Page, req.PageSize)
	if err != nil {
		return PagedInvoices{}, repositoryError("ListInvoices", err)
	}

	return PagedInvoices{
		PageCurrent: req.Page,
		PageTotal:   pageTotal,
		PageSize:    req.PageSize,
		ItemsTotal:  itemsTotal,
		Results:     results,
	}, nil
}

// The write is already visible when this runs, so a failure here is only logged.
// Invalidators get their own budget, detached from what the write left of the request's.
func (s *Service) invalidateListing(ctx context.Context) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.invalidateTimeout)
	defer cancel()

	if err := s.cache.Invalidate(ctx, ListingPath); err != nil {
		s.logger.Warn("failed to invalidate cached listing",
			zap.String("path", ListingPath),
			zap.Error(err))
	}
}

func validationFailure(err error, message string) Result {
	var verr ValidationError
	if errors.As(err, &verr) {
		return Failure(State{Errors: verr.Fields, Message: message, Err: verr})
	}
	return Failure(State{Message: message, Err: err})
}

func repositoryError(call string, err error) error {
	return fmt.Errorf("%w on call to %s: %w", ErrResponseFromRespository, call, err)
}
