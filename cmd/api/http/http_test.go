package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	invoicehttp "github.com/invoices-service/cmd/api/http"
	"github.com/invoices-service/cmd/api/inmemory"
	"github.com/invoices-service/cmd/api/invoice"
	invoicemock "github.com/invoices-service/cmd/api/invoice/mocks"
	"github.com/invoices-service/cmd/api/pagecache"
	"github.com/matryer/is"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

var serverConfig = invoicehttp.ServerConfig{Port: 8080, RequestTimeout: 2 * time.Second}

func newServer(t *testing.T, config invoicehttp.ServerConfig) (*http.Server, *invoicemock.MockServiceAPI, *pagecache.Cache) {
	ctrl := gomock.NewController(t)
	mockAPI := invoicemock.NewMockServiceAPI(ctrl)
	pages, err := pagecache.New(16, zap.NewNop())
	if err != nil {
		log.Fatalln(err)
	}
	handler := invoicehttp.NewInvoiceHandler(mockAPI, pages, zap.NewNop(), config)
	return invoicehttp.NewServer(config, handler), mockAPI, pages
}

func formRequest(method, target string, values url.Values) *http.Request {
	request, _ := http.NewRequest(method, target, strings.NewReader(values.Encode()))
	request.Header.Set("content-type", "application/x-www-form-urlencoded")
	return request
}

func validValues() url.Values {
	return url.Values{
		"customerId": {"c1"},
		"amount":     {"15.50"},
		"status":     {"pending"},
	}
}

func TestPing(t *testing.T) {
	is := is.New(t)
	server, _, _ := newServer(t, serverConfig)

	request, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	response := httptest.NewRecorder()
	server.Handler.ServeHTTP(response, request)

	is.Equal(response.Code, http.StatusNoContent)
}

func TestCreateInvoice(t *testing.T) {

	t.Run("creates an invoice and redirects to the listing", func(t *testing.T) {
		is := is.New(t)
		server, mockAPI, _ := newServer(t, serverConfig)

		mockAPI.EXPECT().
			CreateInvoice(gomock.Any(), invoice.Form{CustomerID: "c1", Amount: "15.50", Status: "pending"}).
			Return(invoice.Redirect(invoice.ListingPath))

		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, formRequest(http.MethodPost, "/dashboard/invoices", validValues()))

		is.Equal(response.Code, http.StatusSeeOther)
		is.Equal(response.Header().Get("Location"), "/dashboard/invoices")
	})

	t.Run("missing fields are read as empty strings", func(t *testing.T) {
		is := is.New(t)
		server, mockAPI, _ := newServer(t, serverConfig)

		mockAPI.EXPECT().
			CreateInvoice(gomock.Any(), invoice.Form{}).
			Return(invoice.Failure(invoice.State{
				Message: "Missing Fields. Failed to Create Invoice.",
				Errors: invoice.FieldErrors{
					"customerId": {"Please select a customer."},
					"amount":     {"Please enter an amount greater than $0."},
					"status":     {"Please select an invoice status."},
				},
			}))

		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, formRequest(http.MethodPost, "/dashboard/invoices", url.Values{}))

		body, _ := io.ReadAll(response.Result().Body)
		is.Equal(response.Code, http.StatusBadRequest)
		is.Equal(string(body), `{"message":"Missing Fields. Failed to Create Invoice.","errors":{"amount":["Please enter an amount greater than $0."],"customerId":["Please select a customer."],"status":["Please select an invoice status."]}}`+"\n")
	})

	t.Run("store failure hides the cause by default", func(t *testing.T) {
		is := is.New(t)
		server, mockAPI, _ := newServer(t, serverConfig)

		mockAPI.EXPECT().
			CreateInvoice(gomock.Any(), gomock.Any()).
			Return(invoice.Failure(invoice.State{Message: "Failed to create invoice.", Err: errors.New("connection refused")}))

		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, formRequest(http.MethodPost, "/dashboard/invoices", validValues()))

		body, _ := io.ReadAll(response.Result().Body)
		is.Equal(response.Code, http.StatusInternalServerError)
		is.Equal(string(body), `{"message":"Failed to create invoice.","errors":{}}`+"\n")
	})

	t.Run("store failure exposes the cause when configured", func(t *testing.T) {
		is := is.New(t)
		config := serverConfig
		config.ExposeErrors = true
		server, mockAPI, _ := newServer(t, config)

		mockAPI.EXPECT().
			CreateInvoice(gomock.Any(), gomock.Any()).
			Return(invoice.Failure(invoice.State{Message: "Failed to create invoice.", Err: errors.New("connection refused")}))

		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, formRequest(http.MethodPost, "/dashboard/invoices", validValues()))

		body, _ := io.ReadAll(response.Result().Body)
		is.Equal(response.Code, http.StatusInternalServerError)
		is.Equal(string(body), `{"message":"Failed to create invoice.","errors":{},"error":"connection refused"}`+"\n")
	})

	t.Run("expected context timeout error", func(t *testing.T) {
		is := is.New(t)
		config := serverConfig
		config.RequestTimeout = 5 * time.Millisecond
		server, mockAPI, _ := newServer(t, config)

		mockAPI.EXPECT().
			CreateInvoice(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, form invoice.Form) invoice.Result {
				<-ctx.Done()
				return invoice.Failure(invoice.State{Message: "Failed to create invoice.", Err: ctx.Err()})
			})

		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, formRequest(http.MethodPost, "/dashboard/invoices", validValues()))

		is.Equal(response.Code, http.StatusGatewayTimeout)
	})

	t.Run("unsupported method", func(t *testing.T) {
		is := is.New(t)
		server, _, _ := newServer(t, serverConfig)

		request, _ := http.NewRequest(http.MethodPatch, "/dashboard/invoices", nil)
		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, request)

		is.Equal(response.Code, http.StatusMethodNotAllowed)
	})
}

func TestUpdateInvoice(t *testing.T) {

	t.Run("updates an invoice with PUT and with POST", func(t *testing.T) {
		is := is.New(t)
		server, mockAPI, _ := newServer(t, serverConfig)

		mockAPI.EXPECT().
			UpdateInvoice(gomock.Any(), "i1", invoice.Form{CustomerID: "c1", Amount: "15.50", Status: "pending"}).
			Return(invoice.Redirect(invoice.ListingPath)).
			Times(2)

		for _, method := range []string{http.MethodPut, http.MethodPost} {
			response := httptest.NewRecorder()
			server.Handler.ServeHTTP(response, formRequest(method, "/dashboard/invoices/i1", validValues()))

			is.Equal(response.Code, http.StatusSeeOther)
			is.Equal(response.Header().Get("Location"), "/dashboard/invoices")
		}
	})

	t.Run("updating a non existing invoice should return a not found error", func(t *testing.T) {
		is := is.New(t)
		server, mockAPI, _ := newServer(t, serverConfig)

		mockAPI.EXPECT().
			UpdateInvoice(gomock.Any(), "missing", gomock.Any()).
			Return(invoice.Failure(invoice.State{
				Message: "Failed to update invoice.",
				Err:     fmt.Errorf("updating invoice on db: %w", invoice.ErrResponseInvoiceNotFound),
			}))

		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, formRequest(http.MethodPut, "/dashboard/invoices/missing", validValues()))

		body, _ := io.ReadAll(response.Result().Body)
		is.Equal(response.Code, http.StatusNotFound)
		is.Equal(string(body), `{"message":"Failed to update invoice.","errors":{}}`+"\n")
	})

	t.Run("expected invalid id error", func(t *testing.T) {
		is := is.New(t)
		server, _, _ := newServer(t, serverConfig)

		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, formRequest(http.MethodPut, "/dashboard/invoices/a/b", validValues()))

		body, _ := io.ReadAll(response.Result().Body)
		is.Equal(response.Code, http.StatusBadRequest)
		is.Equal(string(body), `{"error_code":103,"error_message":"the endpoint is not a valid invoice path. Must be /dashboard/invoices/{id}"}`+"\n")
	})
}

func TestDeleteInvoice(t *testing.T) {

	t.Run("deletes with DELETE and with the form action", func(t *testing.T) {
		is := is.New(t)
		server, mockAPI, _ := newServer(t, serverConfig)

		mockAPI.EXPECT().DeleteInvoice(gomock.Any(), "i1").Return(invoice.Done()).Times(2)

		request, _ := http.NewRequest(http.MethodDelete, "/dashboard/invoices/i1", nil)
		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, request)
		is.Equal(response.Code, http.StatusNoContent)

		request, _ = http.NewRequest(http.MethodPost, "/dashboard/invoices/i1/delete", nil)
		response = httptest.NewRecorder()
		server.Handler.ServeHTTP(response, request)
		is.Equal(response.Code, http.StatusNoContent)
	})

	t.Run("the delete action only accepts POST", func(t *testing.T) {
		is := is.New(t)
		server, _, _ := newServer(t, serverConfig)

		request, _ := http.NewRequest(http.MethodGet, "/dashboard/invoices/i1/delete", nil)
		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, request)

		is.Equal(response.Code, http.StatusMethodNotAllowed)
	})

	t.Run("store failure is reported", func(t *testing.T) {
		is := is.New(t)
		server, mockAPI, _ := newServer(t, serverConfig)

		mockAPI.EXPECT().
			DeleteInvoice(gomock.Any(), "i1").
			Return(invoice.Failure(invoice.State{Message: "Failed to delete invoice.", Err: errors.New("disk full")}))

		request, _ := http.NewRequest(http.MethodDelete, "/dashboard/invoices/i1", nil)
		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, request)

		body, _ := io.ReadAll(response.Result().Body)
		is.Equal(response.Code, http.StatusInternalServerError)
		is.Equal(string(body), `{"message":"Failed to delete invoice.","errors":{}}`+"\n")
	})
}

func TestGetInvoice(t *testing.T) {

	t.Run("returns the invoice", func(t *testing.T) {
		is := is.New(t)
		server, mockAPI, _ := newServer(t, serverConfig)

		mockAPI.EXPECT().GetInvoice(gomock.Any(), "i1").Return(invoice.Invoice{
			ID: "i1", CustomerID: "c1", Amount: 1550, Status: invoice.StatusPending, Date: "2026-03-15",
		}, nil)

		request, _ := http.NewRequest(http.MethodGet, "/dashboard/invoices/i1", nil)
		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, request)

		body, _ := io.ReadAll(response.Result().Body)
		is.Equal(response.Code, http.StatusOK)
		is.Equal(string(body), `{"id":"i1","customer_id":"c1","amount":"15.50","amount_cents":1550,"status":"pending","date":"2026-03-15"}`+"\n")
	})

	t.Run("expected not found error", func(t *testing.T) {
		is := is.New(t)
		server, mockAPI, _ := newServer(t, serverConfig)

		mockAPI.EXPECT().GetInvoice(gomock.Any(), "ghost").Return(invoice.Invoice{}, fmt.Errorf("searching by ID: %w", invoice.ErrResponseInvoiceNotFound))

		request, _ := http.NewRequest(http.MethodGet, "/dashboard/invoices/ghost", nil)
		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, request)

		body, _ := io.ReadAll(response.Result().Body)
		is.Equal(response.Code, http.StatusNotFound)
		is.Equal(string(body), `{"error_code":101,"error_message":"invoice not found"}`+"\n")
	})
}

func TestListInvoices(t *testing.T) {

	t.Run("serves repeated listings from the cache until invalidated", func(t *testing.T) {
		is := is.New(t)
		server, mockAPI, pages := newServer(t, serverConfig)

		mockAPI.EXPECT().
			ListInvoices(gomock.Any(), invoice.ListInvoicesRequest{Query: "paid", Page: 1, PageSize: 10}).
			Return(invoice.PagedInvoices{
				PageCurrent: 1, PageTotal: 1, PageSize: 10, ItemsTotal: 1,
				Results: []invoice.Invoice{{ID: "i1", CustomerID: "c1", Amount: 100, Status: invoice.StatusPaid, Date: "2026-01-01"}},
			}, nil).
			Times(2)

		get := func(target string) *httptest.ResponseRecorder {
			request, _ := http.NewRequest(http.MethodGet, target, nil)
			response := httptest.NewRecorder()
			server.Handler.ServeHTTP(response, request)
			return response
		}

		first := get("/dashboard/invoices?query=paid")
		is.Equal(first.Code, http.StatusOK)
		is.Equal(first.Header().Get("x-cache"), "MISS")

		second := get("/dashboard/invoices?page_size=10&query=paid&page=1")
		is.Equal(second.Code, http.StatusOK)
		is.Equal(second.Header().Get("x-cache"), "HIT")
		is.Equal(second.Body.String(), first.Body.String())

		is.NoErr(pages.Invalidate(context.Background(), invoice.ListingPath))

		third := get("/dashboard/invoices?query=paid")
		is.Equal(third.Header().Get("x-cache"), "MISS")

		var page invoicehttp.PageOfInvoicesResponse
		is.NoErr(json.Unmarshal(third.Body.Bytes(), &page))
		is.Equal(page.ItemsTotal, 1)
		is.Equal(page.Results[0].Amount, "1.00")
	})

	t.Run("expected invalid page error", func(t *testing.T) {
		is := is.New(t)
		server, _, _ := newServer(t, serverConfig)

		request, _ := http.NewRequest(http.MethodGet, "/dashboard/invoices?page_size=31", nil)
		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, request)

		is.Equal(response.Code, http.StatusBadRequest)
	})

	t.Run("page out of range is a bad request and is not cached", func(t *testing.T) {
		is := is.New(t)
		server, mockAPI, pages := newServer(t, serverConfig)

		mockAPI.EXPECT().
			ListInvoices(gomock.Any(), invoice.ListInvoicesRequest{Page: 4, PageSize: 10}).
			Return(invoice.PagedInvoices{}, invoice.ErrResponseQueryPageOutOfRange)

		request, _ := http.NewRequest(http.MethodGet, "/dashboard/invoices?page=4", nil)
		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, request)

		body, _ := io.ReadAll(response.Result().Body)
		is.Equal(response.Code, http.StatusBadRequest)
		is.Equal(string(body), `{"error_code":107,"error_message":"page out of range."}`+"\n")

		_, cached := pages.Get(pagecache.Key(invoice.ListingPath, "page=4&page_size=10"))
		is.True(!cached)
	})
}

// Handlers, service, in-memory store and page cache wired together.
func TestInvoiceFormsEndToEnd(t *testing.T) {
	is := is.New(t)

	store, err := inmemory.NewInMemoryStore()
	is.NoErr(err)
	pages, err := pagecache.New(16, zap.NewNop())
	is.NoErr(err)
	service := invoice.NewService(store, invoice.Invalidators{pages}, zap.NewNop())
	server := invoicehttp.NewServer(serverConfig, invoicehttp.NewInvoiceHandler(service, pages, zap.NewNop(), serverConfig))

	list := func() invoicehttp.PageOfInvoicesResponse {
		request, _ := http.NewRequest(http.MethodGet, "/dashboard/invoices", nil)
		response := httptest.NewRecorder()
		server.Handler.ServeHTTP(response, request)
		is.Equal(response.Code, http.StatusOK)

		var page invoicehttp.PageOfInvoicesResponse
		is.NoErr(json.Unmarshal(response.Body.Bytes(), &page))
		return page
	}

	is.Equal(len(list().Results), 0)
	is.Equal(len(list().Results), 0) // cached

	response := httptest.NewRecorder()
	server.Handler.ServeHTTP(response, formRequest(http.MethodPost, "/dashboard/invoices", validValues()))
	is.Equal(response.Code, http.StatusSeeOther)

	page := list()
	is.Equal(len(page.Results), 1)
	created := page.Results[0]
	is.Equal(created.AmountCents, int64(1550))
	is.Equal(created.Status, "pending")

	response = httptest.NewRecorder()
	server.Handler.ServeHTTP(response, formRequest(http.MethodPut, "/dashboard/invoices/"+created.ID, url.Values{
		"customerId": {"c2"},
		"amount":     {"20"},
		"status":     {"paid"},
	}))
	is.Equal(response.Code, http.StatusSeeOther)

	page = list()
	is.Equal(page.Results[0].ID, created.ID)
	is.Equal(page.Results[0].Date, created.Date)
	is.Equal(page.Results[0].Amount, "20.00")
	is.Equal(page.Results[0].Status, "paid")

	request, _ := http.NewRequest(http.MethodDelete, "/dashboard/invoices/"+created.ID, nil)
	response = httptest.NewRecorder()
	server.Handler.ServeHTTP(response, request)
	is.Equal(response.Code, http.StatusNoContent)

	is.Equal(len(list().Results), 0)
}
