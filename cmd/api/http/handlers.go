package http

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/invoices-service/cmd/api/invoice"
	"github.com/invoices-service/cmd/api/pagecache"
	"go.uber.org/zap"
)

const maxFormMemory = 1 << 20

// PageCache holds rendered listing pages. See pagecache.Cache.
type PageCache interface {
	Get(key string) ([]byte, bool)
	Generation(path string) uint64
	Put(key string, gen uint64, page []byte) bool
}

type InvoiceHandler struct {
	invoiceService invoice.ServiceAPI
	pages          PageCache
	logger         *zap.Logger
	requestTimeout time.Duration
	exposeErrors   bool
}

func NewInvoiceHandler(invoiceService invoice.ServiceAPI, pages PageCache, logger *zap.Logger, config ServerConfig) *InvoiceHandler {
	return &InvoiceHandler{
		invoiceService: invoiceService,
		pages:          pages,
		logger:         logger,
		requestTimeout: config.RequestTimeout,
		exposeErrors:   config.ExposeErrors,
	}
}

func (h *InvoiceHandler) withTimeout(r *http.Request) (*http.Request, context.CancelFunc) {
	if h.requestTimeout <= 0 {
		return r, func() {}
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	return r.WithContext(ctx), cancel
}

/* Addresses a call to "/dashboard/invoices" according to the requested action.  */
func (h *InvoiceHandler) invoices(w http.ResponseWriter, r *http.Request) {
	r, cancel := h.withTimeout(r)
	defer cancel()

	switch r.Method {
	case http.MethodGet:
		h.listInvoices(w, r)
		return
	case http.MethodPost:
		h.createInvoice(w, r)
		return
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
}

/* Addresses a call to "/dashboard/invoices/(expected id here)" according to the requested action.  */
func (h *InvoiceHandler) invoiceById(w http.ResponseWriter, r *http.Request) {
	r, cancel := h.withTimeout(r)
	defer cancel()

	id, deleteAction, err := isolateId(w, r)
	if err != nil {
		return
	}

	if deleteAction {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.deleteInvoice(w, r, id)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getInvoiceById(w, r, id)
		return
	case http.MethodPost, http.MethodPut:
		h.updateInvoice(w, r, id)
		return
	case http.MethodDelete:
		h.deleteInvoice(w, r, id)
		return
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
}

/* Validates the submitted form, then stores it as a new invoice. */
func (h *InvoiceHandler) createInvoice(w http.ResponseWriter, r *http.Request) {
	form, err := parseInvoiceForm(r)
	if err != nil {
		h.logger.Info("unreadable invoice form", zap.Error(err))
		responseJSON(w, http.StatusBadRequest, invoice.ErrResponse{
			Code:    invoice.ErrResponseInvalidForm.Code,
			Message: invoice.ErrResponseInvalidForm.Message + err.Error(),
		})
		return
	}

	result := h.invoiceService.CreateInvoice(r.Context(), form)
	h.writeResult(w, r, result)
}

/* Validates the submitted form, then updates the asked invoice. */
func (h *InvoiceHandler) updateInvoice(w http.ResponseWriter, r *http.Request, id string) {
	form, err := parseInvoiceForm(r)
	if err != nil {
		h.logger.Info("unreadable invoice form", zap.String("invoice_id", id), zap.Error(err))
		responseJSON(w, http.StatusBadRequest, invoice.ErrResponse{
			Code:    invoice.ErrResponseInvalidForm.Code,
			Message: invoice.ErrResponseInvalidForm.Message + err.Error(),
		})
		return
	}

	result := h.invoiceService.UpdateInvoice(r.Context(), id, form)
	h.writeResult(w, r, result)
}

func (h *InvoiceHandler) deleteInvoice(w http.ResponseWriter, r *http.Request, id string) {
	result := h.invoiceService.DeleteInvoice(r.Context(), id)
	h.writeResult(w, r, result)
}

/* Returns the invoice with that specific ID. */
func (h *InvoiceHandler) getInvoiceById(w http.ResponseWriter, r *http.Request, id string) {
	returned, err := h.invoiceService.GetInvoice(r.Context(), id)
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	responseJSON(w, http.StatusOK, invoiceToResponse(returned))
}

/* Returns a page of the stored invoices, from the page cache when it holds one. */
func (h *InvoiceHandler) listInvoices(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, pageSize, valid := extractPageParams(query)
	if !valid {
		responseJSON(w, http.StatusBadRequest, invoice.ErrResponseQueryPageInvalid)
		return
	}
	filter := strings.TrimSpace(query.Get("query"))

	key := pagecache.Key(invoice.ListingPath, listingQuery(filter, page, pageSize))
	if h.pages != nil {
		if cached, ok := h.pages.Get(key); ok {
			w.Header().Set("x-cache", "HIT")
			writeJSONBytes(w, http.StatusOK, cached)
			return
		}
	}

	// Read before rendering, so an invalidation racing with this request wins.
	var gen uint64
	if h.pages != nil {
		gen = h.pages.Generation(invoice.ListingPath)
	}

	paged, err := h.invoiceService.ListInvoices(r.Context(), invoice.ListInvoicesRequest{
		Query:    filter,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.handleError(err, w, r)
		return
	}

	body, err := json.Marshal(pagedInvoicesToResponse(paged))
	if err != nil {
		h.logger.Error("encoding invoices page", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	body = append(body, '\n')

	if h.pages != nil {
		h.pages.Put(key, gen, body)
	}
	w.Header().Set("x-cache", "MISS")
	writeJSONBytes(w, http.StatusOK, body)
}

/* Acts on the outcome of a form operation: follows the redirect, or reports the failure state. */
func (h *InvoiceHandler) writeResult(w http.ResponseWriter, r *http.Request, result invoice.Result) {
	switch result.Kind {
	case invoice.Redirected:
		http.Redirect(w, r, result.Path, http.StatusSeeOther)
		return
	case invoice.Completed:
		w.WriteHeader(http.StatusNoContent)
		return
	}

	state := result.State
	status := stateStatus(state)
	if status >= http.StatusInternalServerError {
		h.logger.Error(state.Message, zap.Int("status", status), zap.Error(state.Err))
	}

	responseJSON(w, status, h.stateToResponse(state))
}

func stateStatus(state invoice.State) int {
	switch {
	case len(state.Errors) > 0:
		return http.StatusBadRequest
	case errors.Is(state.Err, context.DeadlineExceeded), errors.Is(state.Err, context.Canceled):
		return http.StatusGatewayTimeout
	case errors.Is(state.Err, invoice.ErrResponseInvoiceNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

/* Maps a service error into its http status and body. */
func (h *InvoiceHandler) handleError(err error, w http.ResponseWriter, r *http.Request) {
	var errResponse invoice.ErrResponse
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.logger.Warn("request timed out", zap.String("path", r.URL.Path), zap.Error(err))
		responseJSON(w, http.StatusGatewayTimeout, invoice.ErrResponse{
			Code:    invoice.ErrResponseRequestTimeout.Code,
			Message: invoice.ErrResponseRequestTimeout.Message + " " + err.Error(),
		})
	case errors.Is(err, invoice.ErrResponseInvoiceNotFound):
		responseJSON(w, http.StatusNotFound, invoice.ErrResponseInvoiceNotFound)
	case errors.Is(err, invoice.ErrResponseFromRespository):
		h.logger.Error("repository failure", zap.String("path", r.URL.Path), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
	case errors.As(err, &errResponse):
		responseJSON(w, http.StatusBadRequest, errResponse)
	default:
		h.logger.Error("unexpected failure", zap.String("path", r.URL.Path), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

/* Reads the invoice form from an urlencoded or multipart body. A missing field reads as "". */
func parseInvoiceForm(r *http.Request) (invoice.Form, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("content-type"))
	var err error
	if mediaType == "multipart/form-data" {
		err = r.ParseMultipartForm(maxFormMemory)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		return invoice.Form{}, err
	}

	return invoice.Form{
		CustomerID: r.PostForm.Get(invoice.FieldCustomerID),
		Amount:     r.PostForm.Get(invoice.FieldAmount),
		Status:     r.PostForm.Get(invoice.FieldStatus),
	}, nil
}

/* Isolates the ID from the URL, and whether the path asks for the delete action. */
func isolateId(w http.ResponseWriter, r *http.Request) (id string, deleteAction bool, err error) {
	justId, _ := strings.CutPrefix(r.URL.Path, invoice.ListingPath+"/")
	justId, deleteAction = strings.CutSuffix(justId, "/delete")
	if justId == "" || strings.Contains(justId, "/") {
		responseJSON(w, http.StatusBadRequest, invoice.ErrResponseIdInvalidFormat)
		return "", false, invoice.ErrResponseIdInvalidFormat
	}
	return justId, deleteAction, nil
}

type StateResponse struct {
	Message string              `json:"message"`
	Errors  invoice.FieldErrors `json:"errors"`
	Error   string              `json:"error,omitempty"`
}

func (h *InvoiceHandler) stateToResponse(state invoice.State) StateResponse {
	fieldErrors := state.Errors
	if fieldErrors == nil {
		fieldErrors = invoice.FieldErrors{}
	}
	resp := StateResponse{Message: state.Message, Errors: fieldErrors}
	if h.exposeErrors && state.Err != nil {
		resp.Error = state.Err.Error()
	}
	return resp
}

type InvoiceResponse struct {
	ID          string `json:"id"`
	CustomerID  string `json:"customer_id"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`
	Date        string `json:"date"`
}

/*Copy the fields of an invoice object to an http layer struct with json tags*/
func invoiceToResponse(i invoice.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:          i.ID,
		CustomerID:  i.CustomerID,
		Amount:      invoice.FromCents(i.Amount).StringFixed(2),
		AmountCents: i.Amount,
		Status:      string(i.Status),
		Date:        i.Date,
	}
}

type PageOfInvoicesResponse struct {
	PageCurrent int               `json:"page_current"`
	PageTotal   int               `json:"page_total"`
	PageSize    int               `json:"page_size"`
	ItemsTotal  int               `json:"items_total"`
	Results     []InvoiceResponse `json:"results"`
}

/*Copy the fields of a PagedInvoices object to an http layer struct with json tags*/
func pagedInvoicesToResponse(page invoice.PagedInvoices) PageOfInvoicesResponse {
	results := []InvoiceResponse{}
	for _, inv := range page.Results {
		results = append(results, invoiceToResponse(inv))
	}

	return PageOfInvoicesResponse{
		PageCurrent: page.PageCurrent,
		PageTotal:   page.PageTotal,
		PageSize:    page.PageSize,
		ItemsTotal:  page.ItemsTotal,
		Results:     results,
	}
}

/*Writes a JSON response into a http.ResponseWriter. */
func responseJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSONBytes(w, status, append(data, '\n'))
}

func writeJSONBytes(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// Canonical form of the listing parameters, so equivalent queries share one cache entry.
func listingQuery(filter string, page, pageSize int) string {
	values := url.Values{}
	if filter != "" {
		values.Set("query", filter)
	}
	values.Set("page", strconv.Itoa(page))
	values.Set("page_size", strconv.Itoa(pageSize))
	return values.Encode()
}

/*Validates and prepares the extractPageParams parameters of the query.*/
func extractPageParams(query url.Values) (page, pageSize int, valid bool) {
	var err error
	pageStr := query.Get("page") //Convert page value to int and set default to 1.
	if pageStr == "" {
		page = 1
	} else {
		page, err = strconv.Atoi(pageStr)
		if err != nil {
			return 0, 0, false
		}
		if page <= 0 {
			return 0, 0, false
		}
	}

	pageSizeStr := query.Get("page_size") //Convert page_size value to int and set default to 10.
	if pageSizeStr == "" {
		pageSize = 10
	} else {
		pageSize, err = strconv.Atoi(pageSizeStr)
		if err != nil {
			return 0, 0, false
		}
		if !(0 < pageSize && pageSize < 31) {
			return 0, 0, false
		}
	}

	return page, pageSize, true
}
