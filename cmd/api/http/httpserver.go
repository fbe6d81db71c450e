package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/invoices-service/cmd/api/invoice"
)

type ServerConfig struct {
	Port           int
	RequestTimeout time.Duration
	ExposeErrors   bool
}

func NewServer(config ServerConfig, h *InvoiceHandler) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", ping)
	mux.HandleFunc(invoice.ListingPath, h.invoices)
	mux.HandleFunc(invoice.ListingPath+"/", h.invoiceById)

	server := http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &server
}

/* Tests the http server connection.  */
func ping(w http.ResponseWriter, r *http.Request) {
	method := r.Method
	if method == http.MethodGet {
		w.WriteHeader(http.StatusNoContent)
		return
	} else {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
}
