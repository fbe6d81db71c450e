package invoice

type ErrResponse struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

func (e ErrResponse) Error() string {
	return e.Message
}

var ErrResponseInvoiceNotFound = ErrResponse{101, "invoice not found"}
var ErrResponseIdInvalidFormat = ErrResponse{103, "the endpoint is not a valid invoice path. Must be /dashboard/invoices/{id}"}
var ErrResponseQueryPageInvalid = ErrResponse{106, "query parameter 'page' must be an int starting in 1. 'page_size' must be an int beetween 1 and 30."}
var ErrResponseQueryPageOutOfRange = ErrResponse{107, "page out of range."}
var ErrResponseFromRespository = ErrResponse{108, "repository error"}
var ErrResponseRequestTimeout = ErrResponse{109, "error from context:"}
var ErrResponseInvalidForm = ErrResponse{110, "invalid form request."}
