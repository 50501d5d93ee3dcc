package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/septivank/utility-billing-service/internal/auth"
	"github.com/septivank/utility-billing-service/internal/db"
	"github.com/septivank/utility-billing-service/internal/logging"
	"github.com/septivank/utility-billing-service/internal/service"
	"github.com/septivank/utility-billing-service/internal/validator"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// Handler routes the billing API endpoints
type Handler struct {
	authenticator *auth.Authenticator
	billing       *service.BillingService
	payments      *service.PaymentService
	reports       *service.ReportService
	readings      *service.ReadingService
	logger        *zap.Logger
}

// NewHandler creates the API handler
func NewHandler(
	authenticator *auth.Authenticator,
	billing *service.BillingService,
	payments *service.PaymentService,
	reports *service.ReportService,
	readings *service.ReadingService,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		authenticator: authenticator,
		billing:       billing,
		payments:      payments,
		reports:       reports,
		readings:      readings,
		logger:        logger,
	}
}

// Routes assembles the full middleware-wrapped route table
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/v1/bills/generate", h.handleGenerateBills)
	mux.HandleFunc("/v1/payments", h.handlePayment)
	mux.HandleFunc("/v1/reports", h.handleReport)
	mux.HandleFunc("/v1/readings", h.handleReading)
	return withCORS(withRequestID(mux))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleGenerateBills(w http.ResponseWriter, r *http.Request) {
	reqLogger := h.requestLogger(r)
	var req validator.GenerateBillsRequest
	if !h.readBody(w, r, &req) {
		return
	}

	input, err := validator.ValidateGenerateBills(req)
	if err != nil {
		h.writeFailure(w, reqLogger, err)
		return
	}

	caller, err := h.authenticator.Resolve(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		h.writeFailure(w, reqLogger, err)
		return
	}

	bills, meterErrors, err := h.billing.GenerateBills(r.Context(), caller, input)
	if err != nil {
		h.writeFailure(w, reqLogger, err)
		return
	}
	if bills == nil {
		// Serialize an empty batch as [] rather than null
		bills = []db.Bill{}
	}

	response := map[string]any{
		"success": true,
		"message": fmt.Sprintf("Generated %d bills", len(bills)),
		"bills":   bills,
	}
	if len(meterErrors) > 0 {
		response["errors"] = meterErrors
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	reqLogger := h.requestLogger(r)
	var req validator.PaymentRequest
	if !h.readBody(w, r, &req) {
		return
	}

	input, err := validator.ValidatePayment(req)
	if err != nil {
		h.writeFailure(w, reqLogger, err)
		return
	}

	caller, err := h.authenticator.Resolve(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		h.writeFailure(w, reqLogger, err)
		return
	}

	txn, err := h.payments.ProcessPayment(r.Context(), caller, input)
	if err != nil {
		h.writeFailure(w, reqLogger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"message":     fmt.Sprintf("%s processed successfully", input.TransactionType),
		"transaction": txn,
	})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	reqLogger := h.requestLogger(r)
	var req validator.ReportRequest
	if !h.readBody(w, r, &req) {
		return
	}

	input, err := validator.ValidateReport(req)
	if err != nil {
		h.writeFailure(w, reqLogger, err)
		return
	}

	caller, err := h.authenticator.Resolve(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		h.writeFailure(w, reqLogger, err)
		return
	}

	report, audit, err := h.reports.GenerateReport(r.Context(), caller, input)
	if err != nil {
		h.writeFailure(w, reqLogger, err)
		return
	}

	response := map[string]any{
		"success": true,
		"message": fmt.Sprintf("%s report generated successfully", input.ReportType),
		"report":  report,
	}
	if audit != nil {
		response["report_id"] = audit.ID.String()
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) handleReading(w http.ResponseWriter, r *http.Request) {
	reqLogger := h.requestLogger(r)
	var req validator.ReadingRequest
	if !h.readBody(w, r, &req) {
		return
	}

	input, err := validator.ValidateReading(req)
	if err != nil {
		h.writeFailure(w, reqLogger, err)
		return
	}

	caller, err := h.authenticator.Resolve(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		h.writeFailure(w, reqLogger, err)
		return
	}

	reading, meter, err := h.readings.SubmitReading(r.Context(), caller, input)
	if err != nil {
		h.writeFailure(w, reqLogger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Meter reading processed successfully",
		"reading": reading,
		"meter":   meter,
	})
}

// readBody gates the method to POST and decodes the JSON body. It writes
// the error response itself and reports whether the handler should go on.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON payload: %v", err))
		return false
	}
	return true
}

func (h *Handler) requestLogger(r *http.Request) *zap.Logger {
	return logging.WithRequestID(h.logger, r.Header.Get(requestIDHeader))
}

func (h *Handler) writeFailure(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.Error(err), zap.Int("status", status))
	}
	writeError(w, status, err.Error())
}

func statusForError(err error) int {
	var validationErr *validator.ValidationError
	var missingRef *validator.MissingReferenceError
	var unsupportedType *validator.UnsupportedReportTypeError
	var notFound *service.NotFoundError

	switch {
	case errors.As(err, &validationErr),
		errors.As(err, &missingRef),
		errors.As(err, &unsupportedType),
		errors.Is(err, validator.ErrInvalidTransactionType):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
