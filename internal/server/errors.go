package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/mizanlaw/mizan/internal/audit/domain"
	ratedomain "github.com/mizanlaw/mizan/internal/billingrate/domain"
	expensedomain "github.com/mizanlaw/mizan/internal/expense/domain"
	invoicedomain "github.com/mizanlaw/mizan/internal/invoice/domain"
	paymentdomain "github.com/mizanlaw/mizan/internal/payment/domain"
	retainerdomain "github.com/mizanlaw/mizan/internal/retainer/domain"
	timeentrydomain "github.com/mizanlaw/mizan/internal/timeentry/domain"
	timerdomain "github.com/mizanlaw/mizan/internal/timer/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case isUnauthorizedError(err):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isUnprocessableError(err):
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "unprocessable",
			Message: err.Error(),
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ratedomain.ErrInvalidRateType),
		errors.Is(err, ratedomain.ErrInvalidRate),
		errors.Is(err, ratedomain.ErrInvalidScope),
		errors.Is(err, ratedomain.ErrInvalidEffective),
		errors.Is(err, ratedomain.ErrInvalidID),
		errors.Is(err, timeentrydomain.ErrInvalidID),
		errors.Is(err, timeentrydomain.ErrInvalidDuration),
		errors.Is(err, timeentrydomain.ErrInvalidDescription),
		errors.Is(err, timeentrydomain.ErrInvalidPageToken),
		errors.Is(err, timeentrydomain.ErrReasonRequired),
		errors.Is(err, expensedomain.ErrInvalidID),
		errors.Is(err, expensedomain.ErrInvalidAmount),
		errors.Is(err, expensedomain.ErrInvalidMarkup),
		errors.Is(err, expensedomain.ErrInvalidDescription),
		errors.Is(err, expensedomain.ErrInvalidPageToken),
		errors.Is(err, expensedomain.ErrReasonRequired),
		errors.Is(err, invoicedomain.ErrInvalidID),
		errors.Is(err, invoicedomain.ErrInvalidItem),
		errors.Is(err, invoicedomain.ErrInvalidVATRate),
		errors.Is(err, invoicedomain.ErrInvalidPageToken),
		errors.Is(err, paymentdomain.ErrInvalidID),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidMethod),
		errors.Is(err, paymentdomain.ErrInvalidTarget),
		errors.Is(err, paymentdomain.ErrCurrencyMismatch),
		errors.Is(err, paymentdomain.ErrInvalidPageToken),
		errors.Is(err, retainerdomain.ErrInvalidID),
		errors.Is(err, retainerdomain.ErrInvalidClient),
		errors.Is(err, retainerdomain.ErrInvalidAmount),
		errors.Is(err, retainerdomain.ErrInvalidMinimum),
		errors.Is(err, retainerdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange):
		return true
	default:
		return false
	}
}

func isUnauthorizedError(err error) bool {
	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ratedomain.ErrInvalidLawyer),
		errors.Is(err, timeentrydomain.ErrInvalidLawyer),
		errors.Is(err, timerdomain.ErrInvalidLawyer),
		errors.Is(err, expensedomain.ErrInvalidLawyer),
		errors.Is(err, invoicedomain.ErrInvalidLawyer),
		errors.Is(err, paymentdomain.ErrInvalidLawyer),
		errors.Is(err, retainerdomain.ErrInvalidLawyer),
		errors.Is(err, auditdomain.ErrInvalidLawyer):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ratedomain.ErrNotFound),
		errors.Is(err, timeentrydomain.ErrEntryNotFound),
		errors.Is(err, timerdomain.ErrTimerNotFound),
		errors.Is(err, expensedomain.ErrExpenseNotFound),
		errors.Is(err, invoicedomain.ErrInvoiceNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, paymentdomain.ErrTargetNotFound),
		errors.Is(err, retainerdomain.ErrRetainerNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// Conflicts are lifecycle violations: the resource exists but is not in
// a state that accepts the request.
func isConflictError(err error) bool {
	switch {
	case errors.Is(err, timerdomain.ErrAlreadyRunning),
		errors.Is(err, timerdomain.ErrTimerNotRunning),
		errors.Is(err, timerdomain.ErrTimerNotPaused),
		errors.Is(err, timerdomain.ErrTimerBusy),
		errors.Is(err, timeentrydomain.ErrEntryInvoiced),
		errors.Is(err, timeentrydomain.ErrEntryApproved),
		errors.Is(err, timeentrydomain.ErrEntryNotDraft),
		errors.Is(err, expensedomain.ErrExpenseInvoiced),
		errors.Is(err, expensedomain.ErrExpenseApproved),
		errors.Is(err, invoicedomain.ErrInvoiceNotDraft),
		errors.Is(err, invoicedomain.ErrInvoiceNotSendable),
		errors.Is(err, invoicedomain.ErrNotCancellable),
		errors.Is(err, paymentdomain.ErrPaymentNotPending),
		errors.Is(err, paymentdomain.ErrNotRefundable),
		errors.Is(err, paymentdomain.ErrTargetNotPayable),
		errors.Is(err, retainerdomain.ErrRetainerClosed):
		return true
	default:
		return false
	}
}

func isUnprocessableError(err error) bool {
	switch {
	case errors.Is(err, ratedomain.ErrRateNotConfigured),
		errors.Is(err, timerdomain.ErrSessionTooShort),
		errors.Is(err, invoicedomain.ErrNoItems),
		errors.Is(err, invoicedomain.ErrEntriesNotBillable),
		errors.Is(err, paymentdomain.ErrRefundTooLarge),
		errors.Is(err, retainerdomain.ErrInsufficientBalance):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
