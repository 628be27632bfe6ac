package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comitanigiacomo/kanso-routines/internal/core/domain"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{domain.ErrTemplateNotFound, http.StatusNotFound},
	{domain.ErrSessionNotFound, http.StatusNotFound},
	{domain.ErrNoActiveSession, http.StatusNotFound},
	{domain.ErrUserNotFound, http.StatusNotFound},
	{domain.ErrHabitNotInSequence, http.StatusNotFound},
	{domain.ErrOptionNotFound, http.StatusNotFound},
	{domain.ErrNoMatchingTemplate, http.StatusNotFound},

	{domain.ErrTemplateConflict, http.StatusConflict},
	{domain.ErrSessionAlreadyActive, http.StatusConflict},
	{domain.ErrSessionNotActive, http.StatusConflict},
	{domain.ErrEmailAlreadyExists, http.StatusConflict},

	{domain.ErrIncompleteRoutine, http.StatusUnprocessableEntity},
	{domain.ErrRequiredHabit, http.StatusUnprocessableEntity},
	{domain.ErrConditionalNeedsAnswer, http.StatusUnprocessableEntity},
	{domain.ErrNotConditional, http.StatusUnprocessableEntity},
	{domain.ErrNothingSelected, http.StatusUnprocessableEntity},
	{domain.ErrEmptyRoutine, http.StatusUnprocessableEntity},

	{domain.ErrInvalidCredentials, http.StatusUnauthorized},
	{domain.ErrUnauthorized, http.StatusUnauthorized},
}

var validationErrors = []error{
	domain.ErrTemplateNameEmpty, domain.ErrTemplateNameTooLong, domain.ErrTemplateInvalidUserID,
	domain.ErrDuplicateHabitID, domain.ErrDuplicateHabitOrder, domain.ErrConditionalTooDeep,
	domain.ErrInvalidPriority, domain.ErrHabitIDEmpty, domain.ErrHabitNameTooLong,
	domain.ErrHabitNotesTooLong, domain.ErrInvalidColor, domain.ErrInvalidHabitKind,
	domain.ErrHabitPayloadMismatch, domain.ErrInvalidTimerStyle, domain.ErrInvalidActionKind,
	domain.ErrActionIdentifier, domain.ErrConditionalNoOptions, domain.ErrQuestionEmpty,
	domain.ErrOptionIDEmpty, domain.ErrDuplicateOption, domain.ErrInvalidTimeOfDay,
	domain.ErrTimeSlotIDEmpty, domain.ErrDuplicateTimeSlot, domain.ErrInvalidWeekday,
	domain.ErrDayCategoryEmpty, domain.ErrInvalidCoordinate, domain.ErrInvalidRadius,
	domain.ErrLocationNameEmpty, domain.ErrInvalidTimeTaken, domain.ErrInvalidEmail,
	domain.ErrPasswordTooShort, domain.ErrInvalidTimezone,
}

// statusFor maps a domain error to its HTTP status. Unknown errors are 500.
func statusFor(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	for _, e := range validationErrors {
		if errors.Is(err, e) {
			return http.StatusBadRequest
		}
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": ...}. Internal errors are recorded on the gin
// context and hidden from the client.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
