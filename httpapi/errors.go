package httpapi

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"escrowdesk/account"
	"escrowdesk/authz"
	"escrowdesk/dispute"
	"escrowdesk/platform"
	"escrowdesk/proposal"
	"escrowdesk/sponsorship"
)

// writeError maps domain sentinel errors onto HTTP statuses. Anything
// unmapped is an internal error and is logged rather than leaked.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, dispute.ErrCaseNotFound),
		errors.Is(err, proposal.ErrProposalNotFound),
		errors.Is(err, authz.ErrScopeNotFound),
		errors.Is(err, account.ErrUserNotFound),
		errors.Is(err, platform.ErrNotConfigured):
		status = http.StatusNotFound
	case errors.Is(err, dispute.ErrDuplicateCase),
		errors.Is(err, dispute.ErrAlreadyResolved),
		errors.Is(err, dispute.ErrCaseClosed),
		errors.Is(err, proposal.ErrAlreadyExecuted),
		errors.Is(err, account.ErrDuplicateEmail):
		status = http.StatusConflict
	case errors.Is(err, proposal.ErrProposalExpired):
		status = http.StatusGone
	case errors.Is(err, authz.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, account.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, sponsorship.ErrDailyLimitReached):
		status = http.StatusTooManyRequests
	case errors.Is(err, dispute.ErrInvalidRatio),
		errors.Is(err, authz.ErrInvalidThresholds),
		errors.Is(err, authz.ErrUnreachableThreshold),
		errors.Is(err, authz.ErrNoSigners),
		errors.Is(err, authz.ErrDuplicateSigner),
		errors.Is(err, authz.ErrInvalidWeight),
		errors.Is(err, sponsorship.ErrNotEligible),
		errors.Is(err, account.ErrWeakPassword):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		log.Printf("httpapi: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
