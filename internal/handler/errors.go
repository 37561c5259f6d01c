package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/ticket-bridge/internal/errs"
)

var statusByReason = map[string]int{
	"not_found": http.StatusNotFound,
	"forbidden": http.StatusForbidden,
	"timeout":   http.StatusGatewayTimeout,
	"not_ready": http.StatusServiceUnavailable,
	"invalid":   http.StatusBadRequest,
	"conflict":  http.StatusConflict,
	"internal":  http.StatusInternalServerError,
}

// writeError maps err to a status code and the {"error", "reason"} body.
func writeError(c *gin.Context, err error) {
	reason := errs.Reason(err)
	status, ok := statusByReason[reason]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("http: %s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "reason": reason})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "reason": "invalid"})
}
