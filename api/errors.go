package api

import (
	"net/http"

	"github.com/Domenick1991/railbooking/internal/api/rpc"
	"github.com/Domenick1991/railbooking/internal/domain"
	"github.com/Domenick1991/railbooking/internal/logger"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(c *gin.Context, err error) {
	status := rpc.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context(), nil).ErrorContext(c.Request.Context(), "request failed", "error", err)
	}
	c.AbortWithStatusJSON(status, errorResponse{
		Error:     rpc.Message(err),
		Kind:      string(domain.KindOf(err)),
		RequestID: GetRequestID(c),
	})
}

func badRequest(c *gin.Context, field, msg string) {
	writeError(c, domain.InvalidInput("api", field, msg))
}

func forbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "access denied", Kind: "PERMISSION_DENIED", RequestID: GetRequestID(c)})
}
