package httpx

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/campus-market/internal/apperr"
)

// HTTPError is the body of every error response.
// swagger:model HTTPError
type HTTPError struct {
	Error string `json:"error" example:"invalid input data: price must be positive"`
}

// Error aborts the request with the status and message err maps to.
// Transient failures are recorded on the context so Logger reports them.
func Error(c *gin.Context, err error) {
	status := apperr.Status(err)
	if status == http.StatusServiceUnavailable {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, HTTPError{Error: apperr.Message(err)})
}

// Bind decodes the JSON body into v. Malformed bodies become invalid input.
func Bind(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return fmt.Errorf("%w: invalid json: %v", apperr.ErrInvalidInput, err)
	}
	return nil
}
