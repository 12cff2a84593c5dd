package response

import (
	"evently-waitlist/internal/shared/errs"

	"github.com/gin-gonic/gin"
)

func RespondJSON(c *gin.Context, status string, code int, message string, data interface{}, errors interface{}) {
	c.JSON(code, StandardApiResponse{
		Status:     status,
		StatusCode: code,
		Message:    message,
		Data:       data,
		Errors:     errors,
	})
}

// RespondError renders a service error with the status its kind maps to
func RespondError(c *gin.Context, err error) {
	code := errs.HTTPStatus(err)
	RespondJSON(c, "error", code, err.Error(), nil, ErrorDetail{Kind: errs.Kind(err)})
}
