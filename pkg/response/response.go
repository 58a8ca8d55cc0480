package response

import (
	"time"

	"github.com/gin-gonic/gin"
)

type APIResponse struct {
	Success    bool                `json:"success"`
	Message    string              `json:"message"`
	Data       any                 `json:"data,omitempty"`
	Pagination any                 `json:"pagination,omitempty"`
	Errors     map[string][]string `json:"errors,omitempty"`
	CreatedAt  time.Time           `json:"created_at,omitempty"`
}

func SendAPIResponse(c *gin.Context, code int, success bool, message string, data any) {
	resp := APIResponse{
		Success:   success,
		Message:   message,
		Data:      data,
		CreatedAt: time.Now(),
	}

	c.JSON(code, resp)
}

// SendPage writes one page of a listing alongside its cursor.
func SendPage(c *gin.Context, message string, data any, pagination any) {
	c.JSON(200, APIResponse{
		Success:    true,
		Message:    message,
		Data:       data,
		Pagination: pagination,
		CreatedAt:  time.Now(),
	})
}

// SendError writes a failure envelope; fieldErrors may be nil.
func SendError(c *gin.Context, code int, message string, fieldErrors map[string][]string) {
	c.AbortWithStatusJSON(code, APIResponse{
		Success:   false,
		Message:   message,
		Errors:    fieldErrors,
		CreatedAt: time.Now(),
	})
}
