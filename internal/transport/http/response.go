package httptransport

import "github.com/gin-gonic/gin"

// DataResponse is the success envelope of the collection API.
type DataResponse struct {
	Data any `json:"data"`
}

// ErrorResponse is the failure envelope of the collection API.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondData writes {"data": data}.
func RespondData(c *gin.Context, httpStatus int, data any) {
	c.JSON(httpStatus, DataResponse{Data: data})
}

// RespondError writes {"error": message} and aborts the chain.
func RespondError(c *gin.Context, httpStatus int, message string) {
	c.AbortWithStatusJSON(httpStatus, ErrorResponse{Error: message})
}
