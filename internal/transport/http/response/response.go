package response

import "github.com/gin-gonic/gin"

const (
	MessageUploadFailed  = "Upload failed"
	MessageFileNotFound  = "File not found"
	MessageEmptyContent  = "No text could be extracted from PDF."
	MessageNotAThesis    = "This file does not appear to be a thesis document."
	MessageInternalError = "Internal Server Error"
)

// ErrorBody is the JSON shape of every failed request.
type ErrorBody struct {
	Message    string `json:"message"`
	AIResponse string `json:"ai_response,omitempty"`
	Error      string `json:"error,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(200, data)
}

func Error(c *gin.Context, httpStatus int, message string) {
	c.JSON(httpStatus, ErrorBody{Message: message})
}

// Failure reports an internal error together with its detail.
func Failure(c *gin.Context, httpStatus int, message string, err error) {
	body := ErrorBody{Message: message}
	if err != nil {
		body.Error = err.Error()
	}
	c.JSON(httpStatus, body)
}

func NotAThesis(c *gin.Context, aiResponse string) {
	c.JSON(400, ErrorBody{Message: MessageNotAThesis, AIResponse: aiResponse})
}
