package response

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/webapi/proxyutil"
)

// codedError carries a business code into the proxyutil failure envelope.
type codedError struct {
	code uint32
	msg  string
}

func (e codedError) Error() string {
	return e.msg
}

func (e codedError) Code() uint32 {
	return e.code
}

func Success(c *gin.Context, data interface{}) {
	proxyutil.SuccessJson(c, data)
}

// Error writes a failure envelope with the given HTTP status and business code.
func Error(c *gin.Context, status int, code int, message string) {
	proxyutil.FailJson(c, status, codedError{code: uint32(code), msg: message})
}

// Attachment streams data as a download named fileName.
func Attachment(c *gin.Context, fileName, contentType string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, contentType, data)
}
