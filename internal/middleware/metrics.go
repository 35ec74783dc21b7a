package middleware

import (
	"time"

	"flowkeeper/services"

	"github.com/gin-gonic/gin"
)

/**
 * 状态API请求统计中间件
 * @description
 * - 按路由模板统计请求数量和处理时间，未匹配的路由记为 unknown
 * - 状态码 >= 400 的请求计入错误数
 */
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		services.IncrementRequestCount(route)
		services.RecordRequestDuration(route, duration)
		if c.Writer.Status() >= 400 {
			services.IncrementErrorCount(route)
		}
	}
}

// GetTotalRequests 返回总请求数，供健康检查使用
func GetTotalRequests() int64 {
	return services.GetTotalRequestCount()
}

// GetErrorRequests 返回错误请求数
func GetErrorRequests() int64 {
	return services.GetTotalErrorCount()
}
