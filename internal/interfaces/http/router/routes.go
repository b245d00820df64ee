// Package router 提供 HTTP 路由配置
package router

import (
	"directory-assistant-api/internal/interfaces/http/handler"

	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(
	v1 *gin.RouterGroup,
	sessionHandler *handler.SessionHandler,
	historyHandler *handler.HistoryHandler,
) {
	assistant := v1.Group("/assistant")
	{
		// 会话管理
		sessions := assistant.Group("/sessions")
		{
			sessions.POST("", sessionHandler.CreateSession)
			sessions.GET("/:sid", sessionHandler.GetSession)
			sessions.DELETE("/:sid", sessionHandler.DeleteSession)
			sessions.POST("/:sid/messages", sessionHandler.Submit)
			sessions.POST("/:sid/stop", sessionHandler.Stop)
			sessions.POST("/:sid/thread", sessionHandler.SelectThread)
		}

		// 配额状态
		assistant.GET("/quota", sessionHandler.Quota)

		// 历史线程
		assistant.GET("/history", historyHandler.List)
		assistant.GET("/history/events", historyHandler.Events)
	}
}
