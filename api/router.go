package api

import (
	"net/http"

	"github.com/fyerfyer/study-buddy/api/handler"
	"github.com/fyerfyer/study-buddy/api/middleware"
	"github.com/fyerfyer/study-buddy/api/model"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	docHandler *handler.DocumentHandler,
	taskHandler *handler.TaskHandler,
) *gin.Engine {
	router := gin.New()

	if err := model.RegisterValidators(); err != nil {
		middleware.GetLogger().WithError(err).Warn("Failed to register custom validators")
	}

	// 应用全局中间件
	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(Cors())

	// 在调试模式下记录请求体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	api := router.Group("/api")
	{
		docGroup := api.Group("/documents")
		{
			// 上传文档 - POST /api/documents
			docGroup.POST("", docHandler.UploadDocument)

			// 获取文档列表 - GET /api/documents
			docGroup.GET("", docHandler.ListDocuments)

			// 获取文档详情 - GET /api/documents/:id
			docGroup.GET("/:id", docHandler.GetDocument)

			// 删除文档 - DELETE /api/documents/:id
			docGroup.DELETE("/:id", docHandler.DeleteDocument)

			// 同步处理文档（SSE） - POST /api/documents/:id/process
			docGroup.POST("/:id/process", docHandler.ProcessDocument)

			// 异步处理文档 - POST /api/documents/:id/process/async
			docGroup.POST("/:id/process/async", docHandler.ProcessDocumentAsync)

			docGroup.GET("/:id/chunks", docHandler.ListChunks)
			docGroup.GET("/:id/outline", docHandler.GetOutline)

			// 相似分块检索 - POST /api/documents/:id/query
			docGroup.POST("/:id/query", docHandler.QueryChunks)

			docGroup.GET("/:id/tasks", taskHandler.GetDocumentTasks)
		}

		taskGroup := api.Group("/tasks")
		{
			taskGroup.GET("/:id", taskHandler.GetTaskStatus)
			taskGroup.GET("/:id/events", taskHandler.StreamTaskEvents)
		}

		// 健康检查API
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status": "ok",
			})
		})
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID, X-User-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
