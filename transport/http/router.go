package http

import (
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flarexio/blograg"

	mcpE "github.com/flarexio/blograg/mcp"
)

func AddRouters(r *gin.Engine, endpoints blograg.EndpointSet, middlewares ...gin.HandlerFunc) {
	blog := r.Group("/blog", middlewares...)
	{
		blog.POST("/similar", FindSimilarHandler(endpoints.FindSimilar))
		blog.POST("/ai-response", GenerateAIResponseHandler(endpoints.GenerateAIResponse))
		blog.POST("/ai-streaming-response", StreamAIResponseHandler(endpoints.StreamAIResponse))
		blog.POST("/related-question", GenerateRelatedQuestionsHandler(endpoints.GenerateRelatedQuestions))
		blog.POST("/recommend-product", RecommendProductHandler(endpoints.RecommendProduct))
	}
}

func AddStreamableRouters(r *gin.Engine, endpoints map[mcp.MCPMethod]mcpE.MCPEndpoint, middlewares ...gin.HandlerFunc) {
	mcp := r.Group("/mcp", middlewares...)
	{
		mcp.POST("/", MCPStreamableHandler(endpoints))
	}
}

func AddOperationalRouters(r *gin.Engine, gatherer prometheus.Gatherer) {
	r.GET("/health", HealthHandler())
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}
