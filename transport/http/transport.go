package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-kit/kit/endpoint"

	"github.com/flarexio/blograg"
)

func abort(c *gin.Context, err error) {
	c.String(blograg.StatusCode(err), err.Error())
	c.Error(err)
	c.Abort()
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		err = fmt.Errorf("%w: %w", blograg.ErrValidation, err)
		abort(c, err)
		return false
	}

	return true
}

func FindSimilarHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req blograg.SearchRequest
		if !bindJSON(c, &req) {
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			abort(c, err)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

func GenerateAIResponseHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req blograg.QueryRequest
		if !bindJSON(c, &req) {
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			abort(c, err)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

// StreamAIResponseHandler relays the answer as chunked Markdown. Errors that
// occur before the first chunk get an error response; later errors end the
// response early. The relay stops pulling chunks once the client goes away.
func StreamAIResponseHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req blograg.QueryRequest
		if !bindJSON(c, &req) {
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			abort(c, err)
			return
		}

		stream, ok := resp.(blograg.ChunkStream)
		if !ok {
			abort(c, errors.New("invalid response type"))
			return
		}
		defer stream.Close()

		first := stream.Next()
		if !first {
			if err := stream.Err(); err != nil {
				abort(c, err)
				return
			}
		}

		header := c.Writer.Header()
		header.Set("Content-Type", "text/markdown; charset=utf-8")
		header.Set("Cache-Control", "no-cache")
		header.Set("Connection", "keep-alive")
		header.Set("X-Accel-Buffering", "no")

		c.Status(http.StatusOK)
		c.Writer.WriteHeaderNow()
		c.Writer.Flush()

		for ok := first; ok; ok = stream.Next() {
			if _, err := c.Writer.WriteString(stream.Current()); err != nil {
				c.Error(err)
				return
			}

			c.Writer.Flush()

			if err := ctx.Err(); err != nil {
				c.Error(err)
				return
			}
		}

		if err := stream.Err(); err != nil {
			c.Error(err)
		}
	}
}

func GenerateRelatedQuestionsHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req blograg.RelatedQuestionRequest
		if !bindJSON(c, &req) {
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			abort(c, err)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

func RecommendProductHandler(endpoint endpoint.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req blograg.RecommendProductRequest
		if !bindJSON(c, &req) {
			return
		}

		ctx := c.Request.Context()
		resp, err := endpoint(ctx, req)
		if err != nil {
			abort(c, err)
			return
		}

		c.JSON(http.StatusOK, &resp)
	}
}

func HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	}
}
