package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/HARISHMALISETTY/ZOOM-SDK-10K/pkg/response"
)

type watcherCounter interface {
	Active() int
}

type queueDepth interface {
	Len(ctx context.Context) (int64, error)
}

// healthHandler reports live reconcile watchers and, in queue mode, the ingest backlog.
// queue may be nil.
func healthHandler(watchers watcherCounter, queue queueDepth, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"status": "ok", "watchers": watchers.Active()}
		if queue != nil {
			n, err := queue.Len(c.Request.Context())
			if err != nil {
				logger.Warn("queue depth unavailable", zap.Error(err))
				body["status"] = "degraded"
			} else {
				body["queue_depth"] = n
			}
		}
		response.OK(c, body)
	}
}
