package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ncastellanos/vecino/pkg/metrics"
)

// Metrics observes per-route request latency. Websocket upgrades are
// excluded: a realtime socket lives for the whole session and its
// lifetime would swamp the latency histogram. The scrape endpoint
// itself is skipped as well.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if status == http.StatusSwitchingProtocols {
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		if route == "/metrics" {
			return
		}

		metrics.APILatency.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	}
}
