package httpx

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set("rid", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

// RequestLogger returns the request-scoped logger set by Logger, or log.
func RequestLogger(c *gin.Context, log zerolog.Logger) zerolog.Logger {
	if l, ok := c.Get("log"); ok {
		if rl, ok := l.(zerolog.Logger); ok {
			return rl
		}
	}
	return log
}

// Logger writes one structured line per request and exposes a logger
// carrying the request id to downstream handlers.
func Logger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		rid, _ := c.Get("rid")
		rl := log.With().Interface("rid", rid).Logger()
		c.Set("log", rl)
		c.Next()

		status := c.Writer.Status()
		ev := rl.Info()
		switch {
		case status >= http.StatusInternalServerError:
			ev = rl.Error()
		case status >= http.StatusBadRequest:
			ev = rl.Warn()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("dur", time.Since(start)).
			Msg("http")
	}
}

// Recovery turns a handler panic into a 500 and logs the stack.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				rl := RequestLogger(c, log)
				rl.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")
				c.AbortWithStatusJSON(http.StatusInternalServerError, HTTPError{Error: "internal error"})
			}
		}()
		c.Next()
	}
}
