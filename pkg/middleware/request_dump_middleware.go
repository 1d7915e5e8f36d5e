package middleware

import (
	"bytes"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// maxDumpBytes caps how much of a request body is logged.
const maxDumpBytes = 4096

// redactedHeaders are replaced before logging.
var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
}

type readCloser struct {
	io.Reader
	io.Closer
}

func RequestDumpMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !log.Debug().Enabled() {
			c.Next()
			return
		}

		var body []byte
		if c.Request.Body != nil {
			head, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDumpBytes))
			// Only the dumped prefix is buffered; the rest streams from the original body.
			c.Request.Body = readCloser{
				Reader: io.MultiReader(bytes.NewReader(head), c.Request.Body),
				Closer: c.Request.Body,
			}
			if err != nil {
				log.Warn().Err(err).Str("url", c.Request.URL.String()).Msg("request body unreadable, skipping dump")
				c.Next()
				return
			}
			body = head
		}

		headers := zerolog.Dict()
		for k, v := range c.Request.Header {
			if redactedHeaders[k] {
				headers.Str(k, "[redacted]")
				continue
			}
			headers.Str(k, strings.Join(v, ", "))
		}

		log.Debug().
			Str("method", c.Request.Method).
			Str("url", c.Request.URL.String()).
			Dict("headers", headers).
			Str("client_ip", c.ClientIP()).
			Bytes("body", body).
			Msg("request")

		c.Next()
	}
}

// RequestLogger logs one line per handled request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Str("client_ip", c.ClientIP()).
			Msg("handled request")
	}
}
