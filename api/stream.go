package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"organizer/domain"
)

var (
	sseEventPrefix = []byte("event: ")
	sseDataPrefix  = []byte("\ndata: ")
	sseTerminator  = []byte("\n\n")
	sseConnected   = []byte(": connected\n\n")
	sseKeepAlive   = []byte(": keepalive\n\n")
)

// streamEvents serves the broadcast channel as server-sent events. Each event
// is written as "event: <kind>" followed by its JSON payload. The stream ends
// when the client goes away or falls too far behind, in which case the client
// reconnects and refetches the full snapshot.
func streamEvents(subs Subscriptions, keepAlive time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.JSON(http.StatusInternalServerError, errorResponse{Message: "stream unsupported"})
		}

		// Subscribe before the headers go out so nothing committed after the
		// client sees the stream open is missed.
		sub := subs.Subscribe()
		defer subs.Unsubscribe(sub)
		conn := log.WithField("conn", uuid.NewString())
		conn.Info("stream connected")
		defer conn.Info("stream closed")

		h := c.Response().Header()
		h.Set(echo.HeaderContentType, "text/event-stream")
		h.Set(echo.HeaderCacheControl, "no-cache")
		h.Set(echo.HeaderConnection, "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		c.Response().WriteHeader(http.StatusOK)
		if _, err := c.Response().Write(sseConnected); err != nil {
			return nil
		}
		flusher.Flush()

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		ctx := c.Request().Context()
		for {
			select {
			case <-ctx.Done():
				return nil
			case ev, ok := <-sub.Events():
				if !ok {
					conn.Warn("stream subscriber fell behind, disconnecting")
					return nil
				}
				if err := writeEvent(c.Response(), ev); err != nil {
					conn.WithError(err).Debug("stream write failed")
					return nil
				}
				flusher.Flush()
			case <-ticker.C:
				if _, err := c.Response().Write(sseKeepAlive); err != nil {
					return nil
				}
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, ev domain.Event) error {
	for _, chunk := range [][]byte{sseEventPrefix, []byte(ev.Kind), sseDataPrefix, ev.Data, sseTerminator} {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}
