package stream

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"kanban-sync/coordinator"
	"kanban-sync/protocol"
)

const sseDataPrefix = "data: "

// Register wires up the read-only stream endpoints. The hub is fed by
// SubscribeUpdates.
func Register(e *echo.Echo, hub *coordinator.Hub) {
	e.GET("/stream", streamBoard(hub))
	e.GET("/api/board", getBoard(hub))
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
}

func getBoard(hub *coordinator.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		snap, ok := hub.Latest()
		if !ok {
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusOK, snap)
	}
}

// streamBoard writes the newest snapshot as a server-sent event, then one
// more each time a newer version or a new generation reaches the hub.
func streamBoard(hub *coordinator.Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}
		ctx := c.Request().Context()
		ch := hub.Subscribe()
		defer hub.Unsubscribe(ch)

		var sent, sentGen uint64
		var wrote bool
		for {
			snap, gen, ok := hub.Current()
			if ok && (!wrote || gen != sentGen || snap.Version > sent) {
				data, err := protocol.Encode(snap)
				if err != nil {
					c.Logger().Error(err)
					return err
				}
				if _, err := c.Response().Write([]byte(sseDataPrefix)); err != nil {
					c.Logger().Error(err)
					return err
				}
				if _, err := c.Response().Write(data); err != nil {
					c.Logger().Error(err)
					return err
				}
				if _, err := c.Response().Write([]byte("\n\n")); err != nil {
					c.Logger().Error(err)
					return err
				}
				flusher.Flush()
				sent, sentGen, wrote = snap.Version, gen, true
			}
			select {
			case <-ctx.Done():
				return nil
			case <-ch:
			}
		}
	}
}
