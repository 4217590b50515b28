package coordinator

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Register wires up the coordinator routes on the provided Echo instance.
func Register(e *echo.Echo, coord *Coordinator) {
	e.GET("/ws", serveSocket(coord))
	e.GET("/api/board", getBoard(coord))
	e.GET("/healthz", healthz(coord))
}

func healthz(coord *Coordinator) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{
			"board":    coord.BoardID(),
			"version":  coord.Snapshot().Version,
			"sessions": coord.Hub().Len(),
		})
	}
}

func getBoard(coord *Coordinator) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, coord.Snapshot())
	}
}

func serveSocket(coord *Coordinator) echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			// the upgrader has already written the HTTP error
			coord.log.WithError(err).Warn("websocket upgrade failed")
			return nil
		}
		newSession(conn, coord).run(c.Request().Context())
		return nil
	}
}
