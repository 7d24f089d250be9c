package http

import (
	"io"
	"net/http"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/jmehdipour/payroll-projector/internal/service/ingest"
)

// pushHandler serves the broker's push subscription. The body is read raw
// and decoded as JSON whatever the declared content type, since the
// sidecar labels text payloads as octet-stream and vice versa.
func pushHandler(maxBody int64, handle func(c echo.Context, raw []byte) error) echo.HandlerFunc {
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return func(c echo.Context) error {
		raw, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBody+1))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		}
		if int64(len(raw)) > maxBody {
			return c.JSON(http.StatusRequestEntityTooLarge, map[string]string{"error": "payload too large"})
		}

		if err := handle(c, raw); err != nil {
			log.Errorf("push ingestion failed on %s: %v", c.Path(), err)
			return c.String(http.StatusInternalServerError, "Error processing event")
		}
		return c.NoContent(http.StatusOK)
	}
}

func employeeEventsPushHandler(svc *ingest.Service, maxBody int64) echo.HandlerFunc {
	return pushHandler(maxBody, func(c echo.Context, raw []byte) error {
		return svc.HandleEmployeeEvent(c.Request().Context(), raw)
	})
}

func netPayPushHandler(svc *ingest.Service, maxBody int64) echo.HandlerFunc {
	return pushHandler(maxBody, func(c echo.Context, raw []byte) error {
		return svc.HandlePaySnapshot(c.Request().Context(), raw)
	})
}
