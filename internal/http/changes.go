package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/jmehdipour/payroll-projector/internal/model"
)

// Feed is the subscription side of the fan-out bus.
type Feed interface {
	Subscribe(ctx context.Context) (<-chan model.ChangeNotification, error)
}

const keepAliveEvery = 15 * time.Second

// changesFeedHandler streams change notifications as server-sent events.
// Optional ?employee_id= narrows the stream to one employee.
func changesFeedHandler(feed Feed) echo.HandlerFunc {
	return func(c echo.Context) error {
		if feed == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "change feed disabled"})
		}
		only := strings.TrimSpace(c.QueryParam("employee_id"))

		ctx := c.Request().Context()
		ch, err := feed.Subscribe(ctx)
		if err != nil {
			log.Errorf("subscribe to change feed failed: %v", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "change feed unavailable"})
		}

		res := c.Response()
		res.Header().Set(echo.HeaderContentType, "text/event-stream")
		res.Header().Set("Cache-Control", "no-cache")
		res.Header().Set("Connection", "keep-alive")
		res.WriteHeader(http.StatusOK)
		res.Flush()

		tick := time.NewTicker(keepAliveEvery)
		defer tick.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case n, ok := <-ch:
				if !ok {
					return nil
				}
				if only != "" && !strings.EqualFold(n.Employee.ID.String(), only) {
					continue
				}
				payload, err := json.Marshal(n)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(res, "id: %s\nevent: %s\ndata: %s\n\n", n.ID, n.ChangeType, payload); err != nil {
					return nil
				}
				res.Flush()
			case <-tick.C:
				if _, err := fmt.Fprint(res, ": keep-alive\n\n"); err != nil {
					return nil
				}
				res.Flush()
			}
		}
	}
}
