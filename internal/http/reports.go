package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v4"

	"github.com/jmehdipour/payroll-projector/internal/repository"
)

func listChangesHandler(chRepo repository.CHChangesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		if chRepo == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "change archive disabled"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		employeeID := strings.TrimSpace(c.QueryParam("employee_id"))
		if employeeID != "" {
			id, err := uuid.Parse(employeeID)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid employee_id"})
			}
			employeeID = id.String()
		}
		changeType := strings.TrimSpace(c.QueryParam("change_type"))

		rows, err := chRepo.ListByEmployee(c.Request().Context(), employeeID, changeType, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
