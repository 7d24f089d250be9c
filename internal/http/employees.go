package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/jmehdipour/payroll-projector/internal/model"
	"github.com/jmehdipour/payroll-projector/internal/repository"
)

func listEmployeesHandler(repo repository.EmployeesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		var f repository.EmployeeFilter

		if raw := strings.TrimSpace(c.QueryParam("active")); raw != "" {
			active, err := strconv.ParseBool(raw)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid active"})
			}
			f.Active = &active
		}

		pt, ok := model.ParsePayType(c.QueryParam("pay_type"))
		if !ok {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid pay_type"})
		}
		f.PayType = pt
		f.Sort = strings.TrimSpace(c.QueryParam("sort"))

		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				f.Limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				f.Offset = n
			}
		}
		f, _, _ = f.Normalize()

		rows, err := repo.List(c.Request().Context(), f)
		if err != nil {
			log.Errorf("list employees failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   f.Limit,
			"offset":  f.Offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}

func getEmployeeHandler(employees repository.EmployeesRepository, attrs repository.PayAttributesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
		}

		ctx := c.Request().Context()
		e, err := employees.GetByID(ctx, id)
		if err != nil {
			log.Errorf("get employee %s failed: %v", id, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		if e == nil {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
		}

		pa, err := attrs.GetByEmployeeID(ctx, id)
		if err != nil {
			log.Errorf("get pay attributes %s failed: %v", id, err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}
		e.PayAttributes = pa

		return c.JSON(http.StatusOK, e)
	}
}

type deleteAllResp struct {
	DeletedCount int64  `json:"deletedCount"`
	Success      bool   `json:"success"`
	Message      string `json:"message"`
}

func deleteAllEmployeesHandler(repo repository.EmployeesRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		n, err := repo.DeleteAll(c.Request().Context())
		if err != nil {
			log.Errorf("delete all employees failed: %v", err)
			return c.JSON(http.StatusInternalServerError, deleteAllResp{Message: "delete failed"})
		}
		return c.JSON(http.StatusOK, deleteAllResp{
			DeletedCount: n,
			Success:      true,
			Message:      fmt.Sprintf("Successfully deleted %d employee records", n),
		})
	}
}
