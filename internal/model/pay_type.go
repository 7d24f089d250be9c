package model

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

type PayType string

const (
	PayTypeNone   PayType = ""
	PayTypeHourly PayType = "hourly"
	PayTypeSalary PayType = "salary"
)

func (t PayType) String() string { return string(t) }

// PayTypeFromCode maps the upstream int enum (1=hourly, 2=salary).
// Unknown codes keep their decimal form and report false.
func PayTypeFromCode(code int) (PayType, bool) {
	switch code {
	case 1:
		return PayTypeHourly, true
	case 2:
		return PayTypeSalary, true
	default:
		return PayType(strconv.Itoa(code)), false
	}
}

// Code is the inverse of PayTypeFromCode; 0 for PayTypeNone.
func (t PayType) Code() int {
	switch t {
	case PayTypeHourly:
		return 1
	case PayTypeSalary:
		return 2
	default:
		return 0
	}
}

// ParsePayType normalizes query input; empty => none.
func ParsePayType(s string) (PayType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return PayTypeNone, true
	case "hourly", "1":
		return PayTypeHourly, true
	case "salary", "2":
		return PayTypeSalary, true
	default:
		return PayTypeNone, false
	}
}

func (t PayType) Value() (driver.Value, error) { return string(t), nil }

func (t *PayType) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = PayTypeNone
	case string:
		*t = PayType(v)
	case []byte:
		*t = PayType(v)
	default:
		return fmt.Errorf("pay type: unsupported scan type %T", src)
	}
	return nil
}
