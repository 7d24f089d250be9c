package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayAttributes is the latest computed payroll period for one employee (1:1).
type PayAttributes struct {
	EmployeeID                   uuid.UUID       `db:"employee_id"                    json:"employeeId"`
	PayPeriodNumber              int64           `db:"pay_period_number"              json:"payPeriodNumber"`
	GrossPay                     decimal.Decimal `db:"gross_pay"                      json:"grossPay"`
	FederalTax                   decimal.Decimal `db:"federal_tax"                    json:"federalTax"`
	StateTax                     decimal.Decimal `db:"state_tax"                      json:"stateTax"`
	AdditionalFederalWithholding decimal.Decimal `db:"additional_federal_withholding" json:"additionalFederalWithholding"`
	AdditionalStateWithholding   decimal.Decimal `db:"additional_state_withholding"   json:"additionalStateWithholding"`
	TotalTax                     decimal.Decimal `db:"total_tax"                      json:"totalTax"`
	TotalFixedDeductions         decimal.Decimal `db:"total_fixed_deductions"         json:"totalFixedDeductions"`
	TotalPercentDeductions       decimal.Decimal `db:"total_percent_deductions"       json:"totalPercentDeductions"`
	TotalDeductions              decimal.Decimal `db:"total_deductions"               json:"totalDeductions"`
	NetPay                       decimal.Decimal `db:"net_pay"                        json:"netPay"`
	PayRate                      decimal.Decimal `db:"pay_rate"                       json:"payRate"`
	PayType                      string          `db:"pay_type"                       json:"payType"`
	TotalHoursWorked             decimal.Decimal `db:"total_hours_worked"             json:"totalHoursWorked"`
	PayPeriodStart               string          `db:"pay_period_start"               json:"payPeriodStart"`
	PayPeriodEnd                 string          `db:"pay_period_end"                 json:"payPeriodEnd"`
	UpdatedAt                    time.Time       `db:"updated_at"                     json:"updatedAt"`
}

// PaySnapshot is one message of the net-pay computation channel. The upstream
// producer uses ALL_CAPS snake names and leaves EMPLOYEE_ID as a raw string.
type PaySnapshot struct {
	EmployeeID                   string          `json:"EMPLOYEE_ID"`
	PayPeriodNumber              int64           `json:"PAY_PERIOD_NUMBER"`
	GrossPay                     decimal.Decimal `json:"GROSS_PAY"`
	FederalTax                   decimal.Decimal `json:"FEDERAL_TAX"`
	StateTax                     decimal.Decimal `json:"STATE_TAX"`
	AdditionalFederalWithholding decimal.Decimal `json:"ADDITIONAL_FEDERAL_WITHHOLDING"`
	AdditionalStateWithholding   decimal.Decimal `json:"ADDITIONAL_STATE_WITHHOLDING"`
	TotalTax                     decimal.Decimal `json:"TOTAL_TAX"`
	TotalFixedDeductions         decimal.Decimal `json:"TOTAL_FIXED_DEDUCTIONS"`
	TotalPercentDeductions       decimal.Decimal `json:"TOTAL_PERCENT_DEDUCTIONS"`
	TotalDeductions              decimal.Decimal `json:"TOTAL_DEDUCTIONS"`
	NetPay                       decimal.Decimal `json:"NET_PAY"`
	PayRate                      decimal.Decimal `json:"PAY_RATE"`
	PayType                      string          `json:"PAY_TYPE"`
	TotalHoursWorked             decimal.Decimal `json:"TOTAL_HOURS_WORKED"`
	PayPeriodStart               string          `json:"PAY_PERIOD_START"`
	PayPeriodEnd                 string          `json:"PAY_PERIOD_END"`
}

// Attributes converts the snapshot into the stored shape for the given employee.
func (s PaySnapshot) Attributes(employeeID uuid.UUID, now time.Time) PayAttributes {
	return PayAttributes{
		EmployeeID:                   employeeID,
		PayPeriodNumber:              s.PayPeriodNumber,
		GrossPay:                     s.GrossPay,
		FederalTax:                   s.FederalTax,
		StateTax:                     s.StateTax,
		AdditionalFederalWithholding: s.AdditionalFederalWithholding,
		AdditionalStateWithholding:   s.AdditionalStateWithholding,
		TotalTax:                     s.TotalTax,
		TotalFixedDeductions:         s.TotalFixedDeductions,
		TotalPercentDeductions:       s.TotalPercentDeductions,
		TotalDeductions:              s.TotalDeductions,
		NetPay:                       s.NetPay,
		PayRate:                      s.PayRate,
		PayType:                      s.PayType,
		TotalHoursWorked:             s.TotalHoursWorked,
		PayPeriodStart:               s.PayPeriodStart,
		PayPeriodEnd:                 s.PayPeriodEnd,
		UpdatedAt:                    now,
	}
}
