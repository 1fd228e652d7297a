package view

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/autoescrow/internal/money"
)

const dbTimeout = 5 * time.Second

// FormatAmount renders an amount with its currency symbol.
func FormatAmount(amount decimal.Decimal, currency string) string {
	return money.Format(amount, currency)
}

// FormatDate formats a time.Time into YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatStamp formats an optional timestamp, or a dash when unset.
func FormatStamp(t *time.Time) string {
	if t == nil {
		return "-"
	}

	return t.Local().Format("2006-01-02 15:04")
}

const inspectionLayout = "2006-01-02 15:04"

// ParseInspectionDate reads a local "YYYY-MM-DD HH:MM" value.
func ParseInspectionDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(inspectionLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("use YYYY-MM-DD HH:MM")
	}

	return t, nil
}

// DbCtx returns a context with a standard timeout for database operations.
func DbCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), dbTimeout)
}
