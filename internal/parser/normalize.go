package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Russian genitive month names as they appear on receipts ("5 марта 2024").
var monthNumbers = map[string]string{
	"января": "01", "февраля": "02", "марта": "03",
	"апреля": "04", "мая": "05", "июня": "06",
	"июля": "07", "августа": "08", "сентября": "09",
	"октября": "10", "ноября": "11", "декабря": "12",
}

var (
	nonDigits   = regexp.MustCompile(`\D`)
	digitGroups = regexp.MustCompile(`\d+`)
	// Strict numeric receipt date, anchored at the start of the value.
	strictDate = regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4}`)
)

// NormalizeAmount parses a receipt amount like "12 345,67" into a decimal.
// Spaces (including NBSP) are stripped and the comma decimal separator is
// converted to a point. An unparseable amount becomes zero rather than an
// error; callers treat zero as "extraction failed", not a real zero payment.
func NormalizeAmount(s string) decimal.Decimal {
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// NormalizePhone reduces a phone to the 11-digit local form: all non-digits
// stripped, a leading 7 (from +7) rewritten to 8, and the result truncated
// to 11 digits. Shorter results pass through unmodified as best effort.
func NormalizePhone(s string) string {
	digits := nonDigits.ReplaceAllString(s, "")
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, "7") {
		digits = "8" + digits[1:]
	}
	if len(digits) >= 11 {
		return digits[:11]
	}
	return digits
}

// NormalizeDate rebuilds a receipt date into DD.MM.YYYY. A Russian month
// name is translated to its numeric form and the first three numeric groups
// become day, month, year (zero-padded). An already-numeric D(D).M(M).YYYY
// date passes through unchanged. Anything else falls back to the current
// date: the pipeline never blocks on an unparseable date, it degrades to
// the processing date instead.
func NormalizeDate(s string) string {
	lower := strings.ToLower(s)
	for month, num := range monthNumbers {
		if !strings.Contains(lower, month) {
			continue
		}
		replaced := strings.ReplaceAll(lower, month, num)
		parts := digitGroups.FindAllString(replaced, -1)
		if len(parts) == 3 {
			day, _ := strconv.Atoi(parts[0])
			mon, _ := strconv.Atoi(parts[1])
			return fmt.Sprintf("%02d.%02d.%s", day, mon, parts[2])
		}
	}
	if strictDate.MatchString(s) {
		return s
	}
	return time.Now().Format("02.01.2006")
}
