package ocr

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	amountPattern   = regexp.MustCompile(`\b(\d{1,3}(?:,\d{3})+|\d+)[.,](\d{2})\b`)
	isoDatePattern  = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	slashDate       = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	dotDate         = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)
	currencyCode    = regexp.MustCompile(`\b(USD|EUR|GBP|JPY|IDR|AUD|CAD|CHF|SGD|INR)\b`)
	currencySymbols = [][2]string{{"$", "USD"}, {"€", "EUR"}, {"£", "GBP"}, {"¥", "JPY"}}
)

// ParseReceiptText derives receipt fields from recognized text. The
// merchant is the first line with letters, the amount is taken from the
// last line mentioning a total (else the largest amount on the receipt)
// and the date is the first recognizable date.
func ParseReceiptText(text string) Fields {
	lines := splitLines(text)

	fields := Fields{RawText: strings.TrimSpace(text)}
	for _, line := range lines {
		if hasLetter(line) {
			fields.Merchant = line
			break
		}
	}

	for _, line := range lines {
		if d, ok := parseDate(line); ok {
			fields.Date = &d
			break
		}
	}

	var (
		totalAmount decimal.Decimal
		haveTotal   bool
		largest     decimal.Decimal
	)
	for _, line := range lines {
		amounts := lineAmounts(line)
		if len(amounts) == 0 {
			continue
		}
		for _, a := range amounts {
			if a.GreaterThan(largest) {
				largest = a
			}
		}
		if strings.Contains(strings.ToLower(line), "total") {
			totalAmount = amounts[len(amounts)-1]
			haveTotal = true
		}
	}
	if haveTotal {
		fields.Amount = totalAmount
	} else {
		fields.Amount = largest
	}

	fields.Currency = detectCurrency(text)
	return fields
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func lineAmounts(line string) []decimal.Decimal {
	// dates like 15.03.2024 would otherwise read as amounts
	line = dotDate.ReplaceAllString(line, " ")
	line = slashDate.ReplaceAllString(line, " ")
	line = isoDatePattern.ReplaceAllString(line, " ")

	var out []decimal.Decimal
	for _, m := range amountPattern.FindAllStringSubmatch(line, -1) {
		whole := strings.ReplaceAll(m[1], ",", "")
		d, err := decimal.NewFromString(whole + "." + m[2])
		if err == nil {
			out = append(out, d)
		}
	}
	return out
}

func parseDate(line string) (time.Time, bool) {
	if m := isoDatePattern.FindString(line); m != "" {
		if d, err := time.Parse("2006-01-02", m); err == nil {
			return d, true
		}
	}
	if m := slashDate.FindString(line); m != "" {
		// month first, then day first when the month is out of range
		if d, err := time.Parse("1/2/2006", m); err == nil {
			return d, true
		}
		if d, err := time.Parse("2/1/2006", m); err == nil {
			return d, true
		}
	}
	if m := dotDate.FindString(line); m != "" {
		if d, err := time.Parse("2.1.2006", m); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func detectCurrency(text string) string {
	if m := currencyCode.FindString(text); m != "" {
		return m
	}
	for _, pair := range currencySymbols {
		if strings.Contains(text, pair[0]) {
			return pair[1]
		}
	}
	return ""
}
