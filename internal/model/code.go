package model

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

const ticketCodePrefix = "TK-"

var (
	ErrBadTicketCode = errors.New("ticket code must look like TK-<digits>")

	ticketCodeRegex = regexp.MustCompile(`^TK-(\d+)$`)
)

// FormatTicketCode renders id as TK- followed by at least three digits.
func FormatTicketCode(id int64) string {
	return fmt.Sprintf("%s%03d", ticketCodePrefix, id)
}

// ParseTicketCode is the inverse of FormatTicketCode. Anything that is not
// exactly TK-<digits> (or overflows int64) is ErrBadTicketCode.
func ParseTicketCode(code string) (int64, error) {
	m := ticketCodeRegex.FindStringSubmatch(code)
	if m == nil {
		return 0, ErrBadTicketCode
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, ErrBadTicketCode
	}
	return id, nil
}
