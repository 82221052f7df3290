package article

import (
	"regexp"
	"strings"

	"github.com/emersion/go-message/mail"
)

// RecipientHeaders are the headers searched for list addresses.
var RecipientHeaders = []string{
	"To",
	"Cc",
	"Reply-To",
	"Resent-To",
	"Resent-Cc",
	"Mailing-List",
}

// addrPattern picks bare addresses out of values the address-list
// parser rejects, e.g. "list foo@example.org; contact foo-help@example.org".
var addrPattern = regexp.MustCompile(`[^\s<>,;:"()\[\]]+@[^\s<>,;:"()\[\]]+`)

// Recipients returns the lower-cased bare addresses found in the
// recipient-bearing headers, in first-seen order without duplicates.
// alwaysTo, when non-empty, is treated as an additional To value.
func (m *Message) Recipients(alwaysTo string) []string {
	var addrs []string
	seen := make(map[string]bool)

	add := func(addr string) {
		addr = strings.ToLower(strings.TrimSpace(addr))
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		addrs = append(addrs, addr)
	}

	for _, name := range RecipientHeaders {
		values := m.Header.Values(name)
		if name == "To" && alwaysTo != "" {
			values = append(values, alwaysTo)
		}
		for _, v := range values {
			for _, addr := range parseAddresses(v) {
				add(addr)
			}
		}
	}

	return addrs
}

// parseAddresses extracts bare addresses from an address-list value,
// falling back to entry-by-entry parsing and then to pattern matching
// when the value is not a well-formed list.
func parseAddresses(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}

	if list, err := mail.ParseAddressList(v); err == nil {
		addrs := make([]string, 0, len(list))
		for _, a := range list {
			addrs = append(addrs, a.Address)
		}
		return addrs
	}

	var addrs []string
	for _, entry := range strings.Split(v, ",") {
		if a, err := mail.ParseAddress(entry); err == nil {
			addrs = append(addrs, a.Address)
			continue
		}
		addrs = append(addrs, addrPattern.FindAllString(entry, -1)...)
	}
	return addrs
}
