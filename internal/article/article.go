// Package article models a mail message on its way into the news spool:
// an ordered header multimap plus an opaque body.
package article

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
)

// Header names the normalizer forces to a single occurrence.
const (
	HeaderPath       = "Path"
	HeaderMessageID  = "Message-Id"
	HeaderDate       = "Date"
	HeaderSubject    = "Subject"
	HeaderNewsgroups = "Newsgroups"
)

// RoutingHeaders lists the headers that appear exactly once after
// normalization.
var RoutingHeaders = []string{
	HeaderPath,
	HeaderMessageID,
	HeaderDate,
	HeaderSubject,
	HeaderNewsgroups,
}

// Message is a parsed mail message. The header keeps field order and
// raw formatting; the body is carried byte for byte.
type Message struct {
	Header mail.Header
	Body   []byte
}

// Parse reads a message in wire format.
func Parse(raw []byte) (*Message, error) {
	br := bufio.NewReader(bytes.NewReader(raw))

	h, err := textproto.ReadHeader(br)
	if err != nil {
		return nil, fmt.Errorf("reading message header: %w", err)
	}

	body, err := io.ReadAll(br)
	if err != nil {
		return nil, fmt.Errorf("reading message body: %w", err)
	}

	return &Message{
		Header: mail.Header{Header: message.Header{Header: h}},
		Body:   body,
	}, nil
}

// Bytes returns the message in wire format.
func (m *Message) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := textproto.WriteHeader(&buf, m.Header.Header.Header); err != nil {
		return nil, fmt.Errorf("writing message header: %w", err)
	}
	buf.Write(m.Body)
	return buf.Bytes(), nil
}

// Get returns the first value of the named header.
func (m *Message) Get(name string) string {
	return m.Header.Get(name)
}

// Count returns how many times the named header occurs.
func (m *Message) Count(name string) int {
	return len(m.Header.Values(name))
}

// SingleValued reports whether the named header occurs exactly once.
func (m *Message) SingleValued(name string) bool {
	return m.Count(name) == 1
}

// Newsgroups returns the groups already listed in the message's own
// Newsgroups headers, whitespace stripped, in first-seen order.
func (m *Message) Newsgroups() []string {
	var groups []string
	for _, v := range m.Header.Values(HeaderNewsgroups) {
		groups = MergeGroups(groups, splitGroups(v))
	}
	return groups
}

// MergeGroups returns the union of base and extra. Elements of base
// come first in their original order, followed by elements of extra
// not already present. Empty names are dropped.
func MergeGroups(base, extra []string) []string {
	merged := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))

	for _, list := range [][]string{base, extra} {
		for _, g := range list {
			if g == "" || seen[g] {
				continue
			}
			seen[g] = true
			merged = append(merged, g)
		}
	}

	return merged
}

// splitGroups parses a Newsgroups value: all whitespace is removed and
// the remainder split on commas.
func splitGroups(v string) []string {
	stripped := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, v)

	var groups []string
	for _, g := range strings.Split(stripped, ",") {
		if g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}
