package article

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultSubject is used when a message arrives without a Subject.
const DefaultSubject = "(no subject)"

// Normalizer prepares messages for the news spool.
type Normalizer struct {
	// Hostname is used for the Path default and synthesized Message-Ids.
	Hostname string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// NewID returns a random component for synthesized Message-Ids.
	// Defaults to a random UUID.
	NewID func() string
}

// NewNormalizer returns a Normalizer for the given hostname.
func NewNormalizer(hostname string) *Normalizer {
	return &Normalizer{Hostname: hostname}
}

// Normalize rewrites msg in place so that Path, Message-Id, Date,
// Subject and Newsgroups each occur exactly once. Existing values are
// kept (the first occurrence wins); missing ones are synthesized.
// Newsgroups becomes groups followed by any groups already listed in
// the message. The final group list is returned. All other headers and
// the body are left untouched.
func (n *Normalizer) Normalize(msg *Message, groups []string) []string {
	now := n.now()

	n.keepFirstOr(msg, HeaderPath, func() string {
		return n.Hostname + "!not-for-mail"
	})
	n.keepFirstOr(msg, HeaderMessageID, func() string {
		return n.messageID(now)
	})
	if !msg.Header.Has(HeaderDate) {
		msg.Header.SetDate(now)
	}
	n.keepFirstOr(msg, HeaderDate, nil)
	n.keepFirstOr(msg, HeaderSubject, func() string {
		return DefaultSubject
	})

	merged := MergeGroups(groups, msg.Newsgroups())
	msg.Header.Set(HeaderNewsgroups, strings.Join(merged, ","))

	return merged
}

// keepFirstOr drops every occurrence of name but the first. If the
// header is absent and fallback is non-nil, it is set to fallback().
func (n *Normalizer) keepFirstOr(msg *Message, name string, fallback func() string) {
	fields := msg.Header.FieldsByKey(name)
	if !fields.Next() {
		if fallback != nil {
			msg.Header.Set(name, fallback())
		}
		return
	}
	for fields.Next() {
		fields.Del()
	}
}

func (n *Normalizer) messageID(now time.Time) string {
	id := n.NewID
	if id == nil {
		id = uuid.NewString
	}
	return fmt.Sprintf("<%s.%09d.%s@%s>",
		now.UTC().Format("20060102150405"), now.Nanosecond(), id(), n.Hostname)
}

func (n *Normalizer) now() time.Time {
	if n.Now != nil {
		return n.Now()
	}
	return time.Now()
}
