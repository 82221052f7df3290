package route

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Map associates lower-cased email addresses with newsgroup names.
// A Map is never modified after it has been loaded.
type Map struct {
	groups map[string]string
}

// NewMap builds a Map from address/group pairs. Addresses are
// lower-cased; on duplicate addresses the last pair wins.
func NewMap(pairs map[string]string) *Map {
	m := &Map{groups: make(map[string]string, len(pairs))}
	for addr, group := range pairs {
		m.groups[strings.ToLower(addr)] = group
	}
	return m
}

// LoadMap reads a two-column mapping file of "<address> <group>" lines.
func LoadMap(path string) (*Map, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mapping file %s: %w", path, err)
	}
	defer f.Close()

	m, err := ReadMap(f)
	if err != nil {
		return nil, fmt.Errorf("reading mapping file %s: %w", path, err)
	}
	return m, nil
}

// ReadMap parses whitespace-separated address/group lines. Blank lines
// and lines starting with '#' are ignored, as are lines without both
// columns.
func ReadMap(r io.Reader) (*Map, error) {
	m := &Map{groups: make(map[string]string)}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		m.groups[strings.ToLower(fields[0])] = fields[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return m, nil
}

// Len returns the number of mapped addresses.
func (m *Map) Len() int {
	return len(m.groups)
}

// Lookup returns the group mapped to addr, which must already be
// lower-cased.
func (m *Map) Lookup(addr string) (string, bool) {
	group, ok := m.groups[addr]
	return group, ok
}

// Resolve maps lower-cased addresses to the set of groups they are
// routed to. Unknown addresses are ignored. The result preserves the
// order in which groups were first reached and holds no duplicates.
func (m *Map) Resolve(addrs []string) []string {
	var groups []string
	seen := make(map[string]bool)

	for _, addr := range addrs {
		group, ok := m.groups[addr]
		if !ok || seen[group] {
			continue
		}
		seen[group] = true
		groups = append(groups, group)
	}

	return groups
}
