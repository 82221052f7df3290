package credential

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one machine entry of a netrc-style credential file.
type Record struct {
	Machine  string
	Login    string
	Password string
	Port     string
	Default  bool
}

// ParseFile reads every record from a netrc-style file.
func ParseFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return records, nil
}

// Parse reads netrc-style records. Tokens are whitespace separated;
// "machine" and "default" start a record and "login", "password",
// "port" and "account" take one value each. Comments start with '#'.
// "macdef" bodies are skipped up to the next blank line.
func Parse(r io.Reader) ([]Record, error) {
	var (
		records []Record
		cur     *Record
		tokens  []string
	)

	scanner := bufio.NewScanner(r)
	inMacro := false
	for scanner.Scan() {
		line := scanner.Text()
		if inMacro {
			if strings.TrimSpace(line) == "" {
				inMacro = false
			}
			continue
		}
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}

		fields := strings.Fields(line)
		for i := 0; i < len(fields); i++ {
			if fields[i] == "macdef" {
				inMacro = true
				fields = fields[:i]
				break
			}
		}
		tokens = append(tokens, fields...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	flush := func() {
		if cur != nil {
			records = append(records, *cur)
		}
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch tok {
		case "default":
			flush()
			cur = &Record{Default: true}
			continue
		case "machine", "login", "password", "port", "account":
		default:
			return nil, fmt.Errorf("unexpected token %q", tok)
		}

		if i+1 >= len(tokens) {
			return nil, fmt.Errorf("missing value for %q", tok)
		}
		i++
		value := tokens[i]

		if tok == "machine" {
			flush()
			cur = &Record{Machine: value}
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("%q before any machine entry", tok)
		}
		switch tok {
		case "login":
			cur.Login = value
		case "password":
			cur.Password = value
		case "port":
			cur.Port = value
		}
	}
	flush()

	return records, nil
}

// Find returns the first record for server whose login is user (or
// which has no login when user is empty). A default record matches when
// no machine record does.
func Find(records []Record, server, user string) (Record, bool) {
	var def *Record
	for i := range records {
		r := records[i]
		if r.Default {
			if def == nil {
				def = &records[i]
			}
			continue
		}
		if !strings.EqualFold(r.Machine, server) {
			continue
		}
		if user == "" || r.Login == user {
			return r, true
		}
	}

	if def != nil && (user == "" || def.Login == "" || def.Login == user) {
		return *def, true
	}
	return Record{}, false
}
