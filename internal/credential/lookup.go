package credential

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrCredentialsUnavailable is the only credential failure callers need
// to handle.
var ErrCredentialsUnavailable = errors.New("credentials unavailable")

// Credentials are the connection parameters found for a server/user pair.
type Credentials struct {
	Login    string
	Password string

	// Port is empty unless the credential file names one.
	Port string
}

// Lookup finds the password for user on server. The netrc-style file at
// path is consulted first; the system keyring is the fallback.
func Lookup(path, server, user string) (Credentials, error) {
	var fileErr error

	if path != "" {
		records, err := ParseFile(path)
		switch {
		case err == nil:
			if r, ok := Find(records, server, user); ok && r.Password != "" {
				login := r.Login
				if login == "" {
					login = user
				}
				return Credentials{Login: login, Password: r.Password, Port: r.Port}, nil
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			fileErr = err
		}
	}

	if user != "" {
		if password, err := Get(KeyFor(server, user)); err == nil {
			return Credentials{Login: user, Password: password}, nil
		}
	}

	if fileErr != nil {
		return Credentials{}, fmt.Errorf(
			"%w for %s@%s: %v", ErrCredentialsUnavailable, user, server, fileErr,
		)
	}
	return Credentials{}, fmt.Errorf(
		"%w for %s@%s", ErrCredentialsUnavailable, user, server,
	)
}
