// Package googleopts builds Google API client options from the configured
// credentials.
package googleopts

import (
	"fmt"
	"os"
	"strings"

	"google.golang.org/api/option"
)

// Credentials selects how Google clients authenticate. Inline JSON wins
// over a file; with neither, Application Default Credentials apply.
type Credentials struct {
	JSON string
	File string
}

// Source describes which credentials will be used, for logs.
func (c Credentials) Source() string {
	switch {
	case strings.TrimSpace(c.JSON) != "":
		return "inline_json"
	case strings.TrimSpace(c.File) != "":
		return "file"
	}
	return "application_default"
}

// ClientOptions returns the options for a Google API client limited to
// scopes.
func (c Credentials) ClientOptions(scopes ...string) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	switch c.Source() {
	case "inline_json":
		opts = append(opts, option.WithCredentialsJSON([]byte(strings.TrimSpace(c.JSON))))
	case "file":
		path := strings.TrimSpace(c.File)
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("google credentials file: %w", err)
		}
		opts = append(opts, option.WithCredentialsFile(path))
	}
	if len(scopes) > 0 {
		opts = append(opts, option.WithScopes(scopes...))
	}
	return opts, nil
}
