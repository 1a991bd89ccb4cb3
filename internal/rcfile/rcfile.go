// Package rcfile loads the optional run-control file that keeps the SMTP
// password and ad hoc config overrides out of the tracked config file
// (spec.md §6): ".tailnmailrc" in the working directory, then
// "$HOME/.tailnmailrc", then "/etc/tailnmailrc" — the first one found wins.
package rcfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// RC is the decoded run-control file.
type RC struct {
	// SMTPPassword authenticates SMTP+TLS delivery when the config's
	// MailAuth names a user (spec.md §6).
	SMTPPassword string `toml:"smtp_password"`

	// Overrides maps a config KEY name to a replacement value, decoded
	// from the [overrides] table. It is not applied to the parsed
	// config: nothing in the program reads it after Load.
	Overrides map[string]string `toml:"overrides"`
}

// SearchPaths returns the ordered candidate rc-file locations, most
// specific first.
func SearchPaths() []string {
	var paths []string
	paths = append(paths, ".tailnmailrc")
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".tailnmailrc"))
	}
	paths = append(paths, "/etc/tailnmailrc")
	return paths
}

// Load walks SearchPaths and decodes the first file that exists. It
// returns a zero-value RC and an empty path (not an error) when none of
// the candidates exist — an rc file is optional.
func Load() (*RC, string, error) {
	for _, path := range SearchPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		var rc RC
		if _, err := toml.DecodeFile(path, &rc); err != nil {
			return nil, "", fmt.Errorf("parsing %s: %w", path, err)
		}
		return &rc, path, nil
	}
	return &RC{}, "", nil
}
