// Package ids mints request identifiers.
package ids

import "github.com/oklog/ulid/v2"

// New returns a lexicographically sortable identifier. Request ids use
// these so log lines for one request collate in emission order.
func New() string {
	return ulid.Make().String()
}
