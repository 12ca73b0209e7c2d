// Package noteid provides type-safe entity identifiers for fieldnote. An
// identifier is either offline (minted locally, carries a reserved prefix)
// or permanent (assigned by the server, any other string). The prefix test
// is the single source of truth for the distinction; no side table exists.
//
// The reserved prefix is a configuration contract with the server: the API
// never issues an identifier starting with "offline:". The client cannot
// enforce that at runtime.
//
// This is a leaf package with zero external dependencies beyond stdlib.
package noteid

import (
	"database/sql"
	"database/sql/driver"
	"encoding"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// OfflinePrefix is the reserved marker carried by every client-minted
// identifier. Permanent identifiers never start with it.
const OfflinePrefix = "offline:"

// Kind classifies an identifier as offline or permanent.
type Kind int

const (
	// KindPermanent is a server-assigned, authoritative identifier.
	KindPermanent Kind = iota
	// KindOffline is a client-minted identifier not yet confirmed by the server.
	KindOffline
)

// String returns "offline" or "permanent" for logging.
func (k Kind) String() string {
	if k == KindOffline {
		return "offline"
	}

	return "permanent"
}

// ID is an entity identifier. The zero value (ID{}) represents an absent
// identifier. Comparison with == is valid; Equal exists for symmetry with
// the rest of the codebase.
type ID struct {
	value string
}

// New wraps a raw identifier string. Empty input returns the zero ID.
func New(raw string) ID {
	return ID{value: raw}
}

// mintCounter disambiguates identifiers minted within the same millisecond.
var mintCounter atomic.Int64

// NewOffline mints an offline identifier from the given seed, typically the
// current time in milliseconds. Deterministic in the seed up to the
// process-local counter suffix.
func NewOffline(seed int64) ID {
	n := mintCounter.Add(1)
	return ID{value: OfflinePrefix + strconv.FormatInt(seed, 10) + "-" + strconv.FormatInt(n, 10)}
}

// IsOffline reports whether the raw identifier string carries the offline
// prefix. O(1), side-effect free. This is the sole way the engine branches
// online-vs-offline behavior.
func IsOffline(raw string) bool {
	return strings.HasPrefix(raw, OfflinePrefix)
}

// Kind returns the identifier's classification, derived purely from its
// lexical form.
func (id ID) Kind() Kind {
	if IsOffline(id.value) {
		return KindOffline
	}

	return KindPermanent
}

// IsOffline reports whether this identifier was minted locally.
func (id ID) IsOffline() bool {
	return id.Kind() == KindOffline
}

// String returns the raw identifier string.
func (id ID) String() string {
	return id.value
}

// IsZero reports whether this is the zero-value (absent) identifier.
func (id ID) IsZero() bool {
	return id.value == ""
}

// Equal reports whether two identifiers are identical.
func (id ID) Equal(other ID) bool {
	return id.value == other.value
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	*id = New(string(text))
	return nil
}

// Scan implements sql.Scanner for reading identifiers from SQLite. SQL NULL
// produces the zero ID.
func (id *ID) Scan(src any) error {
	if src == nil {
		*id = ID{}
		return nil
	}

	switch v := src.(type) {
	case string:
		*id = New(v)
		return nil
	case []byte:
		*id = New(string(v))
		return nil
	default:
		return fmt.Errorf("noteid.ID.Scan: unsupported type %T", src)
	}
}

// Value implements driver.Valuer for writing identifiers to SQLite. The zero
// ID writes SQL NULL to match the Scan behavior.
func (id ID) Value() (driver.Value, error) {
	if id.IsZero() {
		return nil, nil
	}

	return id.value, nil
}

// Compile-time interface assertions.
var (
	_ encoding.TextMarshaler   = ID{}
	_ encoding.TextUnmarshaler = (*ID)(nil)
	_ fmt.Stringer             = ID{}
	_ driver.Valuer            = ID{}
	_ sql.Scanner              = (*ID)(nil)
)
