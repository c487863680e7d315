// Package credentials persists the access/refresh token pair used by the
// authenticated client.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/connectly/connectly-client/internal/token"
)

// Pair is the credential pair issued at login.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Empty reports whether neither token is set.
func (p Pair) Empty() bool {
	return p.Access == "" && p.Refresh == ""
}

// Store persists a Pair plus the access token's expiry.
//
// Read never fails: a missing, unreadable or corrupt record is reported as
// absent (an anonymous session). Writes within one process are serialized so
// a writer never drops the sibling token.
type Store interface {
	Read(ctx context.Context) (Pair, bool)
	Write(ctx context.Context, p Pair) error
	// Update performs an atomic read-modify-write of the whole pair. fn sees
	// the zero Pair when nothing is stored.
	Update(ctx context.Context, fn func(Pair) Pair) error
	Clear(ctx context.Context) error
	// Expiry is the access token expiry, kept for display only.
	Expiry(ctx context.Context) (time.Time, bool)
}

// AccessToken returns the stored access token, or "" when anonymous.
func AccessToken(ctx context.Context, s Store) string {
	p, ok := s.Read(ctx)
	if !ok {
		return ""
	}
	return p.Access
}

// RefreshToken returns the stored refresh token, or "" when anonymous.
func RefreshToken(ctx context.Context, s Store) string {
	p, ok := s.Read(ctx)
	if !ok {
		return ""
	}
	return p.Refresh
}

// record is the serialized form shared by the file and keychain backends.
// The pair and the expiry live in separate fields, mirroring the two records
// the web client kept.
type record struct {
	JWT *Pair `json:"jwt,omitempty"`
	Exp int64 `json:"exp,omitempty"`
}

func newRecord(p Pair) record {
	r := record{JWT: &p}
	if ms, ok := token.ExpiresAtMillis(p.Access); ok {
		r.Exp = ms
	}
	return r
}

// errCorruptRecord marks a stored record that exists but cannot be decoded.
// Update replaces such a record; any other read failure aborts the update.
var errCorruptRecord = errors.New("corrupt credentials record")

func decodeRecord(b []byte) (record, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return record{}, fmt.Errorf("%w: %w", errCorruptRecord, err)
	}
	return r, nil
}

func (r record) pair() (Pair, bool) {
	if r.JWT == nil || r.JWT.Empty() {
		return Pair{}, false
	}
	return *r.JWT, true
}

func (r record) expiry() (time.Time, bool) {
	if r.Exp <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(r.Exp), true
}
