// Package registration owns the user registration document: its records,
// the file store that persists it and the HTTP endpoints that mutate it.
package registration

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Status is the lifecycle state of a registered user.
type Status string

const (
	// StatusPending marks a user whose email is not verified yet.
	StatusPending Status = "pending"
	// StatusActive marks a user who completed email verification.
	StatusActive Status = "active"
)

// Valid reports whether s is a known lifecycle state.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusActive
}

// UserRecord is a single registration as stored in the document.
type UserRecord struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Password         string     `json:"password"`
	Timestamp        time.Time  `json:"timestamp"`
	Status           Status     `json:"status"`
	RegistrationDate time.Time  `json:"registrationDate"`
	EmailVerified    bool       `json:"emailVerified"`
	EmailVerifiedAt  *time.Time `json:"emailVerifiedAt,omitempty"`
}

// Metadata is the static description block of the document.
type Metadata struct {
	Description string    `json:"description"`
	Version     string    `json:"version"`
	Created     time.Time `json:"created"`
}

// Document is the whole persisted store. TotalUsers and LastUpdate are
// derived and recomputed on every write.
type Document struct {
	Users      []UserRecord `json:"users"`
	LastUpdate *time.Time   `json:"lastUpdate"`
	TotalUsers int          `json:"totalUsers"`
	Metadata   Metadata     `json:"metadata"`
}

// FindByEmail returns the index of the record whose email is exactly email,
// or -1.
func (d *Document) FindByEmail(email string) int {
	for i := range d.Users {
		if d.Users[i].Email == email {
			return i
		}
	}
	return -1
}

// FindByEmailFold is FindByEmail ignoring case and surrounding spaces.
func (d *Document) FindByEmailFold(email string) int {
	key := strings.TrimSpace(email)
	for i := range d.Users {
		if strings.EqualFold(strings.TrimSpace(d.Users[i].Email), key) {
			return i
		}
	}
	return -1
}

// FindByID returns the index of the record with the given id or -1.
func (d *Document) FindByID(id string) int {
	for i := range d.Users {
		if d.Users[i].ID == id {
			return i
		}
	}
	return -1
}

// RegisterRequest carries the register payload. Only Email and Password are
// mandatory; the rest override generated defaults.
type RegisterRequest struct {
	Email            string     `json:"email" validate:"required"`
	Password         string     `json:"password" validate:"required"`
	Timestamp        ClientTime `json:"timestamp"`
	ID               string     `json:"id,omitempty"`
	Status           Status     `json:"status,omitempty"`
	RegistrationDate ClientTime `json:"registrationDate"`
	EmailVerified    bool       `json:"emailVerified,omitempty"`
}

// ClientTime is a timestamp supplied by a client. It decodes RFC 3339
// strings, plain dates and epoch milliseconds (as a number or a numeric
// string). Any other value decodes as the zero time, meaning unset.
type ClientTime struct {
	time.Time
}

var clientTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

// UnmarshalJSON never fails so an odd client clock cannot reject a
// registration.
func (c *ClientTime) UnmarshalJSON(data []byte) error {
	c.Time = parseClientTime(bytes.TrimSpace(data))
	return nil
}

// MarshalJSON writes RFC 3339, or null when unset.
func (c ClientTime) MarshalJSON() ([]byte, error) {
	if c.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(c.Time)
}

func parseClientTime(data []byte) time.Time {
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return time.Time{}
	}
	raw := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return time.Time{}
		}
		raw = strings.TrimSpace(raw)
		for _, layout := range clientTimeLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return t
			}
		}
	}
	ms, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms))
}

// RegisterResult is returned after a successful registration.
type RegisterResult struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// VerifyRequest carries the verify-email payload. Token is accepted as is.
type VerifyRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}
