package members

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when no member matches the lookup.
var ErrNotFound = errors.New("member not found")

// Member is the public projection of a registered member.
type Member struct {
	ID                      int       `json:"id"`
	FirstName               string    `json:"first_name"`
	LastName                string    `json:"last_name"`
	EmailAddress            string    `json:"email_address"`
	PhoneNumber             string    `json:"phone_number,omitempty"`
	Description             string    `json:"description,omitempty"`
	Active                  bool      `json:"active"`
	AllowPrivacyInfoSharing bool      `json:"allow_privacy_info_sharing"`
	CreatedAt               time.Time `json:"created_at"`
}

// ExtendedMember carries the security material needed for one-time-code
// login on top of the public projection. Never serialized to clients.
type ExtendedMember struct {
	Member
	ActivationString string
	ActivationTime   time.Time
	OTPSecretCipher  []byte
	OTPNonce         []byte
}

// Registration is the input for registering a new, inactive member.
type Registration struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number,omitempty"`
}

// SearchResult is one page of a member search.
type SearchResult struct {
	Items      []Member `json:"items"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalCount int      `json:"total_count"`
}
