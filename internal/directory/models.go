package directory

import "strings"

// Profile is the identity profile attached to a directory account.
type Profile struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Country   string `json:"country,omitempty"`
}

// Account is a directory account as returned by a search.
type Account struct {
	UID          string  `json:"UID"`
	Profile      Profile `json:"profile"`
	IsRegistered bool    `json:"isRegistered"`
	IsActive     bool    `json:"isActive"`
	// LoginProvider lists the identity providers attached to the account,
	// comma separated, e.g. "site" or "saml-idp1".
	LoginProvider string `json:"loginProvider"`
	// Tenant records which data center the account was found in.
	Tenant string `json:"-"`
}

// IsFederated reports whether the account signs in through an external
// identity provider.
func (a Account) IsFederated() bool {
	provider := strings.ToLower(a.LoginProvider)
	return strings.Contains(provider, "oidc") || strings.Contains(provider, "saml")
}

// LiteAccount carries the fields written when creating a lite account.
type LiteAccount struct {
	Email        string
	FirstName    string
	LastName     string
	InviterEmail string
	ClientID     string
	Location     string
}

// PublicKey is the RSA verification key material published by the directory.
// Modulus and Exponent are base64url-encoded unsigned big-endian integers.
type PublicKey struct {
	KeyID    string `json:"kid"`
	Modulus  string `json:"n"`
	Exponent string `json:"e"`
}
