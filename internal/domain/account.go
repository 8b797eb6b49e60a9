package domain

// Account identifies a ledger holder: a user, the engine custody, the treasury or the
// developer fee recipient.
type Account string

// String returns the string representation of Account.
func (a Account) String() string {
	return string(a)
}

// IsZero reports whether the account is unset.
func (a Account) IsZero() bool {
	return a == ""
}

// TokenID identifies a fungible token tracked by the ledger.
type TokenID string

// String returns the string representation of TokenID.
func (t TokenID) String() string {
	return string(t)
}
