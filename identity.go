package teamauth

import "time"

// Credentials are collected per sign-in or sign-up attempt and never stored.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// IdentityUser is the subset of the provider user the flow depends on.
type IdentityUser struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// IdentitySession is owned by the provider. The orchestrator only borrows
// AccessToken.
type IdentitySession struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type,omitempty"`
	ExpiresAt    time.Time    `json:"expires_at,omitempty"`
	User         IdentityUser `json:"user"`
}

// Valid reports whether the session can be used for an exchange.
func (s *IdentitySession) Valid() bool {
	return s != nil && s.AccessToken != ""
}

// SignUpOptions carries data forwarded to the provider on registration.
type SignUpOptions struct {
	// EmailRedirectTo is the confirmation link target.
	EmailRedirectTo string
	Data            map[string]any
}

// SignUpResult is either pending email confirmation (Session nil) or an
// immediately active session.
type SignUpResult struct {
	User    IdentityUser
	Session *IdentitySession
}

// PendingConfirmation reports whether the provider is waiting on the email link.
func (r *SignUpResult) PendingConfirmation() bool {
	return r != nil && !r.Session.Valid()
}
