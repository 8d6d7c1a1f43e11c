package supabase

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	teamauth "github.com/teamup-ku/go-teamauth"
)

type userReply struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata"`
}

func (u userReply) identity() teamauth.IdentityUser {
	return teamauth.IdentityUser{
		ID:       u.ID,
		Email:    u.Email,
		Metadata: u.UserMetadata,
	}
}

// sessionReply covers /token and /signup. Signup without a session returns
// the user fields at the top level.
type sessionReply struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	User         *userReply `json:"user"`

	userReply
}

func (r sessionReply) bareUser() teamauth.IdentityUser {
	if r.User != nil {
		return r.User.identity()
	}
	return r.userReply.identity()
}

func (r sessionReply) session(now time.Time) *teamauth.IdentitySession {
	s := &teamauth.IdentitySession{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		User:         r.bareUser(),
	}
	switch {
	case r.ExpiresAt > 0:
		s.ExpiresAt = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		s.ExpiresAt = now.Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	return s
}

// apiError is the union of GoTrue error shapes across versions.
type apiError struct {
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Code             any    `json:"code"`
}

func decodeAPIError(body []byte) apiError {
	var e apiError
	_ = json.Unmarshal(body, &e)
	return e
}

func (e apiError) code() string {
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	if s, ok := e.Code.(string); ok && s != "" {
		return s
	}
	return e.Error
}

func (e apiError) message(status int) string {
	for _, m := range []string{e.Msg, e.ErrorDescription, e.Message, e.Error} {
		if m = strings.TrimSpace(m); m != "" {
			return m
		}
	}
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("identity provider error: %s", strings.ToLower(text))
	}
	return "identity provider error"
}

func (e apiError) metadata() map[string]any {
	meta := map[string]any{}
	if e.Error != "" {
		meta["error"] = e.Error
	}
	if e.ErrorDescription != "" {
		meta["error_description"] = e.ErrorDescription
	}
	if e.ErrorCode != "" {
		meta["error_code"] = e.ErrorCode
	}
	return meta
}
