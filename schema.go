package teamauth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SchemaVersion selects the backend wire contract. SchemaV2 is canonical;
// SchemaV1 is the older contract, migrated into the same result types.
type SchemaVersion int

const (
	SchemaV1 SchemaVersion = 1
	SchemaV2 SchemaVersion = 2
)

// ParseSchemaVersion accepts "1", "v1", "2", "v2". Empty means SchemaV2.
func ParseSchemaVersion(s string) (SchemaVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "2", "v2":
		return SchemaV2, nil
	case "1", "v1":
		return SchemaV1, nil
	}
	return 0, fmt.Errorf("unknown schema version %q", s)
}

func (v SchemaVersion) String() string {
	return fmt.Sprintf("v%d", int(v))
}

// exchangeReply is the union of every field either version may send.
type exchangeReply struct {
	AccessToken         string          `json:"accessToken"`
	Token               string          `json:"token"`
	User                json.RawMessage `json:"user"`
	RequiresOnboarding  bool            `json:"requiresOnboarding"`
	OnboardingRequired  bool            `json:"onboardingRequired"`
	SupabaseUID         string          `json:"supabaseUid"`
	Email               string          `json:"email"`
	SupabaseAccessToken string          `json:"supabaseAccessToken"`
}

// canonical migrates a reply into the v2 field set. For v1 the identity
// token was never echoed back, so the one sent in the request is used.
func (v SchemaVersion) canonical(r exchangeReply, requestToken string) exchangeReply {
	if v != SchemaV1 {
		return r
	}
	out := r
	if out.AccessToken == "" {
		out.AccessToken = r.Token
	}
	out.RequiresOnboarding = r.RequiresOnboarding || r.OnboardingRequired
	if out.RequiresOnboarding && out.SupabaseAccessToken == "" {
		out.SupabaseAccessToken = requestToken
	}
	return out
}

// Classify decodes an exchange reply body into exactly one result.
func (v SchemaVersion) Classify(body []byte, requestToken string) ExchangeResult {
	var raw exchangeReply
	if err := json.Unmarshal(body, &raw); err != nil {
		return Failed{
			Reason: "malformed server response",
			Err:    derive(ErrBackend, "malformed server response", err, nil),
		}
	}
	r := v.canonical(raw, requestToken)

	if r.AccessToken != "" && isJSONObject(r.User) {
		return Authenticated{ApplicationToken: r.AccessToken, User: decodeUser(r.User)}
	}

	if r.RequiresOnboarding && r.SupabaseAccessToken != "" {
		return OnboardingRequired{
			IdentityUID:         r.SupabaseUID,
			Email:               r.Email,
			IdentityAccessToken: r.SupabaseAccessToken,
		}
	}

	return Failed{
		Reason: "unexpected response shape",
		Err:    derive(ErrUnexpectedResponse, "", nil, map[string]any{"schema": v.String()}),
	}
}

type onboardingReply struct {
	AccessToken string
	User        *User
}

func (v SchemaVersion) decodeOnboarding(body []byte) (onboardingReply, error) {
	var raw exchangeReply
	if len(bytes.TrimSpace(body)) == 0 {
		return onboardingReply{}, nil
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return onboardingReply{}, err
	}
	r := v.canonical(raw, "")

	out := onboardingReply{AccessToken: r.AccessToken}
	if isJSONObject(r.User) {
		out.User = &User{}
		if err := json.Unmarshal(r.User, out.User); err != nil {
			return onboardingReply{}, err
		}
	}
	return out, nil
}

// onboardingPayload builds the request body. v1 sends proficiency as its
// numeric level and the portfolio as a bare URL.
func (v SchemaVersion) onboardingPayload(token, authProvider string, p OnboardingProfile) map[string]any {
	payload := map[string]any{
		"accessToken":  token,
		"authProvider": authProvider,
		"name":         p.Name,
		"email":        p.Email,
		"phone":        p.Phone,
		"githubId":     p.GithubID,
		"techStacks":   p.TechStacks,
		"positions":    p.Positions,
		"proficiency":  string(p.Proficiency),
	}
	if p.Portfolio != nil {
		payload["portfolio"] = p.Portfolio
	}

	if v == SchemaV1 {
		payload["proficiency"] = p.Proficiency.Level()
		payload["techStack"] = p.TechStacks
		payload["position"] = p.Positions
		delete(payload, "techStacks")
		delete(payload, "positions")
		if p.Portfolio != nil {
			payload["portfolio"] = p.Portfolio.GithubURL
		}
	}
	return payload
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// decodeUser never rejects a user object. When the record does not match
// User exactly it is decoded field by field and bad fields are dropped.
// Numeric ids keep their decimal text.
func decodeUser(raw json.RawMessage) *User {
	user := &User{}
	if err := json.Unmarshal(raw, user); err == nil {
		return user
	}

	var fields map[string]json.RawMessage
	*user = User{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return user
	}

	targets := map[string]any{
		"supabaseUid":     &user.IdentityUID,
		"authProvider":    &user.AuthProvider,
		"email":           &user.Email,
		"name":            &user.Name,
		"phone":           &user.Phone,
		"githubId":        &user.GithubID,
		"profileImageUrl": &user.ProfileImageURL,
		"techStacks":      &user.TechStacks,
		"positions":       &user.Positions,
		"proficiency":     &user.Proficiency,
		"portfolio":       &user.Portfolio,
		"createdAt":       &user.CreatedAt,
		"updatedAt":       &user.UpdatedAt,
	}
	for key, value := range fields {
		if key == "id" {
			user.ID = looseID(value)
			continue
		}
		dst, ok := targets[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, dst); err != nil {
			clearField(dst)
		}
	}
	return user
}

func looseID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// clearField resets a target left half-written by a failed decode.
func clearField(dst any) {
	switch v := dst.(type) {
	case *string:
		*v = ""
	case *[]string:
		*v = nil
	case *Proficiency:
		*v = ""
	case **Portfolio:
		*v = nil
	case **time.Time:
		*v = nil
	}
}
