package teamauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/nyaruka/phonenumbers"
)

// Proficiency is the self-assessed skill tier.
type Proficiency string

const (
	ProficiencyUnknown  Proficiency = "UNKNOWN"
	ProficiencyBronze   Proficiency = "BRONZE"
	ProficiencySilver   Proficiency = "SILVER"
	ProficiencyGold     Proficiency = "GOLD"
	ProficiencyPlatinum Proficiency = "PLATINUM"
	ProficiencyDiamond  Proficiency = "DIAMOND"
)

// proficiencyLevels is ordered by the legacy numeric encoding.
var proficiencyLevels = []Proficiency{
	ProficiencyUnknown,
	ProficiencyBronze,
	ProficiencySilver,
	ProficiencyGold,
	ProficiencyPlatinum,
	ProficiencyDiamond,
}

// Proficiencies lists the accepted tiers.
func Proficiencies() []Proficiency {
	return append([]Proficiency(nil), proficiencyLevels...)
}

// ParseProficiency accepts a tier name (any case) or its legacy number.
func ParseProficiency(s string) (Proficiency, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return ProficiencyFromLevel(n)
	}
	p := Proficiency(strings.ToUpper(s))
	if !p.Valid() {
		return "", fmt.Errorf("unknown proficiency %q", s)
	}
	return p, nil
}

// ProficiencyFromLevel maps the legacy numeric encoding.
func ProficiencyFromLevel(n int) (Proficiency, error) {
	if n < 0 || n >= len(proficiencyLevels) {
		return "", fmt.Errorf("proficiency level %d out of range", n)
	}
	return proficiencyLevels[n], nil
}

// Level returns the legacy numeric encoding, or -1 when invalid.
func (p Proficiency) Level() int {
	for i, lvl := range proficiencyLevels {
		if lvl == p {
			return i
		}
	}
	return -1
}

// Valid reports membership in the fixed set.
func (p Proficiency) Valid() bool {
	return p.Level() >= 0
}

// UnmarshalJSON accepts both the string and the legacy numeric encodings.
// Tiers outside the known set decode as ProficiencyUnknown.
func (p *Proficiency) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*p = ""
			return nil
		}
		parsed, err := ParseProficiency(s)
		if err != nil {
			parsed = ProficiencyUnknown
		}
		*p = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("proficiency: %w", err)
	}
	parsed, err := ProficiencyFromLevel(n)
	if err != nil {
		parsed = ProficiencyUnknown
	}
	*p = parsed
	return nil
}

// TechStacks is the catalog offered by the onboarding wizard.
var TechStacks = []string{
	"REACT", "TYPESCRIPT", "JAVASCRIPT", "NEXTJS", "VUEJS", "ANGULAR", "SVELTE",
	"NODEJS", "PYTHON", "RUBY", "JAVA", "CSHARP", "PHP", "GO", "DJANGO",
	"FASTAPI", "TENSORFLOW", "NESTJS",
}

// Positions is the catalog of team roles.
var Positions = []string{"FRONTEND", "BACKEND", "AI", "MOBILE", "PM"}

// DefaultPhoneRegion is used to parse numbers written without a country code.
const DefaultPhoneRegion = "KR"

// Portfolio is optional supporting material.
type Portfolio struct {
	GithubURL string `json:"githubUrl,omitempty"`
}

// OnboardingProfile is assembled across the two wizard steps.
type OnboardingProfile struct {
	Name        string      `json:"name"`
	Email       string      `json:"email,omitempty"`
	Phone       string      `json:"phone"`
	GithubID    string      `json:"githubId"`
	TechStacks  []string    `json:"techStacks"`
	Positions   []string    `json:"positions"`
	Proficiency Proficiency `json:"proficiency"`
	Portfolio   *Portfolio  `json:"portfolio,omitempty"`
}

// Normalize trims fields, upper-cases and deduplicates the tag sets, and
// formats the phone number when it parses.
func (p OnboardingProfile) Normalize(region string) OnboardingProfile {
	out := p
	out.Name = strings.TrimSpace(p.Name)
	out.Email = strings.TrimSpace(p.Email)
	out.GithubID = strings.TrimPrefix(strings.TrimSpace(p.GithubID), "@")
	out.TechStacks = normalizeSet(p.TechStacks)
	out.Positions = normalizeSet(p.Positions)
	out.Proficiency = Proficiency(strings.ToUpper(strings.TrimSpace(string(p.Proficiency))))
	out.Phone = strings.TrimSpace(p.Phone)
	if formatted, err := NormalizePhone(out.Phone, region); err == nil {
		out.Phone = formatted
	}
	if p.Portfolio != nil {
		url := strings.TrimSpace(p.Portfolio.GithubURL)
		if url == "" {
			out.Portfolio = nil
		} else {
			out.Portfolio = &Portfolio{GithubURL: url}
		}
	}
	return out
}

// Validate checks the profile. Call Normalize first.
func (p OnboardingProfile) Validate(region string) error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&p.Phone, validation.Required, validation.By(phoneRule(region))),
		validation.Field(&p.GithubID, validation.Required, validation.Length(1, 39)),
		validation.Field(&p.TechStacks, validation.Required, validation.Each(validation.In(toAny(TechStacks)...))),
		validation.Field(&p.Positions, validation.Required, validation.Each(validation.In(toAny(Positions)...))),
		validation.Field(&p.Proficiency, validation.Required, validation.By(func(any) error {
			if !p.Proficiency.Valid() {
				return fmt.Errorf("must be one of %v", proficiencyLevels)
			}
			return nil
		})),
		validation.Field(&p.Portfolio, validation.By(func(any) error {
			if p.Portfolio == nil {
				return nil
			}
			return validation.Validate(p.Portfolio.GithubURL, validation.Required, is.URL)
		})),
	)
	return validationError(profileMessage(err), err)
}

// NormalizePhone validates number for region and returns its national format.
func NormalizePhone(number, region string) (string, error) {
	if region == "" {
		region = DefaultPhoneRegion
	}
	num, err := phonenumbers.Parse(number, region)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("invalid phone number")
	}
	return phonenumbers.Format(num, phonenumbers.NATIONAL), nil
}

func phoneRule(region string) func(any) error {
	return func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if _, err := NormalizePhone(s, region); err != nil {
			return fmt.Errorf("must be a valid phone number")
		}
		return nil
	}
}

func profileMessage(err error) string {
	var fields validation.Errors
	if err == nil {
		return ""
	}
	if !errors.As(err, &fields) {
		return "invalid onboarding profile"
	}
	order := []struct{ field, msg string }{
		{"techStacks", "select at least one tech stack"},
		{"positions", "select at least one position"},
		{"name", "enter your name"},
		{"phone", "enter a valid phone number"},
		{"githubId", "enter your GitHub ID"},
		{"proficiency", "select your proficiency"},
		{"portfolio", "portfolio must be a valid URL"},
	}
	for _, o := range order {
		if fields[o.field] != nil {
			return o.msg
		}
	}
	return "invalid onboarding profile"
}

func normalizeSet(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToUpper(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// OnboardingClient completes onboarding for identity accounts with no
// application user yet. It does not persist anything.
type OnboardingClient struct {
	backend      *BackendClient
	path         string
	authProvider string
	region       string
	schema       SchemaVersion
	logger       Logger
}

// OnboardingOption configures the OnboardingClient.
type OnboardingOption func(*OnboardingClient)

// WithOnboardingPath overrides the endpoint path.
func WithOnboardingPath(path string) OnboardingOption {
	return func(c *OnboardingClient) {
		if path != "" {
			c.path = path
		}
	}
}

// WithOnboardingSchema selects the wire schema.
func WithOnboardingSchema(v SchemaVersion) OnboardingOption {
	return func(c *OnboardingClient) {
		c.schema = v
	}
}

// WithPhoneRegion sets the default phone region.
func WithPhoneRegion(region string) OnboardingOption {
	return func(c *OnboardingClient) {
		if region != "" {
			c.region = region
		}
	}
}

// WithOnboardingLogger sets the logger.
func WithOnboardingLogger(l Logger) OnboardingOption {
	return func(c *OnboardingClient) {
		c.logger = normalizeLogger(l)
	}
}

// NewOnboardingClient builds a client posting to /auth/onboard.
func NewOnboardingClient(backend *BackendClient, opts ...OnboardingOption) *OnboardingClient {
	c := &OnboardingClient{
		backend:      backend,
		path:         "/auth/onboard",
		authProvider: "supabase",
		region:       DefaultPhoneRegion,
		schema:       SchemaV2,
		logger:       defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Complete submits the profile with the identity token and returns the
// application token on success.
func (c *OnboardingClient) Complete(ctx context.Context, identityAccessToken string, profile OnboardingProfile) (*Authenticated, error) {
	if strings.TrimSpace(identityAccessToken) == "" {
		return nil, derive(ErrValidation, "missing identity access token; sign in again", nil, nil)
	}

	profile = profile.Normalize(c.region)
	if err := profile.Validate(c.region); err != nil {
		return nil, err
	}

	payload := c.schema.onboardingPayload(identityAccessToken, c.authProvider, profile)

	resp, err := c.backend.Send(ctx, http.MethodPost, c.path, payload)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, c.backend.statusError(http.MethodPost, c.path, resp, "onboarding failed")
	}

	reply, err := c.schema.decodeOnboarding(resp.Body)
	if err != nil {
		c.logger.Error("onboarding reply decode failed", "error", err, "body", string(resp.Body))
		return nil, derive(ErrBackend, "malformed server response", err, nil)
	}
	if reply.AccessToken == "" {
		c.logger.Warn("onboarding reply carried no access token", "status", resp.Status)
		return nil, derive(ErrMissingToken, "onboarding finished but no token was returned", nil, map[string]any{
			"status": resp.Status,
		})
	}

	return &Authenticated{ApplicationToken: reply.AccessToken, User: reply.User}, nil
}
