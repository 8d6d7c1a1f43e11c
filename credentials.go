package teamauth

import (
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// DefaultInstitutionDomains are the email domains accepted at sign-up.
var DefaultInstitutionDomains = []string{"korea.ac.kr", "korea.edu"}

// EmailPolicy decides which addresses may register.
type EmailPolicy struct {
	Domains []string
	pattern *regexp.Regexp
}

// NewEmailPolicy compiles a policy for the given domains, falling back to
// DefaultInstitutionDomains.
func NewEmailPolicy(domains ...string) *EmailPolicy {
	clean := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			clean = append(clean, d)
		}
	}
	if len(clean) == 0 {
		clean = append(clean, DefaultInstitutionDomains...)
	}

	quoted := make([]string, len(clean))
	for i, d := range clean {
		quoted[i] = regexp.QuoteMeta(d)
	}

	return &EmailPolicy{
		Domains: clean,
		pattern: regexp.MustCompile(`^[^\s@]+@(` + strings.Join(quoted, "|") + `)$`),
	}
}

// Allows reports whether email, once trimmed, belongs to an institution domain.
func (p *EmailPolicy) Allows(email string) bool {
	if p == nil || p.pattern == nil {
		p = NewEmailPolicy()
	}
	return p.pattern.MatchString(strings.TrimSpace(email))
}

// Check returns ErrValidation when email is not an institutional address.
func (p *EmailPolicy) Check(email string) error {
	if p == nil {
		p = NewEmailPolicy()
	}
	email = strings.TrimSpace(email)
	err := validation.Errors{"email": validation.Validate(email, validation.Required, p.Rule())}.Filter()
	return validationError("use your institutional email address ("+strings.Join(p.Domains, " or ")+")", err)
}

// Rule exposes the policy as an ozzo rule.
func (p *EmailPolicy) Rule() validation.Rule {
	return validation.By(func(value any) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}
		if !p.Allows(s) {
			return errors.New("must be an institutional address (" + strings.Join(p.Domains, ", ") + ")")
		}
		return nil
	})
}

// SignUpRequest is the sign-up form payload.
type SignUpRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate runs local checks before any provider call.
func (r SignUpRequest) Validate(policy *EmailPolicy) error {
	if policy == nil {
		policy = NewEmailPolicy()
	}
	email := strings.TrimSpace(r.Email)
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.By(func(any) error {
			return policy.Rule().Validate(email)
		})),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 72)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
	if err == nil {
		return nil
	}

	message := "invalid sign-up request"
	var fields validation.Errors
	if errors.As(err, &fields) {
		switch {
		case fields["email"] != nil:
			message = "use your institutional email address (" + strings.Join(policy.Domains, " or ") + ")"
		case fields["password"] != nil:
			message = "password must be between 6 and 72 characters"
		case fields["confirm_password"] != nil:
			message = "passwords do not match"
		}
	}
	return validationError(message, err)
}

// Credentials returns the trimmed credentials for the provider call.
func (r SignUpRequest) Credentials() Credentials {
	return Credentials{Email: strings.TrimSpace(r.Email), Password: r.Password}
}

// Validate checks the login form.
func (c Credentials) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.EmailFormat),
		validation.Field(&c.Password, validation.Required),
	)
	return validationError("email and password are required", err)
}

// ValidateStringEquals returns a rule that requires the value to equal str.
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// validationError converts ozzo errors into ErrValidation with per-field metadata.
func validationError(message string, err error) error {
	if err == nil {
		return nil
	}

	meta := map[string]any{}
	var fields validation.Errors
	if errors.As(err, &fields) {
		for name, ferr := range fields {
			meta[name] = ferr.Error()
		}
	} else {
		meta["error"] = err.Error()
	}

	return derive(ErrValidation, message, err, meta)
}

func validateEmail(email string) error {
	err := validation.Validate(email, validation.Required, is.EmailFormat)
	return validationError("enter a valid email address", err)
}

func validatePasswordChange(password, confirm string) error {
	req := SignUpRequest{Password: password, ConfirmPassword: confirm}
	err := validation.ValidateStruct(&req,
		validation.Field(&req.Password, validation.Required, validation.Length(6, 72)),
		validation.Field(&req.ConfirmPassword, validation.Required, validation.By(ValidateStringEquals(req.Password))),
	)
	if err == nil {
		return nil
	}

	message := "password must be between 6 and 72 characters"
	var fields validation.Errors
	if errors.As(err, &fields) && fields["password"] == nil {
		message = "passwords do not match"
	}
	return validationError(message, err)
}
