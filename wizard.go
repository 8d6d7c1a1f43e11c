package teamauth

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// WizardStep identifies a page of the onboarding wizard.
type WizardStep string

const (
	WizardStepSelection WizardStep = "selection"
	WizardStepPersonal  WizardStep = "personal"
)

// SelectionStep is the first page: what you build and in which role.
type SelectionStep struct {
	TechStacks []string
	Positions  []string
	Portfolio  string
}

// PersonalStep is the second page: who you are.
type PersonalStep struct {
	Name        string
	Phone       string
	GithubID    string
	Proficiency Proficiency
}

// OnboardingWizard builds an OnboardingProfile across two steps. The
// selection step must be accepted before the personal step.
type OnboardingWizard struct {
	step    WizardStep
	region  string
	profile OnboardingProfile
}

// NewOnboardingWizard starts on the selection step. email is carried from
// the pending onboarding.
func NewOnboardingWizard(email, region string) *OnboardingWizard {
	if region == "" {
		region = DefaultPhoneRegion
	}
	return &OnboardingWizard{
		step:    WizardStepSelection,
		region:  region,
		profile: OnboardingProfile{Email: strings.TrimSpace(email)},
	}
}

// Step returns the current page.
func (w *OnboardingWizard) Step() WizardStep {
	return w.step
}

// Progress is the percentage shown on the progress bar.
func (w *OnboardingWizard) Progress() int {
	if w.step == WizardStepPersonal {
		return 100
	}
	return 66
}

// SubmitSelection validates the first page and advances.
func (w *OnboardingWizard) SubmitSelection(s SelectionStep) error {
	s.TechStacks = normalizeSet(s.TechStacks)
	s.Positions = normalizeSet(s.Positions)
	s.Portfolio = strings.TrimSpace(s.Portfolio)

	if len(s.TechStacks) == 0 {
		return derive(ErrValidation, "select at least one tech stack", nil, nil)
	}
	if len(s.Positions) == 0 {
		return derive(ErrValidation, "select at least one position", nil, nil)
	}
	err := validation.Errors{
		"techStacks": validation.Validate(s.TechStacks, validation.Each(validation.In(toAny(TechStacks)...))),
		"positions":  validation.Validate(s.Positions, validation.Each(validation.In(toAny(Positions)...))),
		"portfolio":  validation.Validate(s.Portfolio, is.URL),
	}.Filter()
	if err != nil {
		return validationError(profileMessage(err), err)
	}

	w.profile.TechStacks = s.TechStacks
	w.profile.Positions = s.Positions
	w.profile.Portfolio = nil
	if s.Portfolio != "" {
		w.profile.Portfolio = &Portfolio{GithubURL: s.Portfolio}
	}
	w.step = WizardStepPersonal
	return nil
}

// Back returns to the selection page keeping what was entered.
func (w *OnboardingWizard) Back() {
	w.step = WizardStepSelection
}

// SubmitPersonal validates the whole profile and returns it.
func (w *OnboardingWizard) SubmitPersonal(p PersonalStep) (OnboardingProfile, error) {
	if w.step != WizardStepPersonal {
		return OnboardingProfile{}, derive(ErrValidation, "complete the first step before continuing", nil, nil)
	}

	profile := w.profile
	profile.Name = p.Name
	profile.Phone = p.Phone
	profile.GithubID = p.GithubID
	profile.Proficiency = p.Proficiency

	profile = profile.Normalize(w.region)
	if err := profile.Validate(w.region); err != nil {
		return OnboardingProfile{}, err
	}
	w.profile = profile
	return profile, nil
}
