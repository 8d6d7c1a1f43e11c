package teamauth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

// DefaultRedirectDelay is how long a failed callback page waits before
// sending the user back to the login page.
const DefaultRedirectDelay = 3 * time.Second

// Callback failure codes appended to the login redirect.
const (
	CallbackErrorAuthentication = "authentication_failed"
	CallbackErrorNoSession      = "no_session"
	CallbackErrorUnexpected     = "unexpected_error"
)

// Outcome is the result of one orchestrator entry point. Errors never
// escape as control flow; they are reported in Err and Message.
type Outcome struct {
	State         FlowState
	Message       string
	Pending       *OnboardingRequired
	User          *User
	Identity      *IdentityUser
	RedirectURL   string
	RedirectAfter time.Duration
	Err           error
}

// Succeeded reports whether the outcome carries no error.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// CallbackParams are the query parameters of the provider redirect.
type CallbackParams struct {
	Code             string
	CodeVerifier     string
	Error            string
	ErrorDescription string
}

// OAuthRequest is a prepared provider redirect. The verifier must be kept
// until the callback arrives.
type OAuthRequest struct {
	URL          string
	CodeVerifier string
	RedirectTo   string
}

// Orchestrator drives the handshake: identity sign-in, backend exchange,
// onboarding and token persistence. One run at a time.
type Orchestrator struct {
	identity   IdentityClient
	exchanger  Exchanger
	onboarding OnboardingCompleter
	session    *SessionContext
	policy     *EmailPolicy
	machine    *FlowStateMachine

	activitySink  ActivitySink
	logger        Logger
	appURL        string
	callbackPath  string
	callbackURL   string
	redirectDelay time.Duration
	now           func() time.Time

	mu      sync.Mutex
	running bool
	pending *OnboardingRequired
}

// OrchestratorOption configures the Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSessionContext sets the session the orchestrator writes on success.
func WithSessionContext(s *SessionContext) OrchestratorOption {
	return func(o *Orchestrator) {
		if s != nil {
			o.session = s
		}
	}
}

// WithEmailPolicy sets the sign-up email policy.
func WithEmailPolicy(p *EmailPolicy) OrchestratorOption {
	return func(o *Orchestrator) {
		if p != nil {
			o.policy = p
		}
	}
}

// WithAppURL sets the public application URL used for provider redirects.
func WithAppURL(appURL string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.appURL = strings.TrimRight(strings.TrimSpace(appURL), "/")
	}
}

// WithCallbackPath overrides the provider callback path (default /auth/callback).
func WithCallbackPath(path string) OrchestratorOption {
	return func(o *Orchestrator) {
		if path != "" {
			o.callbackPath = path
		}
	}
}

// WithCallbackURL sends provider redirects to an absolute URL instead of
// the app URL plus callback path, e.g. a local callback server.
func WithCallbackURL(callbackURL string) OrchestratorOption {
	return func(o *Orchestrator) {
		o.callbackURL = strings.TrimSpace(callbackURL)
	}
}

// WithRedirectDelay sets how long failure pages wait before redirecting.
func WithRedirectDelay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.redirectDelay = d
		}
	}
}

// WithActivitySink sets the sink for flow events and transitions.
func WithActivitySink(sink ActivitySink) OrchestratorOption {
	return func(o *Orchestrator) {
		o.activitySink = normalizeActivitySink(sink)
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = normalizeLogger(l)
	}
}

// WithLoggerProvider takes the "orchestrator" logger from p.
func WithLoggerProvider(p LoggerProvider) OrchestratorOption {
	return func(o *Orchestrator) {
		o.logger = loggerFrom(p, "orchestrator")
	}
}

// WithClock injects a clock (useful for tests).
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator wires the three clients into a flow.
func NewOrchestrator(identity IdentityClient, exchanger Exchanger, onboarding OnboardingCompleter, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		identity:      identity,
		exchanger:     exchanger,
		onboarding:    onboarding,
		policy:        NewEmailPolicy(),
		activitySink:  noopActivitySink{},
		logger:        defLogger{},
		callbackPath:  "/auth/callback",
		redirectDelay: DefaultRedirectDelay,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.session == nil {
		o.session = NewSessionContext(nil)
	}
	o.machine = NewFlowStateMachine(
		WithStateMachineActivitySink(o.activitySink),
		WithStateMachineLogger(o.logger),
		WithStateMachineClock(o.now),
	)
	return o
}

// State returns the current flow state.
func (o *Orchestrator) State() FlowState {
	return o.machine.Current()
}

// Session returns the read side of the application session.
func (o *Orchestrator) Session() *SessionContext {
	return o.session
}

// Pending returns a copy of the carried onboarding data, if any.
func (o *Orchestrator) Pending() *OnboardingRequired {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pending == nil {
		return nil
	}
	cp := *o.pending
	return &cp
}

// CallbackURL is the provider redirect target for this application.
func (o *Orchestrator) CallbackURL() string {
	if o.callbackURL != "" {
		return o.callbackURL
	}
	return o.appURL + o.callbackPath
}

// SignIn authenticates with the provider and exchanges the session.
func (o *Orchestrator) SignIn(ctx context.Context, creds Credentials) Outcome {
	return o.run(ctx, "signin", false, func(ctx context.Context) Outcome {
		creds.Email = strings.TrimSpace(creds.Email)
		if err := creds.Validate(); err != nil {
			return o.fail(ctx, "signin", err, "", false)
		}

		o.transition(ctx, FlowAuthenticating)
		session, err := o.identity.SignIn(ctx, creds)
		if err != nil {
			return o.fail(ctx, "signin", err, creds.Email, false)
		}
		if !session.Valid() {
			return o.fail(ctx, "signin", derive(ErrNoSession, "", nil, nil), creds.Email, false)
		}

		return o.exchange(ctx, "signin", session, false)
	})
}

// SignUp validates locally, registers with the provider and, when the
// provider issues a session right away, continues with the exchange.
func (o *Orchestrator) SignUp(ctx context.Context, req SignUpRequest) Outcome {
	return o.run(ctx, "signup", false, func(ctx context.Context) Outcome {
		if err := req.Validate(o.policy); err != nil {
			return o.fail(ctx, "signup", err, "", false)
		}

		creds := req.Credentials()
		o.transition(ctx, FlowAuthenticating)
		result, err := o.identity.SignUp(ctx, creds, SignUpOptions{EmailRedirectTo: o.CallbackURL()})
		if err != nil {
			return o.fail(ctx, "signup", err, creds.Email, false)
		}
		if result == nil {
			return o.fail(ctx, "signup", derive(ErrNoSession, "", nil, nil), creds.Email, false)
		}

		if result.PendingConfirmation() {
			o.transition(ctx, FlowPendingConfirmation)
			o.record(ctx, ActivityEvent{
				EventType: ActivityEventSignUpPending,
				Flow:      "signup",
				UserID:    result.User.ID,
				Email:     creds.Email,
			})
			identity := result.User
			return Outcome{
				State:    FlowPendingConfirmation,
				Message:  "check your email to confirm your account",
				Identity: &identity,
			}
		}

		return o.exchange(ctx, "signup", result.Session, false)
	})
}

// BeginOAuth prepares a PKCE authorization redirect for provider.
func (o *Orchestrator) BeginOAuth(ctx context.Context, provider string) (*OAuthRequest, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, derive(ErrValidation, "provider is required", nil, nil)
	}

	verifier := oauth2.GenerateVerifier()
	redirectTo := o.CallbackURL()
	req := &OAuthRequest{
		URL:          o.identity.AuthorizeURL(provider, redirectTo, oauth2.S256ChallengeFromVerifier(verifier)),
		CodeVerifier: verifier,
		RedirectTo:   redirectTo,
	}

	o.record(ctx, ActivityEvent{
		EventType: ActivityEventOAuthStarted,
		Flow:      "callback",
		Metadata:  map[string]any{"provider": provider},
	})
	return req, nil
}

// HandleCallback finishes a provider redirect. With a code it runs the PKCE
// exchange; without one it uses the session the provider already holds
// (email confirmation links). Failures carry a delayed login redirect.
func (o *Orchestrator) HandleCallback(ctx context.Context, params CallbackParams) Outcome {
	return o.run(ctx, "callback", true, func(ctx context.Context) Outcome {
		o.transition(ctx, FlowAuthenticating)

		if params.Error != "" {
			desc := params.ErrorDescription
			if desc == "" {
				desc = params.Error
			}
			perr := &ProviderError{Provider: "identity", Operation: "callback", Code: params.Error, Description: desc}
			return o.fail(ctx, "callback", WrapProviderError(ErrProvider, perr), "", true)
		}

		var (
			session *IdentitySession
			err     error
		)
		if params.Code != "" {
			session, err = o.identity.ExchangeCode(ctx, params.Code, params.CodeVerifier)
		} else {
			session, err = o.identity.GetSession(ctx)
		}
		if err != nil {
			return o.fail(ctx, "callback", err, "", true)
		}
		if !session.Valid() {
			return o.fail(ctx, "callback", derive(ErrNoSession, "", nil, nil), "", true)
		}

		return o.exchange(ctx, "callback", session, true)
	})
}

// Resume exchanges the provider session left by an earlier run, for
// example a CLI process that stopped at the onboarding step.
func (o *Orchestrator) Resume(ctx context.Context) Outcome {
	return o.run(ctx, "resume", false, func(ctx context.Context) Outcome {
		o.transition(ctx, FlowAuthenticating)
		session, err := o.identity.GetSession(ctx)
		if err != nil {
			return o.fail(ctx, "resume", err, "", false)
		}
		if !session.Valid() {
			return o.fail(ctx, "resume", derive(ErrNoSession, "", nil, nil), "", false)
		}
		return o.exchange(ctx, "resume", session, false)
	})
}

// CompleteOnboarding submits profile for the pending identity. It is valid
// in the onboarding state and, as a retry, after a failed completion.
func (o *Orchestrator) CompleteOnboarding(ctx context.Context, profile OnboardingProfile) Outcome {
	out, ok := o.tryBegin(ctx, "onboarding", false)
	if !ok {
		return out
	}
	defer o.finish()

	return o.guard(ctx, "onboarding", false, func(ctx context.Context) Outcome {
		pending := o.Pending()
		state := o.machine.Current()
		if pending == nil || (state != FlowOnboarding && state != FlowFailed) {
			err := derive(ErrInvalidTransition, "there is no onboarding in progress; sign in again", nil, map[string]any{
				"from": state,
				"to":   FlowCompletingOnboarding,
			})
			return Outcome{State: state, Message: UserMessage(err), Err: err}
		}

		if state == FlowFailed {
			o.transition(ctx, FlowOnboarding, WithTransitionReason("retry"))
		}

		if strings.TrimSpace(profile.Email) == "" {
			profile.Email = pending.Email
		}

		o.transition(ctx, FlowCompletingOnboarding)
		auth, err := o.onboarding.Complete(ctx, pending.IdentityAccessToken, profile)
		if err != nil {
			o.record(ctx, ActivityEvent{
				EventType: ActivityEventOnboardingFailure,
				Flow:      "onboarding",
				UserID:    pending.IdentityUID,
				Email:     pending.Email,
				Metadata:  map[string]any{"error": UserMessage(err)},
			})
			out := o.fail(ctx, "onboarding", err, pending.Email, false)
			out.Pending = pending
			return out
		}

		out := o.authenticate(ctx, "onboarding", auth, false)
		if out.Err == nil {
			o.record(ctx, ActivityEvent{
				EventType: ActivityEventOnboardingCompleted,
				Flow:      "onboarding",
				UserID:    userID(auth.User),
				Email:     pending.Email,
			})
		}
		return out
	})
}

// SignOut signs out of the provider (best effort) and always clears the
// application session.
func (o *Orchestrator) SignOut(ctx context.Context) Outcome {
	out, ok := o.tryBegin(ctx, "signout", false)
	if !ok {
		return out
	}
	defer o.finish()

	providerErr := o.identity.SignOut(ctx)
	if providerErr != nil {
		o.logger.Warn("provider sign-out failed", "error", providerErr)
	}

	clearErr := o.session.clear(ctx)
	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()
	o.machine.Begin(ctx, "signout")

	o.record(ctx, ActivityEvent{EventType: ActivityEventSignOut, Flow: "signout"})

	if clearErr != nil {
		o.logger.Error("could not clear application session", "error", clearErr)
		err := derive(ErrBackend, "could not clear the stored session", clearErr, nil)
		return Outcome{State: FlowIdle, Message: UserMessage(err), Err: err}
	}
	return Outcome{State: FlowIdle, Message: "signed out"}
}

// ResetPassword sends a password reset email. It does not touch the flow state.
func (o *Orchestrator) ResetPassword(ctx context.Context, email string) Outcome {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return Outcome{State: o.State(), Message: UserMessage(err), Err: err}
	}

	if err := o.identity.ResetPassword(ctx, email, o.appURL+"/password/update"); err != nil {
		return Outcome{State: o.State(), Message: UserMessage(err), Err: err}
	}

	o.record(ctx, ActivityEvent{EventType: ActivityEventPasswordReset, Flow: "password", Email: email})
	return Outcome{State: o.State(), Message: "check your email for a password reset link"}
}

// UpdatePassword changes the password of the signed-in provider user.
func (o *Orchestrator) UpdatePassword(ctx context.Context, newPassword, confirm string) Outcome {
	if err := validatePasswordChange(newPassword, confirm); err != nil {
		return Outcome{State: o.State(), Message: UserMessage(err), Err: err}
	}

	user, err := o.identity.UpdatePassword(ctx, newPassword)
	if err != nil {
		return Outcome{State: o.State(), Message: UserMessage(err), Err: err}
	}

	event := ActivityEvent{EventType: ActivityEventPasswordUpdated, Flow: "password"}
	if user != nil {
		event.UserID = user.ID
		event.Email = user.Email
	}
	o.record(ctx, event)
	return Outcome{State: o.State(), Message: "password updated", Identity: user}
}

func (o *Orchestrator) exchange(ctx context.Context, flow string, session *IdentitySession, callback bool) Outcome {
	o.transition(ctx, FlowExchanging)

	switch result := o.exchanger.Exchange(ctx, session.AccessToken).(type) {
	case Authenticated:
		return o.authenticate(ctx, flow, &result, callback)
	case OnboardingRequired:
		if result.Email == "" {
			result.Email = session.User.Email
		}
		if result.IdentityUID == "" {
			result.IdentityUID = session.User.ID
		}
		o.mu.Lock()
		pending := result
		o.pending = &pending
		o.mu.Unlock()

		o.transition(ctx, FlowOnboarding)
		o.record(ctx, ActivityEvent{
			EventType: ActivityEventOnboardingRequired,
			Flow:      flow,
			UserID:    result.IdentityUID,
			Email:     result.Email,
		})

		out := Outcome{
			State:   FlowOnboarding,
			Message: "complete your profile to continue",
			Pending: &result,
		}
		if callback {
			out.RedirectURL = o.appURL + "/onboarding"
		}
		return out
	case Failed:
		err := result.Err
		if err == nil {
			err = derive(ErrUnexpectedResponse, result.Reason, nil, nil)
		}
		return o.fail(ctx, flow, err, session.User.Email, callback)
	default:
		return o.fail(ctx, flow, derive(ErrUnexpectedResponse, "", nil, nil), session.User.Email, callback)
	}
}

// authenticate is the only place the application token is written.
func (o *Orchestrator) authenticate(ctx context.Context, flow string, auth *Authenticated, callback bool) Outcome {
	if auth == nil || auth.ApplicationToken == "" {
		return o.fail(ctx, flow, derive(ErrMissingToken, "", nil, nil), "", callback)
	}

	if err := o.session.persist(ctx, auth.ApplicationToken); err != nil {
		o.logger.Error("could not persist application token", "error", err)
		return o.fail(ctx, flow, derive(ErrBackend, "could not save your session", err, nil), "", callback)
	}

	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()

	o.transition(ctx, FlowAuthenticated)
	o.record(ctx, ActivityEvent{
		EventType: ActivityEventSignInSuccess,
		Flow:      flow,
		UserID:    userID(auth.User),
		Email:     userEmail(auth.User),
	})

	out := Outcome{State: FlowAuthenticated, Message: "signed in", User: auth.User}
	if callback {
		out.RedirectURL = o.appURL + "/dashboard"
	}
	return out
}

func (o *Orchestrator) fail(ctx context.Context, flow string, err error, email string, callback bool) Outcome {
	message := UserMessage(err)
	if message == "" {
		message = "something went wrong; please try again"
	}

	if terr := o.machine.Transition(ctx, FlowFailed, WithTransitionReason(message)); terr != nil {
		o.logger.Warn("forcing failed state", "from", o.machine.Current(), "error", terr)
		_ = o.machine.Transition(ctx, FlowFailed, WithTransitionReason(message), WithForceTransition())
	}

	o.logger.Warn("flow failed", "flow", flow, "error", err)
	o.record(ctx, ActivityEvent{
		EventType: ActivityEventSignInFailure,
		Flow:      flow,
		Email:     email,
		Metadata:  map[string]any{"reason": message},
	})

	out := Outcome{State: FlowFailed, Message: message, Err: err}
	if callback {
		out.RedirectURL = o.loginRedirect(callbackErrorCode(err))
		out.RedirectAfter = o.redirectDelay
	}
	return out
}

func (o *Orchestrator) loginRedirect(code string) string {
	return o.appURL + "/login?error=" + url.QueryEscape(code)
}

// run resets the machine for a new run of flow and executes fn under the
// single-run guard.
func (o *Orchestrator) run(ctx context.Context, flow string, callback bool, fn func(context.Context) Outcome) Outcome {
	out, ok := o.tryBegin(ctx, flow, callback)
	if !ok {
		return out
	}
	defer o.finish()

	o.mu.Lock()
	o.pending = nil
	o.mu.Unlock()
	o.machine.Begin(ctx, flow)

	return o.guard(ctx, flow, callback, fn)
}

// guard converts a panic inside fn into a generic failed outcome.
func (o *Orchestrator) guard(ctx context.Context, flow string, callback bool, fn func(context.Context) Outcome) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("flow panicked", "flow", flow, "panic", r)
			err := derive(ErrBackend, "an unexpected error occurred", fmt.Errorf("panic: %v", r), map[string]any{
				"callback_error": CallbackErrorUnexpected,
			})
			out = o.fail(ctx, flow, err, "", callback)
		}
	}()
	return fn(ctx)
}

func (o *Orchestrator) tryBegin(ctx context.Context, flow string, callback bool) (Outcome, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		err := derive(ErrFlowInProgress, "", nil, map[string]any{"flow": flow})
		o.logger.Warn("rejected overlapping flow", "flow", flow)
		out := Outcome{State: o.machine.Current(), Message: UserMessage(err), Err: err}
		if callback {
			out.RedirectURL = o.loginRedirect(CallbackErrorUnexpected)
			out.RedirectAfter = o.redirectDelay
		}
		return out, false
	}
	o.running = true
	return Outcome{}, true
}

func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
}

func (o *Orchestrator) transition(ctx context.Context, to FlowState, opts ...TransitionOption) {
	if err := o.machine.Transition(ctx, to, opts...); err != nil {
		panic(err)
	}
}

func (o *Orchestrator) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = o.now()
	}
	if err := normalizeActivitySink(o.activitySink).Record(ctx, event); err != nil {
		o.logger.Warn("activity sink error", "error", err)
	}
}

func callbackErrorCode(err error) string {
	switch {
	case IsTextCode(err, TextCodeNoSession):
		return CallbackErrorNoSession
	case metadataValue(err, "callback_error") == CallbackErrorUnexpected:
		return CallbackErrorUnexpected
	default:
		return CallbackErrorAuthentication
	}
}

func userID(u *User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

func userEmail(u *User) string {
	if u == nil {
		return ""
	}
	return u.Email
}
