// Package teamauth implements the client side of the TeamUp sign-in and
// onboarding handshake: an identity provider session is traded for an
// application JWT, or for an onboarding requirement that a profile
// submission later resolves.
//
// Flow:
//   - Orchestrator drives SignIn, SignUp, HandleCallback and
//     CompleteOnboarding through FlowStateMachine. Every entry point returns
//     an Outcome; provider, backend and validation failures are reported in
//     it and never raised as control flow.
//   - ExchangeClient posts the provider access token to the backend and
//     classifies the reply into exactly one ExchangeResult. Authenticated is
//     checked before OnboardingRequired and anything else is Failed.
//   - OnboardingClient submits an OnboardingProfile and has no side effects.
//
// Session:
//   - SessionContext wraps a TokenStore holding the single application token.
//     Authorized clients read it through TokenSource; only the orchestrator
//     writes, and only on a terminal success, so a failed run leaves no
//     partial state behind.
//
// Schema:
//   - SchemaV2 is the canonical backend contract. SchemaV1 decodes the older
//     token/onboardingRequired replies and numeric proficiency into the same
//     types.
//
// Activity sinks:
//   - ActivitySink receives every transition and terminal event. Sinks run
//     best effort (errors are logged) so metrics or audit forwarding never
//     block a sign-in.
package teamauth
