// Package session manages the client half of a rental storefront's
// authentication: persisted credentials, an in-memory session, an HTTP auth
// gateway, and route guards.
//
// Session state:
//   - Session holds the token, the fetched Profile, and the owner flag behind
//     a single lock. Writers bump a generation counter so a profile fetch that
//     races a logout is discarded instead of resurrecting the session.
//   - Bootstrap loads the persisted CredentialRecord, seeds the token, and
//     refreshes the profile. Any refresh failure tears the session down and
//     clears the store, so a rejected token never lingers half-trusted.
//
// Route guards:
//   - Guard maps a session snapshot to a Decision (checking, unauthenticated,
//     profile pending, allow, forbidden). EvaluateOwner additionally repairs a
//     dropped owner flag from the persisted record, one direction only.
//   - RouteGuard adapts those decisions to router middleware, and remembers
//     the rejected route so a successful sign-in can return to it.
//
// Flows:
//   - RegistrationFlow and PasswordResetFlow are small stage machines the
//     Gateway drives. Stage order is enforced locally: a reset submission
//     without a verified code is rejected before any network call.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the Gateway and
//     Controller to describe login, logout, registration, and invalidation
//     events. Sinks run best-effort so a slow consumer never blocks auth.
package session
