// Package admission is the request-authentication and admission-control
// layer for a membership backend: it decides who a caller is, whether the
// caller may proceed at all given request volume, and which protection
// policy (stateless API vs browser/OAuth redirect flow) applies.
//
// Token lifecycle:
//   - TokenService issues and verifies stateless HS256 bearer tokens whose
//     subject is the principal id and whose "roles" claim carries the
//     principal's role names. Tokens are never stored server-side; they are
//     invalidated only by expiry or by the client discarding them.
//   - TokenValidator abstracts verification so externally issued tokens
//     (identity-provider JWTs verified through a JWK Set) can be composed
//     with the symmetric service via MultiTokenValidator.
//
// Principals:
//   - A Principal is rebuilt from the identity store on every authenticated
//     request. The token carries only the subject id, so role changes take
//     effect on the very next request at the cost of one lookup.
//
// Pipelines:
//   - Chains wires the middleware (ratelimit, cors, csrf, gate) into two
//     path-scoped pipelines plus an ordered authorization decision table.
//     See chain.go and the middleware subpackages.
package admission
