// Package retry wraps single-attempt remote calls with an explicit policy.
//
// Callers own the policy: adapters make exactly one request per call and
// classify failures with StatusError, while services decide how often and
// how long to retry. Limiter paces requests and honours Retry-After hints.
package retry
