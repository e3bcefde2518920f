// Package governance implements the resource-governance services of the
// gateway: sliding-window rate limiting, period quotas with atomic
// consumption, monetary budget tracking with alerting, and the admission
// service that composes the three into a single decision per request.
package governance
