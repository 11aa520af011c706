// Package api serves code execution over a JSON HTTP API.
//
// Routes:
//
//	POST /api/execute    run one program and return its result
//	GET  /api/languages  list the supported language ids
//	GET  /healthz        liveness probe
//	GET  /metrics        Prometheus exposition
//
// Every request passes through request id, panic recovery, access log and,
// when api.rate_limit_rps is set, a token bucket rate limiter.
package api
