// Package auth guards HTTP handlers with static bearer tokens.
//
// The telemetry server uses it to protect the metrics endpoint when
// telemetry.metrics.bearer_token is set; health probes stay open so that
// orchestrators can reach them without credentials.
//
//	v := auth.NewTokenValidator(token)
//	mux.Handle("/metrics", auth.NewMiddleware(v).Handle(metricsHandler))
package auth
