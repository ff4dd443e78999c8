// Package fraud orchestrates the three scoring layers over one order:
// the deterministic rule table, the statistical engine over historical
// rates, and the remote ML model behind a circuit breaker. The layers
// run concurrently and are combined with per-tenant weights into a
// final score, a risk level and a recommendation.
package fraud
