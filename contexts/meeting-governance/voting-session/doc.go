// Package votingsession runs formal votes inside the meeting-governance
// context: it opens sessions against a meeting's voting stage, accepts
// weighted ballots with proxy aggregation, computes tallies at close, and
// records outcomes against the resolution registry.
//
// The module never imports its governance neighbors. Workflow gating, voter
// weights, proxy resolution, and outcome recording are consumer-side ports
// that the composition root implements with glue adapters.
package votingsession
