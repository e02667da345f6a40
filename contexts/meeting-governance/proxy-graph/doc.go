// Package proxygraph owns proxy voting grants inside the meeting-governance
// context.
//
// The module records who delegated voting authority to whom for a meeting,
// resolves effective delegation chains (including sub-delegation), enforces
// the self-proxy, chain-depth, and single-active-grant-per-grantor
// invariants, and expires grants whose effective window has elapsed. The
// voting session module consults it to decide who ultimately casts a ballot
// on behalf of whom.
package proxygraph
