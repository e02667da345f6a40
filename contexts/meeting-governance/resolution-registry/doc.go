// Package resolutionregistry is the system of record for formal motions
// inside the meeting-governance context: the resolution text, who proposed
// and seconded it, and the recorded outcome of each voting round.
package resolutionregistry
