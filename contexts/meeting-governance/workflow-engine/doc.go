// Package workflowengine drives a board meeting through its ordered
// procedural stages inside the meeting-governance context.
//
// Each meeting owns one workflow instance: a caller-supplied stage sequence,
// a cursor, quorum bookkeeping, and an optional attached voting session.
// Every stage change is a validated transition that appends an immutable
// audit record; concurrent advances are serialized per instance through
// optimistic version checks so only one transition wins from a given stage.
package workflowengine
