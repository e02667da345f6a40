// Package roleregistry resolves a participant's meeting role and base voting
// weight inside the meeting-governance context.
//
// Membership itself is owned by an external identity service; this module
// keeps a consumed projection of meeting roles and answers eligibility and
// weight lookups for the voting session module. All operations are
// side-effect-free reads except projection maintenance.
package roleregistry
