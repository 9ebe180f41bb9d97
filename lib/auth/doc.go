// Package auth authenticates users and restricts what they may see.
//
// Authentication checks basic auth credentials against a YAML user file with
// bcrypt password hashes. The result is a Principal holding the fully
// expanded set of roles of the user. Roles can be grouped: a role listed in
// the roles section of the user file grants all its member roles.
//
// Every boundary operation requires a specific role (see the Role*
// constants). Beyond that, reads are restricted row by row: the entitlement
// filter chain turns the agentId and vmId grants of a principal into an
// expression that is combined with the where clause of each query by
// Overlay. A principal without any matching grant sees nothing, the storage
// is not even asked.
package auth
