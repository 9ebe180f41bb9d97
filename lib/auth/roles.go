package auth

import "strings"

// Roles of the boundary operations
const (
	RoleLogin            = "thermostat-login"
	RoleRegisterCategory = "thermostat-register-category"
	RolePrepareStatement = "thermostat-prepare-statement"
	RoleRead             = "thermostat-read"
	RoleWrite            = "thermostat-write"
	RolePurge            = "thermostat-purge"
	RoleSaveFile         = "thermostat-save-file"
	RoleLoadFile         = "thermostat-load-file"
	RoleCmdChannelGen    = "thermostat-cmdc-generate"
	RoleCmdChannelVerify = "thermostat-cmdc-verify"
)

// Grants. A prefix followed by a value grants access to that value, the ALL
// variants grant access to every value.
const (
	RoleAdminReadAll = "thermostat-admin-read-all"

	GrantCmdChannelPrefix = "thermostat-cmdc-grant-"

	GrantAgentsReadPrefix = "thermostat-agents-grant-read-agentId-"
	GrantAgentsReadAll    = GrantAgentsReadPrefix + "ALL"

	GrantVmsReadPrefix = "thermostat-vms-grant-read-vmId-"
	GrantVmsReadAll    = GrantVmsReadPrefix + "ALL"

	GrantFilesReadPrefix = "thermostat-files-grant-read-filename-"
	GrantFilesReadAll    = GrantFilesReadPrefix + "ALL"

	GrantFilesWritePrefix = "thermostat-files-grant-write-filename-"
	GrantFilesWriteAll    = GrantFilesWritePrefix + "ALL"
)

// grantAll is the suffix of the ALL grants
const grantAll = "ALL"

// ExpandRoles resolves role groups. groups maps a group role to its member
// roles, members may be groups themselves. The result contains the direct
// roles and every role reachable from them. Cycles are tolerated.
func ExpandRoles(direct []string, groups map[string][]string) map[string]struct{} {
	out := make(map[string]struct{}, len(direct))
	var visit func(role string)
	visit = func(role string) {
		role = strings.TrimSpace(role)
		if role == "" {
			return
		}
		if _, seen := out[role]; seen {
			return
		}
		out[role] = struct{}{}
		for _, member := range groups[role] {
			visit(member)
		}
	}
	for _, r := range direct {
		visit(r)
	}
	return out
}
