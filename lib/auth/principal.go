package auth

import (
	"sort"
	"strings"
)

// Principal is an authenticated user with its expanded roles
type Principal struct {
	Name  string
	roles map[string]struct{}
}

// NewPrincipal creates a principal with the given, already expanded, roles
func NewPrincipal(name string, roles ...string) *Principal {
	p := &Principal{Name: name, roles: make(map[string]struct{}, len(roles))}
	for _, r := range roles {
		p.roles[r] = struct{}{}
	}
	return p
}

// HasRole reports whether the principal holds role. A nil principal holds no role.
func (p *Principal) HasRole(role string) bool {
	if p == nil {
		return false
	}
	_, ok := p.roles[role]
	return ok
}

// Roles returns the sorted roles of the principal
func (p *Principal) Roles() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.roles))
	for r := range p.roles {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Granted returns the sorted values of all grants with the given prefix. The
// ALL grant is not included.
func (p *Principal) Granted(prefix string) []string {
	if p == nil {
		return nil
	}
	var out []string
	for r := range p.roles {
		if v, ok := strings.CutPrefix(r, prefix); ok && v != "" && v != grantAll {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

// grants reports whether the principal holds prefix+value or prefix+ALL
func (p *Principal) grants(prefix, value string) bool {
	return p.HasRole(prefix+grantAll) || (value != "" && p.HasRole(prefix+value))
}

// CanReadFile reports whether the principal may load the named file
func (p *Principal) CanReadFile(name string) bool {
	return p.grants(GrantFilesReadPrefix, name)
}

// CanWriteFile reports whether the principal may save the named file
func (p *Principal) CanWriteFile(name string) bool {
	return p.grants(GrantFilesWritePrefix, name)
}

// CanGrantAction reports whether the principal may request command channel
// tokens for the action. There is no ALL grant for actions.
func (p *Principal) CanGrantAction(action string) bool {
	return action != "" && p.HasRole(GrantCmdChannelPrefix+action)
}

func (p *Principal) String() string {
	if p == nil {
		return "<anonymous>"
	}
	return p.Name
}
