package auth

import "strings"

// Canonical role names produced by the mapper.
const (
	RoleAdmin    = "admin"
	RoleSupport  = "support"
	RoleSales    = "sales"
	RoleWorkshop = "workshop"
	// RoleUser is the baseline role: every identity carries at least this.
	RoleUser = "user"
)

// Claim keys recognized by the mapper.
const (
	ClaimRole    = "role"
	ClaimRoles   = "roles"
	ClaimGroups  = "groups"
	ClaimAppRole = "extension_AppRole"
	ClaimEmail   = "email"
)

// roleAliases collapses spelling variants of the same role, case-insensitive.
var roleAliases = map[string]string{
	"admin":          RoleAdmin,
	"administrator":  RoleAdmin,
	"administrators": RoleAdmin,
	"global admin":   RoleAdmin,
	"support":        RoleSupport,
	"supportagent":   RoleSupport,
	"helpdesk":       RoleSupport,
	"sales":          RoleSales,
	"salesrep":       RoleSales,
	"workshop":       RoleWorkshop,
	"demo":           RoleWorkshop,
	"user":           RoleUser,
	"member":         RoleUser,
}

// groupFragments matches group identifiers by substring.
var groupFragments = []struct {
	fragment string
	role     string
}{
	{"admin", RoleAdmin},
	{"support", RoleSupport},
	{"helpdesk", RoleSupport},
	{"sales", RoleSales},
	{"workshop", RoleWorkshop},
}

// roleRule assigns roles from one claim signal. Rules run in order; weaker
// heuristics only fire when no earlier rule produced a role.
type roleRule struct {
	name     string
	lastOnly bool
	apply    func(claims map[string]string) []string
}

var roleRules = []roleRule{
	{name: "direct-role", apply: mapDirectRoles},
	{name: "group-fragment", apply: mapGroupFragments},
	{name: "app-role-extension", apply: mapAppRoleExtension},
	{name: "email-heuristic", lastOnly: true, apply: mapEmailHeuristic},
}

// MapClaimsToRoles derives the canonical role set from an external claim
// map. Unrecognized role values degrade to the baseline role instead of
// being dropped, and an empty claim set yields exactly the baseline role.
// The output contains no duplicates and preserves rule order, so it is
// stable for a given input.
func MapClaimsToRoles(claims map[string]string) []string {
	var roles []string
	seen := make(map[string]struct{})
	add := func(list []string) {
		for _, role := range list {
			role = strings.TrimSpace(role)
			if role == "" {
				continue
			}
			if _, ok := seen[role]; ok {
				continue
			}
			seen[role] = struct{}{}
			roles = append(roles, role)
		}
	}

	for _, rule := range roleRules {
		if rule.lastOnly && len(roles) > 0 {
			continue
		}
		add(rule.apply(claims))
	}
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}
	return roles
}

func mapDirectRoles(claims map[string]string) []string {
	var out []string
	for _, key := range []string{ClaimRole, ClaimRoles} {
		raw, ok := claims[key]
		if !ok {
			continue
		}
		for _, value := range splitClaimList(raw) {
			if canonical, ok := roleAliases[strings.ToLower(value)]; ok {
				out = append(out, canonical)
			} else {
				// Unknown role strings still grant baseline access.
				out = append(out, RoleUser)
			}
		}
	}
	return out
}

func mapGroupFragments(claims map[string]string) []string {
	raw, ok := claims[ClaimGroups]
	if !ok {
		return nil
	}
	var out []string
	for _, group := range splitClaimList(raw) {
		lower := strings.ToLower(group)
		for _, gf := range groupFragments {
			if strings.Contains(lower, gf.fragment) {
				out = append(out, gf.role)
			}
		}
	}
	return out
}

// mapAppRoleExtension passes the custom application role claim through
// verbatim: it is a trusted override set by the directory administrator.
func mapAppRoleExtension(claims map[string]string) []string {
	raw, ok := claims[ClaimAppRole]
	if !ok {
		return nil
	}
	return splitClaimList(raw)
}

func mapEmailHeuristic(claims map[string]string) []string {
	email := strings.ToLower(strings.TrimSpace(claims[ClaimEmail]))
	if email == "" {
		return nil
	}
	switch {
	case strings.HasSuffix(email, "@atlasdesk.org"):
		return []string{RoleSupport}
	case strings.Contains(email, "+workshop"):
		return []string{RoleWorkshop}
	default:
		return nil
	}
}

func splitClaimList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' '
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
