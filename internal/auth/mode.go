package auth

import "strings"

// Mode selects the trust model for end-user authentication. It is resolved
// once at process start and never changes for the process lifetime.
type Mode string

const (
	// ModeDisabled skips end-user verification entirely. Service-to-service
	// calls still require a valid service token.
	ModeDisabled Mode = "Disabled"

	// ModeBearerToken verifies end users with locally issued signed tokens
	// backed by the credential store.
	ModeBearerToken Mode = "BearerToken"

	// ModeEntraExternalID trusts federated claims from Entra External ID.
	// Manual registration, login and password operations are unsupported.
	ModeEntraExternalID Mode = "EntraExternalId"
)

// String returns the canonical spelling of the mode.
func (m Mode) String() string { return string(m) }

// ParseMode maps a configuration value to a Mode. The second return reports
// whether the value was recognized.
func ParseMode(raw string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "disabled", "none", "off":
		return ModeDisabled, true
	case "bearertoken", "bearer", "jwt":
		return ModeBearerToken, true
	case "entraexternalid", "entra":
		return ModeEntraExternalID, true
	default:
		return "", false
	}
}

// ResolveMode picks the active mode. An explicit, parseable value always
// wins. An unparseable or empty value falls through to the environment
// default: test and CI environments get Disabled so automated suites do not
// have to mint tokens, everything else gets BearerToken. Resolution never
// fails; the silent fallback for unparseable values is deliberate leniency.
func ResolveMode(explicit, environment string) Mode {
	if mode, ok := ParseMode(explicit); ok {
		return mode
	}
	return defaultModeFor(environment)
}

func defaultModeFor(environment string) Mode {
	switch strings.ToLower(strings.TrimSpace(environment)) {
	case "test", "testing", "ci":
		return ModeDisabled
	default:
		return ModeBearerToken
	}
}
