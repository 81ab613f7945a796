package agents

import "strings"

// Profile shapes what the mock collaborators return, so a scenario can
// drive the orchestrator down a known path without any provider calls
type Profile string

const (
	// ProfileHighRisk produces strong converging evidence of takeover
	ProfileHighRisk Profile = "high_risk"
	// ProfileBenign produces clean findings at decent confidence
	ProfileBenign Profile = "benign"
	// ProfileInsufficientEvidence returns weak findings with no evidence
	// items, which must gate the risk score
	ProfileInsufficientEvidence Profile = "insufficient_evidence"
	// ProfileMixed produces one hot domain against quiet ones
	ProfileMixed Profile = "mixed"
)

// ProfileForEntity derives a profile from entity id conventions used by
// the seed scenarios ("fraud-..." ids are hot, "clean-..." ids are not)
func ProfileForEntity(entityID string) Profile {
	switch {
	case strings.HasPrefix(entityID, "fraud-"):
		return ProfileHighRisk
	case strings.HasPrefix(entityID, "clean-"):
		return ProfileBenign
	case strings.HasPrefix(entityID, "thin-"):
		return ProfileInsufficientEvidence
	default:
		return ProfileMixed
	}
}

type domainFixture struct {
	risk       float64
	confidence float64
	evidence   []string
	indicators []string
	summary    string
}

// fixtures are deterministic per profile and domain
var profileFixtures = map[Profile]map[string]domainFixture{
	ProfileHighRisk: {
		"network": {0.88, 0.85,
			[]string{"12 logins through 4 datacenter ASNs in 6 hours", "TOR exit node on 2 sessions"},
			[]string{"proxy_rotation", "datacenter_asn"},
			"network fingerprint consistent with session hijacking"},
		"device": {0.92, 0.9,
			[]string{"new device enrolled 40 minutes before first transfer", "user agent spoofing detected"},
			[]string{"device_spoof", "rapid_enrollment"},
			"device churn pattern matches account takeover"},
		"location": {0.81, 0.8,
			[]string{"impossible travel: Lagos to Kyiv in 90 minutes"},
			[]string{"impossible_travel"},
			"geovelocity violation on consecutive sessions"},
		"logs": {0.74, 0.75,
			[]string{"password reset followed by MFA disable", "notification email changed"},
			[]string{"credential_change_burst"},
			"credential lifecycle events cluster before transfers"},
		"authentication": {0.86, 0.85,
			[]string{"17 failed logins then success from new IP", "MFA fatigue prompts"},
			[]string{"brute_force", "mfa_fatigue"},
			"authentication trail shows forced entry"},
		"risk": {0.9, 0.9,
			[]string{"five independent domains converge on takeover", "transfer velocity 8x baseline"},
			[]string{"velocity_spike", "multi_domain_convergence"},
			"aggregate pattern is a high-confidence account takeover"},
	},
	ProfileBenign: {
		"network": {0.08, 0.85, []string{"all sessions from home ISP"}, nil, "stable residential network"},
		"device": {0.05, 0.9, []string{"single enrolled device, 14 months old"}, nil, "no device anomalies"},
		"location": {0.07, 0.85, []string{"all activity within home metro"}, nil, "location history consistent"},
		"logs": {0.1, 0.8, []string{"no credential changes in window"}, nil, "quiet audit log"},
		"authentication": {0.06, 0.9, []string{"no failed logins, MFA on every session"}, nil, "clean authentication trail"},
		"risk": {0.08, 0.9, []string{"activity within established baseline"}, nil, "no aggregate risk signal"},
	},
	ProfileMixed: {
		"network": {0.55, 0.6, []string{"one VPN session among 30 residential"}, []string{"vpn_use"}, "mostly stable with one anomaly"},
		"device": {0.3, 0.7, []string{"browser update changed fingerprint"}, nil, "minor fingerprint drift"},
		"location": {0.62, 0.65, []string{"weekend activity from neighboring country"}, []string{"cross_border"}, "plausible travel, unverified"},
		"logs": {0.25, 0.7, []string{"routine password rotation"}, nil, "expected maintenance events"},
		"authentication": {0.35, 0.7, []string{"two failed logins before success"}, nil, "minor friction, self-recovered"},
		"risk": {0.45, 0.65, []string{"single-domain anomaly without convergence"}, nil, "elevated but not conclusive"},
	},
}

func fixtureFor(profile Profile, domain string) (domainFixture, bool) {
	domains, ok := profileFixtures[profile]
	if !ok {
		return domainFixture{}, false
	}
	f, ok := domains[domain]
	return f, ok
}
