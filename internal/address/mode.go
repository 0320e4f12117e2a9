package address

import "strings"

// Mode selects between a CloudVision-as-a-Service deployment and an
// on-premises CloudVision Portal. It is decided once per run.
type Mode int

const (
	ModeOnPrem Mode = iota
	ModeCloud
)

const DefaultCloudDomain = "arista.io"

func (m Mode) String() string {
	switch m {
	case ModeCloud:
		return "cloud"
	case ModeOnPrem:
		return "on-prem"
	default:
		return "unknown"
	}
}

// Profile holds the per-mode constants consumed by the mode-agnostic steps.
type Profile struct {
	TokenType      string
	EnrollPort     string
	DefaultScheme  string
	UsesRedirector bool
}

var profiles = map[Mode]Profile{
	ModeCloud: {
		TokenType:      "token-secure",
		EnrollPort:     "443",
		DefaultScheme:  "https",
		UsesRedirector: true,
	},
	ModeOnPrem: {
		TokenType:      "token",
		EnrollPort:     "9910",
		DefaultScheme:  "http",
		UsesRedirector: false,
	},
}

func ProfileFor(m Mode) Profile {
	if p, ok := profiles[m]; ok {
		return p
	}
	return profiles[ModeOnPrem]
}

// DetectMode reports ModeCloud when raw points at the cloud domain.
func DetectMode(raw, cloudDomain string) Mode {
	if cloudDomain == "" {
		cloudDomain = DefaultCloudDomain
	}
	if strings.Contains(raw, cloudDomain) {
		return ModeCloud
	}
	return ModeOnPrem
}
