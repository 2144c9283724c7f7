package detect

import (
	"regexp"
	"strings"

	"github.com/asbhaibsr/UltimateManagerBot-sub000/internal/domain/enums"
)

// urlPattern matches well-formed http/https URLs anywhere in free text.
// Bare domains without a scheme are deliberately not flagged: usernames and
// plain mentions of sites are not a bio-link violation.
var urlPattern = regexp.MustCompile(`(?i)https?://[^\s<>"']+`)

// Verdict is the transient classification output. It is consumed by the
// actuator within the same event and never persisted.
type Verdict struct {
	Violated bool
	Reason   enums.ViolationReason
	Evidence string
}

// BioLink classifies a profile biography. An absent or empty bio is compliant.
func BioLink(bioText string) Verdict {
	if strings.TrimSpace(bioText) == "" {
		return Verdict{}
	}

	match := urlPattern.FindString(bioText)
	if match == "" {
		return Verdict{}
	}

	return Verdict{
		Violated: true,
		Reason:   enums.ViolationReasonBioLink,
		Evidence: match,
	}
}

// SubscriptionGap classifies the force-subscribe gate for one required
// channel. A failed membership lookup counts as a violation: letting a user
// through because the platform could not answer would defeat the gate.
func SubscriptionGap(channel string, status enums.MemberStatus, lookupErr error) Verdict {
	if strings.TrimSpace(channel) == "" {
		return Verdict{}
	}

	if lookupErr != nil {
		return Verdict{
			Violated: true,
			Reason:   enums.ViolationReasonNotSubscribed,
			Evidence: channel,
		}
	}

	switch status {
	case enums.MemberStatusLeft, enums.MemberStatusKicked:
		return Verdict{
			Violated: true,
			Reason:   enums.ViolationReasonNotSubscribed,
			Evidence: channel,
		}
	default:
		return Verdict{}
	}
}

// VerificationGap classifies the force-join gate. A required count of zero
// disables the gate; a verified user is never re-gated regardless of count.
func VerificationGap(currentInviteCount, requiredCount int, alreadyVerified bool) Verdict {
	if requiredCount <= 0 || alreadyVerified {
		return Verdict{}
	}
	if currentInviteCount >= requiredCount {
		return Verdict{}
	}

	return Verdict{
		Violated: true,
		Reason:   enums.ViolationReasonNotVerified,
	}
}
