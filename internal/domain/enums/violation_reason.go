package enums

type ViolationReason string

const (
	ViolationReasonBioLink       ViolationReason = "bio_link"
	ViolationReasonNotSubscribed ViolationReason = "not_subscribed"
	ViolationReasonNotVerified   ViolationReason = "not_verified"
)
