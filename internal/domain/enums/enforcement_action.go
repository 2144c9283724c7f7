package enums

type EnforcementAction string

const (
	EnforcementActionWarn     EnforcementAction = "warn"
	EnforcementActionMute     EnforcementAction = "mute"
	EnforcementActionRestrict EnforcementAction = "restrict"
	EnforcementActionDelete   EnforcementAction = "delete"
)

type MemberStatus string

const (
	MemberStatusCreator       MemberStatus = "creator"
	MemberStatusAdministrator MemberStatus = "administrator"
	MemberStatusMember        MemberStatus = "member"
	MemberStatusRestricted    MemberStatus = "restricted"
	MemberStatusLeft          MemberStatus = "left"
	MemberStatusKicked        MemberStatus = "kicked"
)
