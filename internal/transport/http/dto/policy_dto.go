package dto

type PolicyResponse struct {
	ChatID               int64    `json:"chat_id"`
	BioProtectionEnabled bool     `json:"bio_protection_enabled"`
	WarningLimit         int      `json:"warning_limit"`
	MuteDurationSec      int64    `json:"mute_duration_sec"`
	RequiredChannels     []string `json:"required_channels"`
	RequiredInviteCount  int      `json:"required_invite_count"`
	AutoDeleteEnabled    bool     `json:"auto_delete_enabled"`
	AutoDeleteSec        int64    `json:"auto_delete_sec"`
}

type PolicyUpdateRequest struct {
	BioProtectionEnabled bool     `json:"bio_protection_enabled"`
	WarningLimit         int      `json:"warning_limit"`
	MuteDurationSec      int64    `json:"mute_duration_sec"`
	RequiredChannels     []string `json:"required_channels"`
	RequiredInviteCount  int      `json:"required_invite_count"`
	AutoDeleteEnabled    bool     `json:"auto_delete_enabled"`
	AutoDeleteSec        int64    `json:"auto_delete_sec"`
}
