package validate

import (
	"strconv"
	"strings"
)

func Required(value string) bool {
	return strings.TrimSpace(value) != ""
}

// ChannelRef accepts the two channel spellings the platform resolves:
// @username (5+ chars after the @) or a numeric chat id.
func ChannelRef(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}

	if strings.HasPrefix(value, "@") {
		name := value[1:]
		if len(name) < 5 {
			return false
		}
		for _, r := range name {
			if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
				continue
			}
			return false
		}
		return true
	}

	id, err := strconv.ParseInt(value, 10, 64)
	return err == nil && id != 0
}
