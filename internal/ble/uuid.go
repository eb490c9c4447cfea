package ble

import (
	"strings"

	"github.com/google/uuid"
)

// Bluetooth base UUID; 16- and 32-bit assigned numbers expand into it.
const baseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

// NormalizeUUID returns the canonical lower-case 128-bit form of id.
// Short assigned numbers ("180d", "0x2A37") are expanded onto the base UUID.
// Unparseable input is returned lower-cased and trimmed.
func NormalizeUUID(id string) string {
	s := strings.ToLower(strings.TrimSpace(id))
	s = strings.TrimPrefix(s, "0x")
	switch len(s) {
	case 4:
		s = "0000" + s + baseUUIDSuffix
	case 8:
		s = s + baseUUIDSuffix
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return s
	}
	return u.String()
}

// SameUUID compares two UUIDs case-insensitively, accepting short forms.
func SameUUID(a, b string) bool {
	return NormalizeUUID(a) == NormalizeUUID(b)
}
