package model

import "strings"

// VirtualPath is a case-insensitive identifier for an asset, resolved to a
// real filesystem path by an external AssetLocator. Database keys are
// always the canonical (lowercased) form.
type VirtualPath string

// Canonical returns the database-key form of a virtual path: lowercased.
func (p VirtualPath) Canonical() VirtualPath {
	return VirtualPath(strings.ToLower(string(p)))
}

func (p VirtualPath) String() string {
	return string(p)
}

// Ext returns the lowercased extension suffix used for pipeline routing,
// including any compound suffix such as ".flv.dcx" or ".hkx.dcx".
func (p VirtualPath) Ext() string {
	s := strings.ToLower(string(p))
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[i:]
	}
	return ""
}

// HasPrefix reports whether the canonical path begins with the given
// (already-lowercased) prefix, used by the udsfm/aet refresh scans.
func (p VirtualPath) HasPrefix(prefix string) bool {
	return strings.HasPrefix(string(p.Canonical()), prefix)
}

// NormalizeMapTexturePath applies the map-texture virtual-path
// normalisation: when a texture container virtual path begins with
// "map/tex", trim a trailing four-digit suffix (5 characters including
// the separator) if present; otherwise, if it ends in the literal "tex",
// strip just those 3 characters. Applied before joining slot names.
func NormalizeMapTexturePath(parent VirtualPath) VirtualPath {
	s := string(parent)
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "map/tex") {
		return parent
	}
	if len(s) >= 5 && isFourDigitSuffix(s[len(s)-4:]) {
		return VirtualPath(s[:len(s)-5])
	}
	if strings.HasSuffix(lower, "tex") {
		return VirtualPath(s[:len(s)-3])
	}
	return parent
}

func isFourDigitSuffix(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// JoinSlot builds a texture slot's virtual path from a (already
// normalised) base path and the slot's name within the container.
func JoinSlot(base VirtualPath, slotName string) VirtualPath {
	return VirtualPath(string(base) + "/" + slotName)
}
