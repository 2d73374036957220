package model

import "strings"

// ResourceKind tags the decoded payload type a handle or pipeline deals in.
type ResourceKind int

const (
	Flver ResourceKind = iota
	CollisionHkx
	Navmesh
	NavmeshHkx
	Texture
)

func (k ResourceKind) String() string {
	switch k {
	case Flver:
		return "Flver"
	case CollisionHkx:
		return "CollisionHkx"
	case Navmesh:
		return "Navmesh"
	case NavmeshHkx:
		return "NavmeshHkx"
	case Texture:
		return "Texture"
	default:
		return "Unknown"
	}
}

// KindFilter is a bitmask selecting a subset of ResourceKinds for
// selective archive expansion.
type KindFilter uint8

const (
	FilterFlver        KindFilter = 1 << 0
	FilterCollisionHkx KindFilter = 1 << 1
	FilterNavmesh      KindFilter = 1 << 2
	FilterNavmeshHkx   KindFilter = 1 << 3
	FilterTexture      KindFilter = 1 << 4

	FilterAll KindFilter = FilterFlver | FilterCollisionHkx | FilterNavmesh | FilterNavmeshHkx | FilterTexture
)

// Has reports whether the filter selects the given kind.
func (f KindFilter) Has(k ResourceKind) bool {
	switch k {
	case Flver:
		return f&FilterFlver != 0
	case CollisionHkx:
		return f&FilterCollisionHkx != 0
	case Navmesh:
		return f&FilterNavmesh != 0
	case NavmeshHkx:
		return f&FilterNavmeshHkx != 0
	case Texture:
		return f&FilterTexture != 0
	default:
		return false
	}
}

// GameFamily identifies which FromSoftware title an archive belongs to,
// which selects the binder dialect.
type GameFamily int

const (
	DemonsSouls GameFamily = iota
	DarkSouls1PTDE
	DarkSouls1Remaster
	DarkSouls2
	DarkSouls3
	Bloodborne
	Sekiro
	EldenRing
	ArmoredCoreIV
	ArmoredCoreFA
	ArmoredCoreV
	ArmoredCoreVD
	ArmoredCoreVI
)

// UsesLegacyBinderDialect reports whether the game family uses the legacy
// binder dialect rather than the v4 dialect.
func (g GameFamily) UsesLegacyBinderDialect() bool {
	switch g {
	case DemonsSouls, DarkSouls1PTDE, DarkSouls1Remaster, ArmoredCoreVD:
		return true
	default:
		return false
	}
}

// isTextureContainerExtension reports whether the entry name ends in a
// texture-container extension.
func isTextureContainerExtension(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".tpf") || strings.HasSuffix(lower, ".tpf.dcx")
}

// RouteByExtension selects the pipeline kind for a non-texture archive
// entry by its file extension. When the filter selects both Collision and
// NavmeshHkx for a ".hkx"/".hkx.dcx" entry, Collision wins the tie.
// Returns ok=false if the extension routes to a texture container
// (callers should have already checked IsTextureContainer) or matches no
// known kind.
func RouteByExtension(name string, filter KindFilter) (ResourceKind, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".flver"), strings.HasSuffix(lower, ".flv"), strings.HasSuffix(lower, ".flv.dcx"), strings.HasSuffix(lower, ".flver.dcx"):
		if !filter.Has(Flver) {
			return 0, false
		}
		return Flver, true
	case strings.HasSuffix(lower, ".nvm"):
		if !filter.Has(Navmesh) {
			return 0, false
		}
		return Navmesh, true
	case strings.HasSuffix(lower, ".hkx"), strings.HasSuffix(lower, ".hkx.dcx"):
		// Both kinds claim .hkx; Collision wins when both bits are set.
		// Neither bit set means the entry is excluded.
		if filter.Has(CollisionHkx) {
			return CollisionHkx, true
		}
		if filter.Has(NavmeshHkx) {
			return NavmeshHkx, true
		}
		return 0, false
	default:
		return 0, false
	}
}

// IsTextureContainer reports whether an archive entry name should be
// forwarded to the texture container-expansion stage instead of a
// per-kind pipeline.
func IsTextureContainer(name string) bool {
	return isTextureContainerExtension(name)
}

// IsDCXCompressed reports whether an entry name carries the DCX
// compression envelope this subsystem unwraps before handing bytes to a
// decoder.
func IsDCXCompressed(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".dcx")
}
