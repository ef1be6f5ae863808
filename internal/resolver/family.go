package resolver

import (
	"fmt"
	"net/netip"
	"strings"
)

// Family restricts which address families are dialed.
type Family int

const (
	FamilyAny Family = iota
	FamilyIPv4
	FamilyIPv6
)

// ParseFamily accepts "any" (or ""), "4"/"ipv4" and "6"/"ipv6".
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return FamilyAny, nil
	case "4", "ipv4":
		return FamilyIPv4, nil
	case "6", "ipv6":
		return FamilyIPv6, nil
	default:
		return FamilyAny, fmt.Errorf("unknown address family %q (want any|4|6)", s)
	}
}

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	default:
		return "any"
	}
}

func (f Family) allows(a netip.Addr) bool {
	switch f {
	case FamilyIPv4:
		return a.Unmap().Is4()
	case FamilyIPv6:
		return a.Is6() && !a.Is4In6()
	default:
		return a.IsValid()
	}
}
