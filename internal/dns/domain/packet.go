package domain

import "fmt"

// PacketClass is the coarse classification of a packet read from the
// virtual interface.
type PacketClass uint8

const (
	// ClassUnsupported covers anything that is not a parseable IPv4 packet.
	ClassUnsupported PacketClass = iota
	// ClassIPv4Other is an IPv4 packet carrying a protocol other than UDP.
	ClassIPv4Other
	// ClassIPv4UDP is an IPv4 packet carrying UDP.
	ClassIPv4UDP
)

// String returns a stable lowercase representation, suitable as a metric label.
func (c PacketClass) String() string {
	switch c {
	case ClassUnsupported:
		return "unsupported"
	case ClassIPv4Other:
		return "ipv4_other"
	case ClassIPv4UDP:
		return "ipv4_udp"
	default:
		return fmt.Sprintf("PacketClass(%d)", c)
	}
}

// Classification is a non-owning view of the offsets derived from a
// packet's IPv4 header. Offsets are only meaningful for ClassIPv4UDP.
type Classification struct {
	Class PacketClass
	// HeaderLen is the IPv4 header length in bytes (IHL * 4).
	HeaderLen int
	// PayloadOffset is where the DNS header starts: HeaderLen plus the
	// 8-byte UDP header.
	PayloadOffset int
	// DNSEligible is set when the packet is long enough to hold a DNS
	// header and at least one byte of question.
	DNSEligible bool
}

// Unsupported returns the classification for packets that cannot be parsed.
func Unsupported() Classification { return Classification{Class: ClassUnsupported} }
