// Package packet classifies raw IPv4 datagrams read from the virtual
// interface. It only derives offsets; it never copies or mutates the buffer.
package packet

import (
	"github.com/haukened/rr-shield/internal/dns/domain"
	"github.com/haukened/rr-shield/internal/dns/gateways/wire"
)

const (
	// MinIPv4HeaderLen is the length of an IPv4 header without options.
	MinIPv4HeaderLen = 20
	// UDPHeaderLen is the fixed UDP header length.
	UDPHeaderLen = 8
	// ProtocolUDP is the IANA protocol number for UDP.
	ProtocolUDP = 17

	protocolOffset = 9
)

// Classify inspects the first length bytes of pkt. length is clamped to
// len(pkt).
func Classify(pkt []byte, length int) domain.Classification {
	if length > len(pkt) {
		length = len(pkt)
	}
	if length < MinIPv4HeaderLen {
		return domain.Unsupported()
	}
	if pkt[0]>>4 != 4 {
		return domain.Unsupported()
	}

	headerLen := int(pkt[0]&0x0F) * 4
	if pkt[protocolOffset] != ProtocolUDP {
		return domain.Classification{Class: domain.ClassIPv4Other, HeaderLen: headerLen}
	}

	payload := headerLen + UDPHeaderLen
	return domain.Classification{
		Class:         domain.ClassIPv4UDP,
		HeaderLen:     headerLen,
		PayloadOffset: payload,
		DNSEligible:   length > payload+wire.HeaderLen,
	}
}
