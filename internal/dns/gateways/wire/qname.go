// Package wire reads DNS names straight out of raw packet buffers.
//
// The decoder is deliberately simple: it follows length-prefixed labels
// from the first question only, does not follow compression pointers, and
// maps every byte to the rune with the same code point. Truncated input
// yields a partial name instead of an error, so the caller can still make a
// blocking decision on whatever was readable.
package wire

import "strings"

// HeaderLen is the size of the fixed DNS message header.
const HeaderLen = 12

// ExtractQueryName returns the first question name of the DNS message whose
// header starts at dnsStart in packet. Callers must check that packet is
// longer than dnsStart+HeaderLen; the decoder itself only ever reads within
// len(packet).
//
// ok is false only when dnsStart does not point inside packet.
func ExtractQueryName(packet []byte, dnsStart int) (name string, ok bool) {
	if dnsStart < 0 || dnsStart > len(packet) {
		return "", false
	}

	var b strings.Builder
	pos := dnsStart + HeaderLen
	first := true
	for pos < len(packet) {
		n := int(packet[pos])
		if n == 0 {
			break
		}
		if !first {
			b.WriteByte('.')
		}
		first = false
		pos++

		end := pos + n
		if end > len(packet) {
			end = len(packet)
		}
		for _, c := range packet[pos:end] {
			b.WriteRune(rune(c))
		}
		pos = end
	}
	return b.String(), true
}
