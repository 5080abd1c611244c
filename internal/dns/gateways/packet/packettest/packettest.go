// Package packettest builds raw IPv4 packets for tests.
package packettest

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/require"
)

// Query packs a standard A query for name.
func Query(t testing.TB, name string) []byte {
	t.Helper()
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), dns.TypeA)
	b, err := m.Pack()
	require.NoError(t, err)
	return b
}

// UDP wraps payload in an IPv4/UDP datagram from the tunnel address to a
// public resolver on port 53.
func UDP(t testing.TB, payload []byte) []byte {
	t.Helper()
	ip := header(layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ip, udp, gopacket.Payload(payload))
}

// DNSQuery is UDP(Query(name)).
func DNSQuery(t testing.TB, name string) []byte {
	t.Helper()
	return UDP(t, Query(t, name))
}

// TCP builds an IPv4/TCP segment carrying payload.
func TCP(t testing.TB, payload []byte) []byte {
	t.Helper()
	ip := header(layers.IPProtocolTCP)
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 443, Seq: 1, SYN: true, Window: 65535}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ip, tcp, gopacket.Payload(payload))
}

func header(proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IPv4(10, 0, 0, 2),
		DstIP:    net.IPv4(8, 8, 8, 8),
	}
}

func serialize(t testing.TB, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}
