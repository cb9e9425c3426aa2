package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInRange(t *testing.T) {
	cases := []struct {
		ip, cidr string
		want     bool
	}{
		{"3.5.1.9", "3.5.0.0/16", true},
		{"3.6.1.9", "3.5.0.0/16", false},
		{"10.0.0.1", "0.0.0.0/0", true},
		{"52.95.110.1", "52.95.110.0/24", true},
		{"52.95.111.1", "52.95.110.0/24", false},
		// Familias distintas nunca matchean
		{"2600:1f00::1", "3.5.0.0/16", false},
		{"3.5.1.9", "2600:1f00::/24", false},
		// IPv6: bytes enteros + byte parcial
		{"2600:1f13:a:b::1", "2600:1f00::/24", true},
		{"2600:2000::1", "2600:1f00::/24", false},
		{"2001:db8:1234::1", "2001:db8:1234::/48", true},
		{"2001:db8:1235::1", "2001:db8:1234::/48", false},
		// CIDR malformado
		{"1.2.3.4", "1.2.3.4", false},
		{"1.2.3.4", "1.2.3.4/zz", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, InRange(c.ip, c.cidr), "%s in %s", c.ip, c.cidr)
	}
}

func TestClassifyLongestPrefixWins(t *testing.T) {
	table := New([]Range{
		{IPPrefix: "52.95.0.0/16", CloudProvider: "aws", Tag: "ec2"},
		{IPPrefix: "52.95.110.0/28", CloudProvider: "aws", Tag: "lambda"},
	})

	// Matchea /16 y /28: gana el /28
	assert.Equal(t, "aws:lambda", table.Classify("52.95.110.5"))
	// Solo matchea el /16
	assert.Equal(t, "aws:ec2", table.Classify("52.95.200.1"))
}

func TestClassifyNoMatch(t *testing.T) {
	table := New([]Range{
		{IPPrefix: "52.95.0.0/16", CloudProvider: "aws", Tag: "ec2"},
	})
	assert.Equal(t, "", table.Classify("8.8.8.8"))
	assert.Equal(t, "", table.Classify(""))
}

func TestClassifyIPv6Buckets(t *testing.T) {
	table := New([]Range{
		{IPPrefix: "2600:1f00::/24", CloudProvider: "aws", Tag: "ec2"},
		{IPPrefix: "2a0a:e5c0::/29", CloudProvider: "vpn", Tag: "mullvad"},
	})
	assert.Equal(t, "aws:ec2", table.Classify("2600:1f13::1"))
	assert.Equal(t, "vpn:mullvad", table.Classify("2a0a:e5c0:10::1"))
	assert.Equal(t, "", table.Classify("2a02::1"))
}

func TestResetCache(t *testing.T) {
	table := New([]Range{
		{IPPrefix: "1.0.0.0/8", CloudProvider: "cdn", Tag: "edge"},
	})
	assert.Equal(t, "cdn:edge", table.Classify("1.2.3.4"))
	table.ResetCache()
	// Después del reset el resultado se recalcula, no queda stale
	assert.Equal(t, "cdn:edge", table.Classify("1.2.3.4"))
}
