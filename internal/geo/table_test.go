package geo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ipvote/internal/storage/memory"
)

const header = "start_ip,end_ip,country,country_name,continent,continent_name,asn,as_name,as_domain\n"

func loadFixture(t *testing.T) *Table {
	t.Helper()
	store := memory.New()
	ctx := context.Background()

	_ = store.Put(ctx, "ip_info_partitioned/ipv4_1.0.0.0_9.255.255.255.csv", []byte(header+
		"1.0.0.0,1.0.0.255,AU,Australia,OC,Oceania,AS13335,Cloudflare,cloudflare.com\n"+
		"9.0.0.0,9.255.255.255,US,United States,NA,North America,AS3356,Level 3,lumen.com\n"))
	_ = store.Put(ctx, "ip_info_partitioned/ipv4_100.0.0.0_150.255.255.255.csv", []byte(header+
		"146.103.0.0,146.103.255.255,US,United States,NA,North America,AS7922,Comcast Cable Communications%2C LLC,comcast.com\n"))
	_ = store.Put(ctx, "ip_info_partitioned/ipv6_2a13;;_2a13;ffff;;.csv", []byte(header+
		"2a13:ef41::,2a13:ef41:ffff::,DE,Germany,EU,Europe,AS64496,Example Networks,example.net\n"))
	// Key malformada: se ignora sin romper el load
	_ = store.Put(ctx, "ip_info_partitioned/garbage.csv", []byte("nope"))

	table, err := Load(ctx, store, "ip_info_partitioned/")
	require.NoError(t, err)
	return table
}

func TestLookupIPv4(t *testing.T) {
	table := loadFixture(t)

	info, ok := table.Lookup("146.103.108.202")
	require.True(t, ok)
	assert.Equal(t, "US", info.Country)
	assert.Equal(t, "Comcast Cable Communications%2C LLC", info.ASName)

	info, ok = table.Lookup("1.0.0.42")
	require.True(t, ok)
	assert.Equal(t, "AU", info.Country)

	// Dentro de la partición pero fuera de todo rango
	_, ok = table.Lookup("5.5.5.5")
	assert.False(t, ok)

	// Fuera de toda partición
	_, ok = table.Lookup("200.1.1.1")
	assert.False(t, ok)
}

func TestLookupIPv6(t *testing.T) {
	table := loadFixture(t)

	info, ok := table.Lookup("2a13:ef41:a000::1")
	require.True(t, ok)
	assert.Equal(t, "DE", info.Country)

	_, ok = table.Lookup("2a14::1")
	assert.False(t, ok)
}

func TestLookupMalformed(t *testing.T) {
	table := loadFixture(t)
	for _, ip := range []string{"", "256.256.256.256", "1.2.3", "invalid_ip", "1::2::3", "1:2:3:4:5:6:7"} {
		_, ok := table.Lookup(ip)
		assert.False(t, ok, ip)
	}
}

func TestLookupContainmentProperty(t *testing.T) {
	table := loadFixture(t)
	// Toda respuesta positiva proviene de un rango que contiene la dirección:
	// los extremos de cada rango cargado se resuelven a sí mismos.
	for _, ip := range []string{"1.0.0.0", "1.0.0.255", "146.103.0.0", "146.103.255.255"} {
		_, ok := table.Lookup(ip)
		assert.True(t, ok, ip)
	}
}
