// Package provider clasifica direcciones contra rangos CIDR etiquetados
// (cloud providers, VPN, Tor, CDN) con semántica longest-prefix-match.
//
// Los rangos se agrupan en buckets por el primer componente de la dirección
// (primer octeto decimal para v4, primer hextet tal como está escrito para
// v6) y dentro de cada bucket se ordenan por largo de prefijo descendente:
// el primer match es el más específico.
//
// Classify memoiza por IP durante una corrida batch; ResetCache debe
// llamarse entre corridas independientes para no arrastrar resultados
// stale (los rangos de origen rotan).
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/dropDatabas3/ipvote/internal/ipaddr"
	"github.com/dropDatabas3/ipvote/internal/storage"
)

// Range es un rango CIDR etiquetado tal como viene del JSON de origen.
type Range struct {
	IPPrefix      string `json:"ip_prefix"`
	CloudProvider string `json:"cloud_provider"`
	Tag           string `json:"tag"`
}

// Tag retorna la etiqueta compuesta "provider:tag" de un rango.
func (r Range) tagString() string { return r.CloudProvider + ":" + r.Tag }

// Table es la tabla de clasificación con su memo por corrida.
type Table struct {
	v4 map[string][]Range
	v6 map[string][]Range

	memo *gocache.Cache
}

// New construye la tabla desde los rangos dados.
func New(ranges []Range) *Table {
	t := &Table{
		v4:   make(map[string][]Range),
		v6:   make(map[string][]Range),
		memo: gocache.New(gocache.NoExpiration, 0),
	}
	for _, r := range ranges {
		if r.IPPrefix == "" {
			continue
		}
		if strings.Contains(r.IPPrefix, ":") {
			first := strings.SplitN(r.IPPrefix, ":", 2)[0]
			t.v6[first] = append(t.v6[first], r)
		} else {
			first := strings.SplitN(r.IPPrefix, ".", 2)[0]
			t.v4[first] = append(t.v4[first], r)
		}
	}
	for _, bucket := range t.v4 {
		sortByPrefixLen(bucket)
	}
	for _, bucket := range t.v6 {
		sortByPrefixLen(bucket)
	}
	return t
}

// Load lee el JSON de rangos desde el object store y construye la tabla.
func Load(ctx context.Context, store storage.BlobStore, key string) (*Table, error) {
	body, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("provider: read ranges %s: %w", key, err)
	}
	var ranges []Range
	if err := json.Unmarshal(body, &ranges); err != nil {
		return nil, fmt.Errorf("provider: parse ranges: %w", err)
	}
	return New(ranges), nil
}

// most specific first
func sortByPrefixLen(bucket []Range) {
	sort.SliceStable(bucket, func(i, j int) bool {
		return prefixLen(bucket[i].IPPrefix) > prefixLen(bucket[j].IPPrefix)
	})
}

func prefixLen(cidr string) int {
	parts := strings.SplitN(cidr, "/", 2)
	if len(parts) != 2 {
		return -1
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil {
		return -1
	}
	return n
}

// Classify retorna "provider:tag" del rango más específico que contiene la
// dirección, o "" si ningún rango la contiene. El resultado queda memoizado.
func (t *Table) Classify(ip string) string {
	if t == nil || ip == "" {
		return ""
	}
	if v, ok := t.memo.Get(ip); ok {
		s, _ := v.(string)
		return s
	}

	result := ""
	var bucket []Range
	if strings.Contains(ip, ":") {
		bucket = t.v6[strings.SplitN(ip, ":", 2)[0]]
	} else {
		bucket = t.v4[strings.SplitN(ip, ".", 2)[0]]
	}
	for _, r := range bucket {
		if InRange(ip, r.IPPrefix) {
			result = r.tagString()
			break
		}
	}

	t.memo.Set(ip, result, gocache.NoExpiration)
	return result
}

// ResetCache limpia el memo. Llamar entre corridas batch independientes.
func (t *Table) ResetCache() { t.memo.Flush() }

// InRange reporta si la dirección cae dentro del CIDR. Familias distintas
// nunca matchean. Para v4 se enmascaran los bits bajos sobre el uint32;
// para v6 se comparan bytes enteros y se enmascara el byte parcial final.
func InRange(ip, cidr string) bool {
	isV6 := strings.Contains(ip, ":")
	isCIDRv6 := strings.Contains(cidr, ":")
	if isV6 != isCIDRv6 {
		return false
	}

	parts := strings.SplitN(cidr, "/", 2)
	if len(parts) != 2 {
		return false
	}
	bits, err := strconv.Atoi(parts[1])
	if err != nil || bits < 0 {
		return false
	}

	if isV6 {
		if bits > 128 {
			return false
		}
		ipB, ok1 := ipaddr.V6ToBytes(ip)
		rangeB, ok2 := ipaddr.V6ToBytes(parts[0])
		if !ok1 || !ok2 {
			return false
		}
		fullBytes := bits / 8
		for i := 0; i < fullBytes; i++ {
			if ipB[i] != rangeB[i] {
				return false
			}
		}
		if rem := bits % 8; rem > 0 {
			mask := byte(0xff << (8 - rem))
			if ipB[fullBytes]&mask != rangeB[fullBytes]&mask {
				return false
			}
		}
		return true
	}

	if bits > 32 {
		return false
	}
	ipInt, ok1 := ipaddr.V4ToInt(ip)
	rangeInt, ok2 := ipaddr.V4ToInt(parts[0])
	if !ok1 || !ok2 {
		return false
	}
	var mask uint32
	if bits > 0 {
		mask = ^uint32(0) << (32 - bits)
	}
	return ipInt&mask == rangeInt&mask
}
