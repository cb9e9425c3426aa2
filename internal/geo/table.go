// Package geo implementa la tabla de clasificación IP → país/continente/ASN.
//
// La tabla se construye una vez al inicio desde particiones pre-ordenadas en
// el object store y es inmutable después de Load: se comparte por referencia
// entre lookups concurrentes sin locking.
//
// Un miss de clasificación no es un error: el ledger degrada a país "XX" y
// ASN vacío para que la agregación nunca se bloquee por geodata faltante.
package geo

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/dropDatabas3/ipvote/internal/ipaddr"
	"github.com/dropDatabas3/ipvote/internal/storage"
)

// Info es el resultado de un lookup.
type Info struct {
	Country       string
	CountryName   string
	Continent     string
	ContinentName string
	ASN           string
	ASName        string
	ASDomain      string
}

type rangeV4 struct {
	start, end uint32
	info       Info
}

type rangeV6 struct {
	start, end [16]byte
	info       Info
}

type partitionV4 struct {
	start, end uint32
	ranges     []rangeV4
}

type partitionV6 struct {
	start, end [16]byte
	ranges     []rangeV6
}

// Table es la tabla cargada en memoria. Inmutable después de Load.
type Table struct {
	v4 []partitionV4
	v6 []partitionV6
}

// Load lee todas las particiones bajo prefix. Los nombres de key codifican el
// rango cubierto: ipv4_<start>_<end>.csv / ipv6_<start>_<end>.csv, con ';' en
// lugar de ':' para IPv6. Particiones con nombre inválido se ignoran.
func Load(ctx context.Context, store storage.BlobStore, prefix string) (*Table, error) {
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("geo: list partitions: %w", err)
	}

	t := &Table{}
	for _, key := range keys {
		name := strings.TrimSuffix(path.Base(key), ".csv")
		fields := strings.Split(name, "_")
		if len(fields) != 3 {
			continue
		}
		family, startIP, endIP := fields[0], fields[1], fields[2]

		body, err := store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("geo: read partition %s: %w", key, err)
		}

		switch family {
		case "ipv4":
			start, ok1 := ipaddr.V4ToInt(startIP)
			end, ok2 := ipaddr.V4ToInt(endIP)
			if !ok1 || !ok2 {
				continue
			}
			t.v4 = append(t.v4, partitionV4{start: start, end: end, ranges: parseRangesV4(body)})
		case "ipv6":
			start, ok1 := ipaddr.V6ToBytes(strings.ReplaceAll(startIP, ";", ":"))
			end, ok2 := ipaddr.V6ToBytes(strings.ReplaceAll(endIP, ";", ":"))
			if !ok1 || !ok2 {
				continue
			}
			t.v6 = append(t.v6, partitionV6{start: start, end: end, ranges: parseRangesV6(body)})
		}
	}

	sort.Slice(t.v4, func(i, j int) bool { return t.v4[i].start < t.v4[j].start })
	sort.Slice(t.v6, func(i, j int) bool {
		return ipaddr.Compare16(t.v6[i].start, t.v6[j].start) < 0
	})
	return t, nil
}

// parseRangesV4 parsea el cuerpo CSV de una partición (primera línea header).
// Líneas malformadas se saltean.
func parseRangesV4(body []byte) []rangeV4 {
	var out []rangeV4
	lines := strings.Split(string(body), "\n")
	for _, line := range lines[1:] {
		cols := strings.Split(line, ",")
		if len(cols) < 9 {
			continue
		}
		start, ok1 := ipaddr.V4ToInt(cols[0])
		end, ok2 := ipaddr.V4ToInt(cols[1])
		if !ok1 || !ok2 {
			continue
		}
		out = append(out, rangeV4{start: start, end: end, info: infoFromCols(cols)})
	}
	return out
}

func parseRangesV6(body []byte) []rangeV6 {
	var out []rangeV6
	lines := strings.Split(string(body), "\n")
	for _, line := range lines[1:] {
		cols := strings.Split(line, ",")
		if len(cols) < 9 {
			continue
		}
		start, ok1 := ipaddr.V6ToBytes(cols[0])
		end, ok2 := ipaddr.V6ToBytes(cols[1])
		if !ok1 || !ok2 {
			continue
		}
		out = append(out, rangeV6{start: start, end: end, info: infoFromCols(cols)})
	}
	return out
}

func infoFromCols(cols []string) Info {
	return Info{
		Country:       cols[2],
		CountryName:   cols[3],
		Continent:     cols[4],
		ContinentName: cols[5],
		ASN:           cols[6],
		ASName:        cols[7],
		ASDomain:      cols[8],
	}
}

// Lookup busca la clasificación de una dirección. Direcciones malformadas y
// direcciones fuera de todo rango cargado retornan ok=false.
func (t *Table) Lookup(ip string) (Info, bool) {
	if t == nil || ip == "" {
		return Info{}, false
	}
	if ipaddr.IsIPv6(ip) {
		v, ok := ipaddr.V6ToBytes(ip)
		if !ok {
			return Info{}, false
		}
		for i := range t.v6 {
			p := &t.v6[i]
			if ipaddr.Compare16(v, p.start) >= 0 && ipaddr.Compare16(v, p.end) <= 0 {
				// Scan lineal dentro de la partición (acotada por construcción)
				for _, r := range p.ranges {
					if ipaddr.Compare16(v, r.start) >= 0 && ipaddr.Compare16(v, r.end) <= 0 {
						return r.info, true
					}
				}
				return Info{}, false
			}
		}
		return Info{}, false
	}

	v, ok := ipaddr.V4ToInt(ip)
	if !ok {
		return Info{}, false
	}
	for i := range t.v4 {
		p := &t.v4[i]
		if v >= p.start && v <= p.end {
			for _, r := range p.ranges {
				if v >= r.start && v <= r.end {
					return r.info, true
				}
			}
			return Info{}, false
		}
	}
	return Info{}, false
}
