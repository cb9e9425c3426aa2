// Package ipaddr contiene el parsing y la aritmética de direcciones IP que
// usan las tablas de clasificación y el ledger: conversión a valores
// comparables (uint32 para v4, [16]byte para v6), expansión de la notación
// "::", prefijo /64 para dedup y la partition key de los shards.
//
// Todas las funciones son puras y retornan ok=false ante input malformado;
// ningún caller debería tratar un malformado como error fatal.
package ipaddr

import (
	"bytes"
	"strconv"
	"strings"
)

// IsIPv6 detecta la familia por la presencia de ':'.
func IsIPv6(ip string) bool { return strings.Contains(ip, ":") }

// V4ToInt convierte una dirección IPv4 decimal a uint32.
// Valida cantidad de octetos y rango 0-255.
func V4ToInt(ip string) (uint32, bool) {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return 0, false
	}
	var v uint32
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return 0, false
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return 0, false
		}
		v = v<<8 | uint32(n)
	}
	return v, true
}

// expand6 expande la notación "::" a 8 grupos. Más de un "::" o una cantidad
// de grupos incompatible invalida la dirección. No normaliza el padding.
func expand6(ip string) ([]string, bool) {
	// Zone index (fe80::1%eth0) se descarta
	if i := strings.IndexByte(ip, '%'); i >= 0 {
		ip = ip[:i]
	}
	if ip == "::" {
		return []string{"0", "0", "0", "0", "0", "0", "0", "0"}, true
	}
	if strings.Contains(ip, "::") {
		halves := strings.SplitN(ip, "::", 2)
		if strings.Contains(halves[1], "::") {
			return nil, false
		}
		var left, right []string
		if halves[0] != "" {
			left = strings.Split(halves[0], ":")
		}
		if halves[1] != "" {
			right = strings.Split(halves[1], ":")
		}
		missing := 8 - len(left) - len(right)
		if missing < 0 {
			return nil, false
		}
		groups := make([]string, 0, 8)
		groups = append(groups, left...)
		for i := 0; i < missing; i++ {
			groups = append(groups, "0")
		}
		groups = append(groups, right...)
		return groups, true
	}
	groups := strings.Split(ip, ":")
	if len(groups) != 8 {
		return nil, false
	}
	return groups, true
}

// V6ToBytes convierte una dirección IPv6 (posiblemente comprimida) a sus
// 16 bytes big-endian. El orden de bytes preserva el orden numérico, así que
// bytes.Compare sirve para comparar rangos.
func V6ToBytes(ip string) ([16]byte, bool) {
	var out [16]byte
	groups, ok := expand6(ip)
	if !ok {
		return out, false
	}
	for i, g := range groups {
		if g == "" || len(g) > 4 {
			return out, false
		}
		n, err := strconv.ParseUint(g, 16, 32)
		if err != nil || n > 0xffff {
			return out, false
		}
		out[i*2] = byte(n >> 8)
		out[i*2+1] = byte(n)
	}
	return out, true
}

// Compare16 compara dos valores IPv6 de 16 bytes.
func Compare16(a, b [16]byte) int { return bytes.Compare(a[:], b[:]) }

// Expand retorna la dirección IPv6 en forma canónica de 8 grupos de 4 dígitos
// hex en minúscula.
func Expand(ip string) (string, bool) {
	b, ok := V6ToBytes(ip)
	if !ok {
		return "", false
	}
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		if i > 0 {
			sb.WriteByte(':')
		}
		v := uint16(b[i*2])<<8 | uint16(b[i*2+1])
		s := strconv.FormatUint(uint64(v), 16)
		for len(s) < 4 {
			s = "0" + s
		}
		sb.WriteString(s)
	}
	return sb.String(), true
}

// Prefix64 retorna los primeros 4 grupos expandidos (el bloque /64).
// Es la identidad de dedup para IPv6: rotar direcciones dentro del mismo /64
// no evade el cooldown.
func Prefix64(ip string) (string, bool) {
	full, ok := Expand(ip)
	if !ok {
		return "", false
	}
	groups := strings.SplitN(full, ":", 5)
	return strings.Join(groups[:4], ":"), true
}

// PartitionKey deriva el bucket de shard para una dirección:
// IPv4: primeros 2 caracteres del primer octeto con padding a 3 dígitos.
// IPv6: primeros 2 caracteres del primer grupo con padding a 4 dígitos.
func PartitionKey(ip string) (string, bool) {
	if IsIPv6(ip) {
		first := strings.SplitN(ip, ":", 2)[0]
		for len(first) < 4 {
			first = "0" + first
		}
		return first[:2], true
	}
	if strings.Contains(ip, ".") {
		first := strings.SplitN(ip, ".", 2)[0]
		for len(first) < 3 {
			first = "0" + first
		}
		return first[:2], true
	}
	return "", false
}
