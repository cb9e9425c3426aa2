// Package util contiene helpers de enmascarado de PII. Toda identidad que
// sale por la capa de lectura pasa por acá: nunca se sirve una IP ni un
// teléfono completos.
package util

import "strings"

// MaskIP enmascara una dirección para la salida agregada.
// IPv4 conserva los tres primeros octetos: "a.b.c.XXX".
// IPv6 conserva dos grupos y los dos primeros dígitos del tercero:
// "a:b:cdXX:XXXX:XXXX:XXXX".
func MaskIP(ip string) string {
	if strings.Contains(ip, ".") {
		parts := strings.Split(ip, ".")
		if len(parts) < 4 {
			return ip
		}
		return parts[0] + "." + parts[1] + "." + parts[2] + ".XXX"
	}
	parts := strings.Split(ip, ":")
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	third := parts[2]
	for len(third) < 4 {
		third = "0" + third
	}
	return parts[0] + ":" + parts[1] + ":" + third[:2] + "XX:XXXX:XXXX:XXXX"
}

// MaskIPCoarse es la variante del feed de actividad reciente: redacta
// un carácter más del tercer componente que MaskIP.
func MaskIPCoarse(ip string) string {
	if strings.Contains(ip, ".") {
		parts := strings.Split(ip, ".")
		if len(parts) < 4 {
			return ip
		}
		third := parts[2]
		for len(third) < 3 {
			third = "0" + third
		}
		return parts[0] + "." + parts[1] + "." + third[:2] + "X.XXX"
	}
	parts := strings.Split(ip, ":")
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	third := parts[2]
	for len(third) < 4 {
		third = "0" + third
	}
	return parts[0] + ":" + parts[1] + ":" + third[:1] + "XXX:XXXX:XXXX:XXXX"
}

// MaskPhone conserva el prefijo y redacta los últimos 6 dígitos.
func MaskPhone(phone string) string {
	if phone == "" {
		return ""
	}
	if len(phone) <= 6 {
		return strings.Repeat("X", len(phone))
	}
	return phone[:len(phone)-6] + "XXXXXX"
}
