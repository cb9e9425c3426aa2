// Codec de registros de voto.
//
// El formato en disco es CSV posicional y ya cambió de schema más de una vez;
// en lugar de cirugía de columnas, el decode es versionado por cantidad de
// columnas y el encode siempre escribe la versión vigente (v2). Líneas
// malformadas se saltean, nunca son fatales: un shard con basura parcial
// sigue siendo legible.
package ledger

import (
	"strconv"
	"strings"
)

// Regiones de medición de latencia que arrastra el schema v2. Este core las
// transporta opacas; la triangulación por latencia vive en otro sistema.
var latencyRegions = []string{
	"eu-central-1", "ap-northeast-1", "sa-east-1", "us-east-1",
	"us-west-2", "ap-south-1", "eu-west-1", "af-south-1",
}

const (
	colsV1 = 8  // time,ip,poll_,vote,country,nonce,country_geoip,asn_name_geoip
	colsV2 = 15 + 8
)

// HeaderV2 es el header que se escribe en shards nuevos.
var HeaderV2 = "time,ip,poll_,vote,country_geoip,asn_name_geoip,is_tor,is_vpn," +
	"is_cloud_provider,closest_region,latency_ms,roundtrip_ms,captcha_verified," +
	"phone_number,user_id," + strings.Join(suffixed(latencyRegions, "-latency"), ",")

func suffixed(ss []string, suffix string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s + suffix
	}
	return out
}

// Record es un registro de voto decodificado. Inmutable una vez observado
// durablemente; los campos string opacos (latencias, región) se preservan
// tal cual en re-encodes.
type Record struct {
	Time            int64
	IP              string
	Poll            string
	Vote            string
	CountryGeoIP    string
	ASNNameGeoIP    string
	IsTor           string
	IsVPN           string
	IsCloudProvider string
	ClosestRegion   string
	LatencyMs       string
	RoundtripMs     string
	CaptchaVerified string
	PhoneNumber     string
	UserID          string
	RegionLatencies []string // alineadas con latencyRegions; puede ser nil
}

// DecodeLine decodifica una línea CSV según su cantidad de columnas.
// Retorna ok=false para headers, líneas vacías y líneas malformadas.
func DecodeLine(line string) (Record, bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return Record{}, false
	}
	cols := strings.Split(line, ",")

	t, err := strconv.ParseInt(cols[0], 10, 64)
	if err != nil || t <= 0 || len(cols) < 2 || cols[1] == "" {
		return Record{}, false
	}

	switch {
	case len(cols) == colsV1:
		return Record{
			Time:         t,
			IP:           cols[1],
			Poll:         cols[2],
			Vote:         cols[3],
			CountryGeoIP: cols[6],
			ASNNameGeoIP: cols[7],
		}, true
	case len(cols) == 15 || len(cols) == colsV2:
		r := Record{
			Time:            t,
			IP:              cols[1],
			Poll:            cols[2],
			Vote:            cols[3],
			CountryGeoIP:    cols[4],
			ASNNameGeoIP:    cols[5],
			IsTor:           cols[6],
			IsVPN:           cols[7],
			IsCloudProvider: cols[8],
			ClosestRegion:   cols[9],
			LatencyMs:       cols[10],
			RoundtripMs:     cols[11],
			CaptchaVerified: cols[12],
			PhoneNumber:     cols[13],
			UserID:          cols[14],
		}
		if len(cols) == colsV2 {
			r.RegionLatencies = cols[15:]
		}
		return r, true
	default:
		return Record{}, false
	}
}

// EncodeLine serializa el registro en el schema v2 (sin newline final).
func (r Record) EncodeLine() string {
	lat := r.RegionLatencies
	if len(lat) != len(latencyRegions) {
		lat = make([]string, len(latencyRegions))
	}
	cols := []string{
		strconv.FormatInt(r.Time, 10),
		r.IP,
		r.Poll,
		r.Vote,
		r.CountryGeoIP,
		r.ASNNameGeoIP,
		r.IsTor,
		r.IsVPN,
		r.IsCloudProvider,
		r.ClosestRegion,
		r.LatencyMs,
		r.RoundtripMs,
		r.CaptchaVerified,
		r.PhoneNumber,
		r.UserID,
	}
	cols = append(cols, lat...)
	return strings.Join(cols, ",")
}

// DecodeShard decodifica el cuerpo completo de un shard, salteando el header
// y toda línea malformada.
func DecodeShard(body []byte) []Record {
	lines := strings.Split(string(body), "\n")
	out := make([]Record, 0, len(lines))
	for _, line := range lines {
		if r, ok := DecodeLine(line); ok {
			out = append(out, r)
		}
	}
	return out
}
