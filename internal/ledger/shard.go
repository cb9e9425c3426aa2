package ledger

import (
	"github.com/dropDatabas3/ipvote/internal/ipaddr"
)

// Layout de keys en el object store. El shard es la unidad de concurrencia
// de escritura: un (poll, bucket-de-prefijo-IP).

const (
	votesPrefix = "votes/poll="

	// OpenPrefix marca el namespace de polls de opción libre. Los polls
	// directos no pueden crearse con este prefijo.
	OpenPrefix = "open_"
)

// ShardKey arma la key del shard para un poll y una partición de IP.
func ShardKey(poll, partition string) string {
	return votesPrefix + poll + "/ip_prefix=" + partition + "/votes.csv"
}

// PollPrefix es el prefijo de listado de todos los shards de un poll.
func PollPrefix(poll string) string {
	return votesPrefix + poll + "/ip_prefix="
}

// AllPollsPrefix lista todos los shards de todos los polls.
const AllPollsPrefix = "votes/"

// DisabledKey es la key del sentinel de poll deshabilitado. Su sola
// presencia deshabilita el poll; el contenido no importa.
func DisabledKey(poll string) string {
	return votesPrefix + poll + "/disabled"
}

// PartitionFor deriva la partición del shard desde la IP del votante.
func PartitionFor(ip string) (string, bool) {
	return ipaddr.PartitionKey(ip)
}
