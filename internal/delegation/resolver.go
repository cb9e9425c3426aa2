// Package delegation implementa la resolución de delegaciones de voto sobre
// un snapshot inmutable del grafo.
//
// El grafo llega pre-agregado desde el object store (un JSON userId → nodo).
// Acá no se recorre recursivamente: se construye un índice inverso
// target → delegadores y se resuelve con un worklist DFS explícito con set de
// visitados por consulta, de modo que los ciclos terminan siempre.
//
// Un snapshot ausente o vacío no es un error: la agregación sigue con conteos
// de delegación en cero.
package delegation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dropDatabas3/ipvote/internal/storage"
)

// SnapshotKey es la key del snapshot vigente del grafo.
const SnapshotKey = "delegation_graph/latest.json"

// categoryAll es la única categoría que pesa en la resolución global.
const categoryAll = "all"

// Edge es una delegación saliente dentro de una categoría.
type Edge struct {
	Target string `json:"target"`
}

// Node es la entrada de un usuario en el snapshot.
type Node struct {
	Delegations map[string]Edge `json:"delegations"`
	PhoneNumber string          `json:"phoneNumber"`
}

// Snapshot es el grafo completo, userId → nodo. Inmutable una vez cargado.
type Snapshot map[string]Node

// LoadSnapshot lee el snapshot vigente. Not-found degrada a snapshot vacío.
func LoadSnapshot(ctx context.Context, store storage.BlobStore) (Snapshot, error) {
	body, err := store.Get(ctx, SnapshotKey)
	if err != nil {
		if storage.IsNotFound(err) {
			return Snapshot{}, nil
		}
		return nil, fmt.Errorf("delegation: read snapshot: %w", err)
	}
	var s Snapshot
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("delegation: decode snapshot: %w", err)
	}
	return s, nil
}

// Counts es el peso de delegación resuelto para un votante.
type Counts struct {
	// Delegated: delegadores transitivos que no emitieron voto directo.
	Delegated int
	// DelegatedVerifiedPhone: subconjunto con teléfono verificado único.
	DelegatedVerifiedPhone int
}

// Resolver resuelve pesos de delegación contra un snapshot fijo y un set de
// votantes directos fijo. Construye los índices una sola vez; las consultas
// posteriores son solo traversal.
type Resolver struct {
	snapshot Snapshot

	// reverse invierte las aristas de la categoría "all": target → delegadores.
	reverse map[string][]string

	// hasVoted marca a quienes emitieron voto directo; sus delegaciones no
	// cuentan ni se siguen.
	hasVoted map[string]bool

	// uniquePhone marca a los usuarios cuyo teléfono tiene exactamente un
	// dueño en el snapshot. Un teléfono compartido descalifica a todos.
	uniquePhone map[string]bool
}

// NewResolver construye los índices a partir del snapshot y de los userIds
// que ya votaron directo.
func NewResolver(snapshot Snapshot, castVoterIDs []string) *Resolver {
	r := &Resolver{
		snapshot:    snapshot,
		reverse:     make(map[string][]string),
		hasVoted:    make(map[string]bool, len(castVoterIDs)),
		uniquePhone: make(map[string]bool),
	}
	for _, id := range castVoterIDs {
		r.hasVoted[id] = true
	}

	phoneOwners := make(map[string][]string)
	for userID, node := range snapshot {
		if edge, ok := node.Delegations[categoryAll]; ok && edge.Target != "" {
			r.reverse[edge.Target] = append(r.reverse[edge.Target], userID)
		}
		if node.PhoneNumber != "" {
			phoneOwners[node.PhoneNumber] = append(phoneOwners[node.PhoneNumber], userID)
		}
	}
	for _, owners := range phoneOwners {
		if len(owners) == 1 {
			r.uniquePhone[owners[0]] = true
		}
	}
	return r
}

// Resolve computa el peso de delegación de un votante: cierre transitivo del
// índice inverso, excluyendo a quien ya votó directo. El set de visitados es
// por consulta; los ciclos del grafo no se recorren dos veces.
func (r *Resolver) Resolve(voterID string) Counts {
	if voterID == "" {
		return Counts{}
	}

	var c Counts
	visited := map[string]bool{voterID: true}
	worklist := []string{voterID}

	for len(worklist) > 0 {
		current := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		for _, delegator := range r.reverse[current] {
			if visited[delegator] {
				continue
			}
			visited[delegator] = true
			if r.hasVoted[delegator] {
				// Votó directo: su voto vale por sí mismo y su subárbol
				// no se transfiere.
				continue
			}
			c.Delegated++
			if r.uniquePhone[delegator] {
				c.DelegatedVerifiedPhone++
			}
			worklist = append(worklist, delegator)
		}
	}
	return c
}
