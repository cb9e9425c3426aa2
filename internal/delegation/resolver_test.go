package delegation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/ipvote/internal/storage/memory"
)

func delegatesTo(target, phone string) Node {
	return Node{
		Delegations: map[string]Edge{"all": {Target: target}},
		PhoneNumber: phone,
	}
}

func TestResolveSingleDelegation(t *testing.T) {
	// B delega en A, ambos con teléfono único; A votó
	snapshot := Snapshot{
		"A": {PhoneNumber: "+1"},
		"B": delegatesTo("A", "+2"),
	}
	r := NewResolver(snapshot, []string{"A"})

	c := r.Resolve("A")
	assert.Equal(t, 1, c.Delegated)
	assert.Equal(t, 1, c.DelegatedVerifiedPhone)
}

func TestResolveTransitiveChain(t *testing.T) {
	// C → B → A: el cierre transitivo pesa 2
	snapshot := Snapshot{
		"B": delegatesTo("A", "+2"),
		"C": delegatesTo("B", ""),
	}
	r := NewResolver(snapshot, []string{"A"})

	c := r.Resolve("A")
	assert.Equal(t, 2, c.Delegated)
	assert.Equal(t, 1, c.DelegatedVerifiedPhone) // C no tiene teléfono
}

func TestResolveCycleTerminates(t *testing.T) {
	// A ↔ B en ciclo; C votó y no tiene relación con ellos
	snapshot := Snapshot{
		"A": delegatesTo("B", ""),
		"B": delegatesTo("A", ""),
	}
	r := NewResolver(snapshot, []string{"C"})

	c := r.Resolve("C")
	assert.Equal(t, 0, c.Delegated)

	// Resolver dentro del ciclo tampoco cuenta dos veces ni se cuelga
	c = r.Resolve("A")
	assert.Equal(t, 1, c.Delegated)
}

func TestResolveSharedPhoneDisqualifies(t *testing.T) {
	// Dos usuarios comparten teléfono y ambos delegan en X
	snapshot := Snapshot{
		"U1": delegatesTo("X", "+1"),
		"U2": delegatesTo("X", "+1"),
	}
	r := NewResolver(snapshot, []string{"X"})

	c := r.Resolve("X")
	assert.Equal(t, 2, c.Delegated)
	assert.Equal(t, 0, c.DelegatedVerifiedPhone)
}

func TestResolveSkipsDirectVoters(t *testing.T) {
	// B delega en A pero ya votó directo: su voto no se transfiere y su
	// subárbol (C → B) tampoco
	snapshot := Snapshot{
		"B": delegatesTo("A", "+2"),
		"C": delegatesTo("B", "+3"),
	}
	r := NewResolver(snapshot, []string{"A", "B"})

	c := r.Resolve("A")
	assert.Equal(t, 0, c.Delegated)
	assert.Equal(t, 0, c.DelegatedVerifiedPhone)
}

func TestResolveLargeCycle(t *testing.T) {
	// Anillo de 10k nodos que desemboca en el votante: termina y cuenta
	// cada nodo una sola vez
	snapshot := Snapshot{}
	const n = 10000
	for i := 0; i < n; i++ {
		snapshot[fmt.Sprintf("u%d", i)] = delegatesTo(fmt.Sprintf("u%d", (i+1)%n), "")
	}
	r := NewResolver(snapshot, []string{"u0"})

	c := r.Resolve("u0")
	assert.Equal(t, n-1, c.Delegated)
}

func TestLoadSnapshot(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	// Ausente: snapshot vacío, sin error
	s, err := LoadSnapshot(ctx, store)
	require.NoError(t, err)
	assert.Empty(t, s)

	body := `{"B":{"delegations":{"all":{"target":"A","targetPhone":"+1"}},"phoneNumber":"+2"}}`
	require.NoError(t, store.Put(ctx, SnapshotKey, []byte(body)))

	s, err = LoadSnapshot(ctx, store)
	require.NoError(t, err)
	require.Contains(t, s, "B")
	assert.Equal(t, "A", s["B"].Delegations["all"].Target)
	assert.Equal(t, "+2", s["B"].PhoneNumber)

	require.NoError(t, store.Put(ctx, SnapshotKey, []byte("not json")))
	_, err = LoadSnapshot(ctx, store)
	assert.Error(t, err)
}
