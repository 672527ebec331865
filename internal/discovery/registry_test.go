package discovery

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	name string
	addr string
}

func newItems() *Registry[string, item] {
	return NewRegistry[string, item](func(i item) string { return i.name })
}

func TestRegistryFirstSeenWins(t *testing.T) {
	r := newItems()

	assert.True(t, r.Add("AA", item{"PARANGOLE-1", "AA"}))
	assert.False(t, r.Add("AA", item{"renamed", "AA"}))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get("AA")
	require.True(t, ok)
	assert.Equal(t, "PARANGOLE-1", got.name)
}

func TestRegistryKeepsInsertionOrder(t *testing.T) {
	r := newItems()
	for _, k := range []string{"C", "A", "B", "A", "C"} {
		r.Add(k, item{name: "n" + k, addr: k})
	}

	var addrs []string
	for _, it := range r.List() {
		addrs = append(addrs, it.addr)
	}
	assert.Equal(t, []string{"C", "A", "B"}, addrs)
}

func TestRegistryRemove(t *testing.T) {
	r := newItems()
	r.Add("A", item{"x", "A"})

	assert.True(t, r.Remove("A"))
	assert.False(t, r.Remove("A"))
	assert.Zero(t, r.Len())
}

func TestRegistryRemoveByName(t *testing.T) {
	r := newItems()
	r.Add("10.0.0.1", item{"synth", "10.0.0.1"})
	r.Add("10.0.0.2", item{"drums", "10.0.0.2"})
	r.Add("fe80::1", item{"synth", "fe80::1"})

	assert.Equal(t, 2, r.RemoveByName("synth"))
	assert.Equal(t, []item{{"drums", "10.0.0.2"}}, r.List())
	assert.Zero(t, r.RemoveByName("missing"))
}

func TestRegistryRemoveByNameWithoutNamer(t *testing.T) {
	r := NewRegistry[string, int](nil)
	r.Add("a", 1)
	assert.Zero(t, r.RemoveByName("a"))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryReset(t *testing.T) {
	r := newItems()
	r.Add("A", item{"x", "A"})
	r.Reset()

	assert.Empty(t, r.List())
	assert.True(t, r.Add("A", item{"y", "A"}), "key is new again after reset")
}

func TestRegistryConcurrentAdds(t *testing.T) {
	r := NewRegistry[int, int](nil)

	var wg sync.WaitGroup
	added := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			added <- r.Add(i%10, i)
		}(i)
	}
	wg.Wait()
	close(added)

	wins := 0
	for ok := range added {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 10, wins)
	assert.Equal(t, 10, r.Len())
}
