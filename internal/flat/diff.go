package flat

// Diff returns the keys of local that are absent from remote or bound to a
// different value there, in local order. Keys only present in remote are
// never included; an empty remote yields all of local.
func Diff(local, remote *Map) *Map {
	out := New()
	for k, v := range local.All() {
		if rv, ok := remote.Get(k); !ok || rv != v {
			out.Set(k, v)
		}
	}
	return out
}

// Missing returns the keys of base absent from other, bound to the base values.
func Missing(base, other *Map) *Map {
	out := New()
	for k, v := range base.All() {
		if !other.Has(k) {
			out.Set(k, v)
		}
	}
	return out
}

// Stale returns the keys of other that base does not have, in other's order.
func Stale(base, other *Map) []string {
	var stale []string
	for k := range other.All() {
		if !base.Has(k) {
			stale = append(stale, k)
		}
	}
	return stale
}
