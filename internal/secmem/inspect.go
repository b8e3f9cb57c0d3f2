package secmem

// Inspector observes memory that has just been wiped, before it is released.
// Production code passes nil; tests use it to assert that keys are zeroed.
type Inspector interface {
	Inspect(label string, mem []byte)
}

// InspectorFunc adapts a function to Inspector.
type InspectorFunc func(label string, mem []byte)

func (f InspectorFunc) Inspect(label string, mem []byte) { f(label, mem) }

// Release wipes b, shows the wiped memory to insp if set, then destroys b.
func Release(b *Buffer, label string, insp Inspector) {
	if !b.IsAlive() {
		b.Destroy()
		return
	}
	b.Wipe()
	if insp != nil {
		insp.Inspect(label, b.lb.Bytes())
	}
	b.Destroy()
}
