package memory

// FakeStackProbe is a controllable StackProbe for tests and the in-memory
// demo, where there is no real machine stack to read.
type FakeStackProbe struct {
	sp uint32
}

// NewFakeStackProbe starts the simulated stack pointer at sp.
func NewFakeStackProbe(sp uint32) *FakeStackProbe {
	return &FakeStackProbe{sp: sp}
}

func (f *FakeStackProbe) StackPointer() uint32 { return f.sp }

// Set moves the simulated stack pointer, as if the call stack grew or
// shrank.
func (f *FakeStackProbe) Set(sp uint32) { f.sp = sp }
