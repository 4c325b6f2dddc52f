// Package target maps detected CPU features to the vector width the
// planner should assume. The plan itself is width-agnostic; this package
// only feeds the factors the demo tooling plugs into codegen.
package target

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Features summarizes the SIMD capability tiers relevant to width
// selection.
type Features struct {
	VectorBits int
	Name       string
}

// Detect inspects the running CPU. Unknown architectures report the
// 128-bit baseline every supported target guarantees.
func Detect() Features {
	switch runtime.GOARCH {
	case "amd64":
		switch {
		case cpu.X86.HasAVX512F:
			return Features{VectorBits: 512, Name: "avx512"}
		case cpu.X86.HasAVX2:
			return Features{VectorBits: 256, Name: "avx2"}
		case cpu.X86.HasAVX:
			return Features{VectorBits: 256, Name: "avx"}
		default:
			return Features{VectorBits: 128, Name: "sse2"}
		}
	case "arm64":
		// NEON is architectural on arm64.
		return Features{VectorBits: 128, Name: "neon"}
	default:
		return Features{VectorBits: 128, Name: "generic"}
	}
}

// NaturalVF returns the number of lanes of the given element width that
// fill one vector register.
func (f Features) NaturalVF(elemBits int) int {
	if elemBits <= 0 {
		return 1
	}
	vf := f.VectorBits / elemBits
	if vf < 1 {
		return 1
	}
	return vf
}

// DefaultUF returns the interleave count used when the planner has no cost
// model to consult. Wider machines hide latency with less unrolling.
func (f Features) DefaultUF() int {
	if f.VectorBits >= 512 {
		return 1
	}
	return 2
}
