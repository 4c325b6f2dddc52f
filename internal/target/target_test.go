package target

import "testing"

func TestNaturalVF(t *testing.T) {
	tests := []struct {
		name     string
		bits     int
		elemBits int
		want     int
	}{
		{name: "128-bit f32", bits: 128, elemBits: 32, want: 4},
		{name: "256-bit f32", bits: 256, elemBits: 32, want: 8},
		{name: "512-bit f64", bits: 512, elemBits: 64, want: 8},
		{name: "128-bit i8", bits: 128, elemBits: 8, want: 16},
		{name: "element wider than register", bits: 128, elemBits: 256, want: 1},
		{name: "zero element width", bits: 128, elemBits: 0, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Features{VectorBits: tt.bits}
			if got := f.NaturalVF(tt.elemBits); got != tt.want {
				t.Errorf("NaturalVF(%d) = %d, want %d", tt.elemBits, got, tt.want)
			}
		})
	}
}

func TestDefaultUF(t *testing.T) {
	if got := (Features{VectorBits: 512}).DefaultUF(); got != 1 {
		t.Errorf("512-bit DefaultUF = %d, want 1", got)
	}
	if got := (Features{VectorBits: 128}).DefaultUF(); got != 2 {
		t.Errorf("128-bit DefaultUF = %d, want 2", got)
	}
}

func TestDetect(t *testing.T) {
	f := Detect()
	if f.VectorBits < 128 {
		t.Errorf("Detect().VectorBits = %d, below the 128-bit baseline", f.VectorBits)
	}
	if f.Name == "" {
		t.Error("Detect().Name is empty")
	}
}
