package diffcomposer

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
)

func FuzzComposeRoundTrip(f *testing.F) {
	f.Add([]byte("\x05\x00\x00\x00a\nb\nc\x03\x00\x00\x00a\nc"))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		a, err := consumer.GetString()
		if err != nil {
			return
		}
		b, err := consumer.GetString()
		if err != nil {
			return
		}
		if len(a) > 4096 || len(b) > 4096 {
			return
		}

		c := New()
		if d := c.Compose("f", a, a); !d.Empty() {
			t.Fatalf("Compose(a, a) produced %d hunks", len(d.Hunks))
		}

		d := c.Compose("f", a, b)
		got, err := c.Apply(a, d)
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		if got != b {
			t.Fatalf("round trip mismatch: got %q, want %q", got, b)
		}
		for i := 1; i < len(d.Hunks); i++ {
			if d.Hunks[i].OrigStart <= d.Hunks[i-1].OrigStart {
				t.Fatalf("hunks out of order at %d", i)
			}
		}
	})
}
