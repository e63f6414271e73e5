package kfmt

import (
	"bytes"
	"errors"
	"testing"
)

func TestPrefixWriter(t *testing.T) {
	specs := []struct {
		input string
		exp   string
	}{
		{"", ""},
		{"\n", "[pci] \n"},
		{"no line break", "[pci] no line break"},
		{"line feed at the end\n", "[pci] line feed at the end\n"},
		{
			"\nbus 0\ndevice 1\nfunction 2",
			"[pci] \n[pci] bus 0\n[pci] device 1\n[pci] function 2",
		},
	}

	for specIndex, spec := range specs {
		var buf bytes.Buffer
		w := PrefixWriter{Sink: &buf, Prefix: []byte("[pci] ")}

		wrote, err := w.Write([]byte(spec.input))
		if err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
		}

		if expLen := len(spec.input); expLen != wrote {
			t.Errorf("[spec %d] expected writer to write %d bytes; wrote %d", specIndex, expLen, wrote)
		}

		if got := buf.String(); got != spec.exp {
			t.Errorf("[spec %d] expected output:\n%q\ngot:\n%q", specIndex, spec.exp, got)
		}
	}
}

func TestPrefixWriterAcrossWrites(t *testing.T) {
	var buf bytes.Buffer
	w := PrefixWriter{Sink: &buf, Prefix: []byte("[hal] ")}

	Fprintf(&w, "rtc(%d.%d.%d): ", 0, 1, 0)
	Fprintf(&w, "initialized\n")
	Fprintf(&w, "ahci(%d.%d.%d): ", 0, 1, 0)

	exp := "[hal] rtc(0.1.0): initialized\n[hal] ahci(0.1.0): "
	if got := buf.String(); got != exp {
		t.Fatalf("expected output:\n%q\ngot:\n%q", exp, got)
	}
}

func TestPrefixWriterErrors(t *testing.T) {
	expErr := errors.New("write failed")

	for specIndex, spec := range []string{"no line break", "\nline one\nline two"} {
		w := PrefixWriter{
			Sink:   writerThatAlwaysErrors{expErr},
			Prefix: []byte("[pci] "),
		}
		if _, err := w.Write([]byte(spec)); err != expErr {
			t.Errorf("[spec %d] expected error: %v; got %v", specIndex, expErr, err)
		}
	}
}

type writerThatAlwaysErrors struct {
	err error
}

func (w writerThatAlwaysErrors) Write(_ []byte) (int, error) {
	return 0, w.err
}
