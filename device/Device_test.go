package device

import (
	"errors"
	"testing"
)

func TestResolve(t *testing.T) {
	yes := func() bool { return true }
	no := func() bool { return false }

	tests := []struct {
		name  string
		pref  string
		probe Probe
		want  Device
		fails bool
	}{
		{"empty is auto without accelerator", "", no, CPU, false},
		{"auto with accelerator", "auto", yes, CUDA, false},
		{"auto without accelerator", "AUTO", no, CPU, false},
		{"explicit cpu ignores accelerator", "cpu", yes, CPU, false},
		{"cuda with accelerator", "cuda", yes, CUDA, false},
		{"cuda without accelerator", "cuda", no, "", true},
		{"nil probe", "auto", nil, CPU, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Resolve(test.pref, test.probe)
			if test.fails {
				if err == nil {
					t.Fatalf("expected error, got device %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got != test.want {
				t.Errorf("want(%v) have(%v)", test.want, got)
			}
		})
	}
}

func TestResolveUnknown(t *testing.T) {
	_, err := Resolve("tpu", NvidiaProbe)
	if !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("want ErrUnknownDevice, have %v", err)
	}
}
