package network

import (
	"encoding/json"
	"testing"
)

func TestActivationJSON(t *testing.T) {
	in := []*Activation{ReLU(), TanH(), Sigmoid(), Identity()}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `["relu","tanh","sigmoid","identity"]` {
		t.Errorf("activations should serialise by name, have %s", data)
	}

	var out []*Activation
	if err := json.Unmarshal([]byte(`["sigmoid","relu"]`), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out[0].String() != "sigmoid" || out[1].String() != "relu" {
		t.Errorf("want [sigmoid relu], have %v", out)
	}
	if out[0].f == nil {
		t.Error("decoded activation has no function")
	}

	if err := json.Unmarshal([]byte(`["softmax"]`), &out); err == nil {
		t.Error("unknown activation should be rejected")
	}
}
