package gen

import (
	"encoding/json"
	"testing"
)

func TestFields(t *testing.T) {
	if _, err := json.Marshal(Fields("a b")); err != nil {
		t.Fatal(err)
	}
}
