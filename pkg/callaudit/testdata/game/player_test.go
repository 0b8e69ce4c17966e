package game

import (
	"reflect"
	"testing"
)

func TestKind(t *testing.T) {
	if reflect.DeepEqual(Kind(1), "") {
		t.Fatal("empty kind")
	}
}
