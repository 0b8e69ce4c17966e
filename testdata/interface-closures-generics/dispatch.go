package dispatch

import (
	"fmt"
	"reflect"
	"sync"
)

type Shape interface {
	Area() float64
}

func Sizes(shapes []Shape) []float64 {
	out := make([]float64, 0, len(shapes))
	for _, s := range shapes {
		out = append(out, s.Area())
	}
	return out
}

func KindOf(t reflect.Type) string {
	return t.Kind().String()
}

func Visit(m *sync.Map) {
	m.Range(func(k, v any) bool {
		_ = fmt.Sprintf("%v=%v", k, v)
		return true
	})
}

func Format[T any](v T) string {
	return fmt.Sprintf("%v", v)
}

func Both() (string, string) {
	return Format(1), Format("a")
}
