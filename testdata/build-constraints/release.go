//go:build !debug

package tags

func describe() string {
	return "frame"
}
