//go:build debug

package tags

import "fmt"

func describe() string {
	return fmt.Sprintf("frame %d", 1)
}
