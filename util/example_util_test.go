package util

import (
	"fmt"
)

func ExampleChunkStrings() {
	fmt.Println(ChunkStrings([]string{"a", "b", "c", "d", "e"}, 2))
	// Output: [[a b] [c d] [e]]
}

func ExampleTrimForEPICS() {
	msg := "this message is longer than forty characters, much longer"
	fmt.Println(len(TrimForEPICS(msg)))
	// Output: 39
}

func ExampleLinspace() {
	fmt.Println(Linspace(-1, 1, 5))
	// Output: [-1 -0.5 0 0.5 1]
}
