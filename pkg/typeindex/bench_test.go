package typeindex

import (
	"fmt"
	"testing"
)

// BenchmarkIndexTypes measures a full resolve (parse, build and lookup) over
// vocabularies of increasing size.
func BenchmarkIndexTypes(b *testing.B) {
	patterns := []string{"a*", "*b", "?c", "ab?", "*1", "x"}
	for _, size := range []int{1000, 10000, 100000} {
		types := make([]string, size)
		for i := range types {
			types[i] = fmt.Sprintf("%c%c%d", 'a'+i%26, 'a'+(i/26)%26, i)
		}
		b.Run(fmt.Sprintf("types_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := IndexTypes(patterns, types); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
