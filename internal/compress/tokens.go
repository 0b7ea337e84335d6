package compress

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// CountTokens measures s with the cl100k_base encoding. If the encoding cannot
// be loaded it falls back to a bytes/4 estimate, which is close enough for
// budget checks that only feed an observability signal.
func CountTokens(s string) int {
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding == nil {
		return approxTokens(s)
	}
	return len(encoding.Encode(s, nil, nil))
}

func approxTokens(s string) int {
	n := len(s) / 4
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}
