package txqueue

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
)

// Substitutor rewrites the placeholder address that dApps see into the
// real session address at execution time. dApps build transactions
// against the placeholder; the real address only ever appears on
// chain.
type Substitutor struct {
	Placeholder common.Address
	Enabled     bool
}

// Apply returns a copy of req with the placeholder replaced by real in
// the From field and in the calldata. Calldata is only rewritten at
// 32-byte argument boundaries after the 4-byte selector; a placeholder
// appearing at any other offset is left untouched.
func (s *Substitutor) Apply(req Request, real common.Address) Request {
	if !s.Enabled {
		return req
	}

	out := req
	if req.From == s.Placeholder {
		out.From = real
	}

	if len(req.Data) >= 4+32 {
		out.Data = substituteWords(req.Data, s.Placeholder, real)
	}

	return out
}

func substituteWords(data []byte, placeholder, real common.Address) []byte {
	word := common.LeftPadBytes(placeholder.Bytes(), 32)
	replacement := common.LeftPadBytes(real.Bytes(), 32)

	out := make([]byte, len(data))
	copy(out, data)

	for off := 4; off+32 <= len(out); off += 32 {
		if bytes.Equal(out[off:off+32], word) {
			copy(out[off:off+32], replacement)
		}
	}
	return out
}
