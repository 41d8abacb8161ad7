package bytestream

import "io"

// Chain is a rope of immutable byte fragments — the stand-in for the
// C++ library's Chain/Cord types (spec.md §3, "Record"; §9, "absl::Cord
// rope as a first-class sink/source type"). Writer.WriteChain accepts a
// Chain without forcing a linear copy of large payloads; a flat []byte
// is just a one-fragment Chain.
type Chain struct {
	fragments [][]byte
	size      int64
}

// ChainOf builds a Chain from existing fragments without copying them.
// The caller must not mutate a fragment after handing it to ChainOf.
func ChainOf(fragments ...[]byte) Chain {
	c := Chain{fragments: fragments}
	for _, f := range fragments {
		c.size += int64(len(f))
	}
	return c
}

// Len returns the total number of bytes across all fragments.
func (c Chain) Len() int64 { return c.size }

// Fragments returns the underlying fragment list. The caller must treat
// it as read-only.
func (c Chain) Fragments() [][]byte { return c.fragments }

// Append adds a fragment to the end of the chain, returning the new
// Chain. The original is left untouched.
func (c Chain) Append(fragment []byte) Chain {
	out := Chain{
		fragments: append(append([][]byte{}, c.fragments...), fragment),
		size:      c.size + int64(len(fragment)),
	}
	return out
}

// CopyTo writes every fragment to w in order.
func (c Chain) CopyTo(w io.Writer) error {
	for _, f := range c.fragments {
		if len(f) == 0 {
			continue
		}
		if _, err := w.Write(f); err != nil {
			return err
		}
	}
	return nil
}

// Flatten concatenates all fragments into a single slice. Prefer CopyTo
// or Fragments for large chains to avoid the copy.
func (c Chain) Flatten() []byte {
	if len(c.fragments) == 1 {
		return c.fragments[0]
	}
	out := make([]byte, 0, c.size)
	for _, f := range c.fragments {
		out = append(out, f...)
	}
	return out
}

// chainReader adapts a Chain to io.Reader, used by codecs that only know
// how to stream from an io.Reader.
type chainReader struct {
	frags []([]byte)
}

// NewChainReader returns an io.Reader over c's fragments, read in order.
func NewChainReader(c Chain) io.Reader {
	return &chainReader{frags: append([][]byte{}, c.fragments...)}
}

func (r *chainReader) Read(p []byte) (int, error) {
	for len(r.frags) > 0 && len(r.frags[0]) == 0 {
		r.frags = r.frags[1:]
	}
	if len(r.frags) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.frags[0])
	r.frags[0] = r.frags[0][n:]
	return n, nil
}
