package riegeli

import (
	"sort"

	"github.com/ChiZhang0907/riegeli/internal/bytestream"
	"github.com/ChiZhang0907/riegeli/rerror"
)

// RecordsMetadata carries the file-level comment and arbitrary string
// key/values stored in the metadata chunk that immediately follows the
// file signature (spec.md §4.5.3). The real format embeds a protobuf
// RecordsMetadata message; this port has no descriptor machinery to
// reconstruct that, so it substitutes a minimal struct marshaled with
// the same varint-typed key/value TLV scheme the teacher's header.go
// uses for its own self-describing header block, still physically
// carried inside a FileMetadata chunk so the chunk-shape invariant
// ("one metadata chunk after the signature") holds.
type RecordsMetadata struct {
	FileComment string
	Custom      map[string]string
}

func (m RecordsMetadata) marshal() []byte {
	var buf []byte
	buf = putString(buf, m.FileComment)
	buf = bytestream.PutVarint(buf, uint64(len(m.Custom)))
	keys := make([]string, 0, len(m.Custom))
	for k := range m.Custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf = putString(buf, k)
		buf = putString(buf, m.Custom[k])
	}
	return buf
}

func unmarshalMetadata(data []byte) (RecordsMetadata, error) {
	var m RecordsMetadata
	var err error
	m.FileComment, data, err = takeString(data)
	if err != nil {
		return m, rerror.Annotate(err, "metadata file comment")
	}
	n, data, err := takeUvarint(data)
	if err != nil {
		return m, rerror.Annotate(err, "metadata custom-value count")
	}
	if n > 0 {
		m.Custom = make(map[string]string, n)
	}
	for i := uint64(0); i < n; i++ {
		var k, v string
		k, data, err = takeString(data)
		if err != nil {
			return m, rerror.Annotate(err, "metadata custom key")
		}
		v, data, err = takeString(data)
		if err != nil {
			return m, rerror.Annotate(err, "metadata custom value")
		}
		m.Custom[k] = v
	}
	return m, nil
}

func putString(dst []byte, s string) []byte {
	dst = bytestream.PutVarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func takeUvarint(data []byte) (uint64, []byte, error) {
	v, n := bytestream.Varint(data)
	if n == 0 {
		return 0, nil, rerror.New(rerror.DataLoss, "truncated metadata varint")
	}
	return v, data[n:], nil
}

func takeString(data []byte) (string, []byte, error) {
	n, rest, err := takeUvarint(data)
	if err != nil {
		return "", nil, err
	}
	if uint64(len(rest)) < n {
		return "", nil, rerror.New(rerror.DataLoss, "truncated metadata string")
	}
	return string(rest[:n]), rest[n:], nil
}
