package serialize

import (
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/entitylink/anonlink-go/pkg/candidates"
)

// DumpCompressed writes list to w zstd-compressed, for shards destined
// for cold storage or network transfer rather than same-process
// consumption.
func DumpCompressed(w io.Writer, list *candidates.List) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := Dump(zw, list); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

// LoadCompressed reads a zstd-compressed candidate list written by
// DumpCompressed.
func LoadCompressed(r io.Reader) (*candidates.List, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return Load(zr)
}
