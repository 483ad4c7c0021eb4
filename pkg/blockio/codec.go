package blockio

import (
	"context"
	"fmt"

	cid "github.com/ipfs/go-cid"
	cbornode "github.com/ipfs/go-ipld-cbor"
	"github.com/ipfs/go-merkledag"
	"github.com/multiformats/go-multibase"
	mh "github.com/multiformats/go-multihash"
)

// WriteCBOR serializes v with the modern codec, stores the block and returns
// its content address. Identical values yield identical addresses.
func WriteCBOR(ctx context.Context, s Store, v interface{}, pinned bool) (cid.Cid, error) {
	nd, err := cbornode.WrapObject(v, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("cbor encode: %w", err)
	}
	if err := s.Put(ctx, nd); err != nil {
		return cid.Undef, fmt.Errorf("store block: %w", err)
	}
	if pinned {
		if err := pin(ctx, s, nd.Cid()); err != nil {
			return cid.Undef, fmt.Errorf("pin block: %w", err)
		}
	}
	return nd.Cid(), nil
}

// ReadCBOR fetches the block at c and decodes it into out, which must be a
// generic map or a type registered with the codec's atlas.
func ReadCBOR(ctx context.Context, s Store, c cid.Cid, out interface{}) error {
	blk, err := s.Get(ctx, c)
	if err != nil {
		return fmt.Errorf("fetch block %s: %w", c, err)
	}
	if err := cbornode.DecodeInto(blk.RawData(), out); err != nil {
		return fmt.Errorf("cbor decode %s: %w", c, err)
	}
	return nil
}

// WriteLegacy stores data as a legacy protobuf block and returns its CIDv0
// address.
func WriteLegacy(ctx context.Context, s Store, data []byte, pinned bool) (cid.Cid, error) {
	nd := merkledag.NodeWithData(data)
	if err := s.Put(ctx, nd); err != nil {
		return cid.Undef, fmt.Errorf("store legacy block: %w", err)
	}
	if pinned {
		if err := pin(ctx, s, nd.Cid()); err != nil {
			return cid.Undef, fmt.Errorf("pin block: %w", err)
		}
	}
	return nd.Cid(), nil
}

// ReadLegacy fetches the legacy protobuf block at c and returns its payload
// bytes.
func ReadLegacy(ctx context.Context, s Store, c cid.Cid) ([]byte, error) {
	blk, err := s.Get(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("fetch block %s: %w", c, err)
	}
	nd, err := merkledag.DecodeProtobuf(blk.RawData())
	if err != nil {
		return nil, fmt.Errorf("legacy decode %s: %w", c, err)
	}
	return nd.Data(), nil
}

// CIDString renders a content address in its canonical string form: base58
// ("Qm…") for CIDv0, base58btc multibase ("zdpu…") for modern CIDv1 blocks.
func CIDString(c cid.Cid) string {
	if !c.Defined() {
		return ""
	}
	if c.Version() == 0 {
		return c.String()
	}
	str, err := c.StringOfBase(multibase.Base58BTC)
	if err != nil {
		return c.String()
	}
	return str
}

// ParseCID parses either string form back into a content address.
func ParseCID(s string) (cid.Cid, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, fmt.Errorf("invalid cid %q: %w", s, err)
	}
	return c, nil
}
