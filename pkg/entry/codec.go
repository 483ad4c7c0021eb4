package entry

import (
	"encoding/json"
	"fmt"

	cid "github.com/ipfs/go-cid"
	cbornode "github.com/ipfs/go-ipld-cbor"
	"github.com/ipfs/go-merkledag"
	mh "github.com/multiformats/go-multihash"
	"github.com/polydawn/refmt/obj/atlas"

	"github.com/Mindburn-Labs/oplog/pkg/blockio"
	"github.com/Mindburn-Labs/oplog/pkg/canonical"
	"github.com/Mindburn-Labs/oplog/pkg/errmsg"
	"github.com/Mindburn-Labs/oplog/pkg/identity"
	"github.com/Mindburn-Labs/oplog/pkg/lamport"
)

// clockDoc is the on-wire clock.
type clockDoc struct {
	ID   string `json:"id"`
	Time int    `json:"time"`
}

// signaturesDoc and identityDoc are the on-wire identity descriptor.
type signaturesDoc struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
}

type identityDoc struct {
	ID         string        `json:"id"`
	PublicKey  string        `json:"publicKey"`
	Signatures signaturesDoc `json:"signatures"`
	Type       string        `json:"type"`
}

// entryDoc is the version-1 block form written under the modern codec. The
// codec serializes maps in canonical key order, so the layout here only
// fixes the field set, not the byte order.
type entryDoc struct {
	Hash     *string     `json:"hash"`
	ID       string      `json:"id"`
	Payload  string      `json:"payload"`
	Next     []string    `json:"next"`
	Refs     []string    `json:"refs"`
	V        uint64      `json:"v"`
	Clock    clockDoc    `json:"clock"`
	Key      string      `json:"key"`
	Identity identityDoc `json:"identity"`
	Sig      string      `json:"sig"`
}

// sigDocV1 is the fixed-order signing payload: the entry with hash null and
// sig absent. Field order here IS the wire format.
type sigDocV1 struct {
	Hash     *string     `json:"hash"`
	ID       string      `json:"id"`
	Payload  string      `json:"payload"`
	Next     []string    `json:"next"`
	Refs     []string    `json:"refs"`
	V        uint64      `json:"v"`
	Clock    clockDoc    `json:"clock"`
	Key      string      `json:"key"`
	Identity identityDoc `json:"identity"`
}

func init() {
	cbornode.RegisterCborType(atlas.BuildEntry(entryDoc{}).StructMap().
		AddField("Hash", atlas.StructMapEntry{SerialName: "hash"}).
		AddField("ID", atlas.StructMapEntry{SerialName: "id"}).
		AddField("Payload", atlas.StructMapEntry{SerialName: "payload"}).
		AddField("Next", atlas.StructMapEntry{SerialName: "next"}).
		AddField("Refs", atlas.StructMapEntry{SerialName: "refs"}).
		AddField("V", atlas.StructMapEntry{SerialName: "v"}).
		AddField("Clock", atlas.StructMapEntry{SerialName: "clock"}).
		AddField("Key", atlas.StructMapEntry{SerialName: "key"}).
		AddField("Identity", atlas.StructMapEntry{SerialName: "identity"}).
		AddField("Sig", atlas.StructMapEntry{SerialName: "sig"}).
		Complete())
	cbornode.RegisterCborType(atlas.BuildEntry(clockDoc{}).StructMap().
		AddField("ID", atlas.StructMapEntry{SerialName: "id"}).
		AddField("Time", atlas.StructMapEntry{SerialName: "time"}).
		Complete())
	cbornode.RegisterCborType(atlas.BuildEntry(identityDoc{}).StructMap().
		AddField("ID", atlas.StructMapEntry{SerialName: "id"}).
		AddField("PublicKey", atlas.StructMapEntry{SerialName: "publicKey"}).
		AddField("Signatures", atlas.StructMapEntry{SerialName: "signatures"}).
		AddField("Type", atlas.StructMapEntry{SerialName: "type"}).
		Complete())
	cbornode.RegisterCborType(atlas.BuildEntry(signaturesDoc{}).StructMap().
		AddField("ID", atlas.StructMapEntry{SerialName: "id"}).
		AddField("PublicKey", atlas.StructMapEntry{SerialName: "publicKey"}).
		Complete())
}

func toIdentityDoc(i *identity.Identity) identityDoc {
	if i == nil {
		return identityDoc{}
	}
	return identityDoc{
		ID:        i.ID,
		PublicKey: i.PublicKey,
		Signatures: signaturesDoc{
			ID:        i.Signatures.ID,
			PublicKey: i.Signatures.PublicKey,
		},
		Type: i.Type,
	}
}

func fromIdentityDoc(d identityDoc) *identity.Identity {
	return &identity.Identity{
		ID:        d.ID,
		PublicKey: d.PublicKey,
		Signatures: identity.Signatures{
			ID:        d.Signatures.ID,
			PublicKey: d.Signatures.PublicKey,
		},
		Type: d.Type,
	}
}

func hashStrings(hashes []cid.Cid) []string {
	out := make([]string, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, blockio.CIDString(h))
	}
	return out
}

func parseHashes(strs []string) ([]cid.Cid, error) {
	out := make([]cid.Cid, 0, len(strs))
	for _, s := range strs {
		c, err := blockio.ParseCID(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func toDoc(e *Entry) *entryDoc {
	return &entryDoc{
		Hash:     nil,
		ID:       e.ID,
		Payload:  string(e.Payload),
		Next:     hashStrings(e.Next),
		Refs:     hashStrings(e.Refs),
		V:        e.V,
		Clock:    clockDoc{ID: e.Clock.ID, Time: e.Clock.Time},
		Key:      e.Key,
		Identity: toIdentityDoc(e.Identity),
		Sig:      e.Sig,
	}
}

func fromDoc(d *entryDoc) (*Entry, error) {
	next, err := parseHashes(d.Next)
	if err != nil {
		return nil, err
	}
	refs, err := parseHashes(d.Refs)
	if err != nil {
		return nil, err
	}
	return &Entry{
		ID:       d.ID,
		Payload:  []byte(d.Payload),
		Next:     next,
		Refs:     refs,
		V:        d.V,
		Clock:    lamport.New(d.Clock.ID, d.Clock.Time),
		Key:      d.Key,
		Identity: fromIdentityDoc(d.Identity),
		Sig:      d.Sig,
	}, nil
}

func signingBytesV1(e *Entry) ([]byte, error) {
	return canonical.Marshal(sigDocV1{
		Hash:     nil,
		ID:       e.ID,
		Payload:  string(e.Payload),
		Next:     hashStrings(e.Next),
		Refs:     hashStrings(e.Refs),
		V:        e.V,
		Clock:    clockDoc{ID: e.Clock.ID, Time: e.Clock.Time},
		Key:      e.Key,
		Identity: toIdentityDoc(e.Identity),
	})
}

func contentAddressV1(e *Entry) (cid.Cid, error) {
	nd, err := cbornode.WrapObject(toDoc(e), mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("cbor encode: %w", err)
	}
	return nd.Cid(), nil
}

// Version-0 wire format, read and verified but never produced for new
// entries. The legacy field order and codec are preserved bit-exactly so
// historical content addresses keep resolving.

type sigDocV0 struct {
	Hash    *string  `json:"hash"`
	ID      string   `json:"id"`
	Payload string   `json:"payload"`
	Next    []string `json:"next"`
	V       uint64   `json:"v"`
	Clock   clockDoc `json:"clock"`
	Key     string   `json:"key"`
}

type docV0 struct {
	Hash    *string         `json:"hash"`
	ID      string          `json:"id"`
	Payload string          `json:"payload"`
	Next    json.RawMessage `json:"next"`
	V       uint64          `json:"v"`
	Clock   clockDoc        `json:"clock"`
	Key     string          `json:"key"`
	Sig     string          `json:"sig"`
}

func signingBytesV0(e *Entry) ([]byte, error) {
	return canonical.Marshal(sigDocV0{
		Hash:    nil,
		ID:      e.ID,
		Payload: string(e.Payload),
		Next:    hashStrings(e.Next),
		V:       0,
		Clock:   clockDoc{ID: e.Clock.ID, Time: e.Clock.Time},
		Key:     e.Key,
	})
}

// encodeV0 produces the canonical signed JSON stored under the legacy codec.
func encodeV0(e *Entry) ([]byte, error) {
	next, err := json.Marshal(hashStrings(e.Next))
	if err != nil {
		return nil, err
	}
	return canonical.Marshal(docV0{
		Hash:    nil,
		ID:      e.ID,
		Payload: string(e.Payload),
		Next:    next,
		V:       0,
		Clock:   clockDoc{ID: e.Clock.ID, Time: e.Clock.Time},
		Key:     e.Key,
		Sig:     e.Sig,
	})
}

func decodeV0(data []byte) (*Entry, error) {
	var d docV0
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("legacy entry decode: %w", err)
	}

	var nextStrs []string
	if len(d.Next) > 0 {
		if err := json.Unmarshal(d.Next, &nextStrs); err != nil {
			return nil, errmsg.ErrNextNotAnArray
		}
	}
	next, err := parseHashes(nextStrs)
	if err != nil {
		return nil, err
	}

	return &Entry{
		ID:      d.ID,
		Payload: []byte(d.Payload),
		Next:    next,
		V:       0,
		Clock:   lamport.New(d.Clock.ID, d.Clock.Time),
		Key:     d.Key,
		// v0 entries carried a bare key; map it onto a legacy descriptor.
		Identity: &identity.Identity{ID: d.Key, PublicKey: d.Key, Type: identity.LegacyType},
		Sig:      d.Sig,
	}, nil
}

func contentAddressV0(e *Entry) (cid.Cid, error) {
	data, err := encodeV0(e)
	if err != nil {
		return cid.Undef, err
	}
	return merkledag.NodeWithData(data).Cid(), nil
}
