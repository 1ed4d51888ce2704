package trielog

import (
	"encoding/binary"

	"github.com/vechain/bpmt/felt"
	"github.com/vechain/bpmt/trieerr"
)

// Encode serializes rec for storage under storekeys.Log. The layout is
// a flat sequence of length-prefixed sections, mirroring the tagged,
// hand-rolled framing trie.Encode uses for node records rather than a
// general-purpose serialization library.
func Encode(rec Record) []byte {
	var buf []byte
	buf = appendFelt(buf, rec.PriorRoot)
	buf = appendUint32(buf, uint32(len(rec.Entries)))
	for _, e := range rec.Entries {
		buf = appendUint32(buf, uint32(len(e.KeyBits)))
		buf = append(buf, e.KeyBits...)
		if e.PriorAbsent {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
		buf = appendFelt(buf, e.PriorValue)
	}
	buf = appendFeltList(buf, rec.NewlyReachable)
	buf = appendFeltList(buf, rec.NewlyUnreachable)
	return buf
}

// Decode parses a record previously produced by Encode. identifier is
// not part of the encoding (it is implied by the storage key) and must
// be supplied by the caller.
func Decode(identifier []byte, b []byte) (Record, error) {
	var rec Record
	rec.Identifier = append([]byte(nil), identifier...)

	root, rest, err := readFelt(b)
	if err != nil {
		return Record{}, err
	}
	rec.PriorRoot = root

	nEntries, rest, err := readUint32(rest)
	if err != nil {
		return Record{}, err
	}
	rec.Entries = make([]Entry, 0, nEntries)
	for i := uint32(0); i < nEntries; i++ {
		nbits, r2, err := readUint32(rest)
		if err != nil {
			return Record{}, err
		}
		if uint32(len(r2)) < nbits {
			return Record{}, &trieerr.CorruptionError{Reason: "trie log: truncated key bits"}
		}
		keyBits := append([]byte(nil), r2[:nbits]...)
		r2 = r2[nbits:]
		if len(r2) < 1 {
			return Record{}, &trieerr.CorruptionError{Reason: "trie log: truncated absent flag"}
		}
		absent := r2[0] != 0
		r2 = r2[1:]
		value, r3, err := readFelt(r2)
		if err != nil {
			return Record{}, err
		}
		rec.Entries = append(rec.Entries, Entry{KeyBits: keyBits, PriorValue: value, PriorAbsent: absent})
		rest = r3
	}

	reach, rest, err := readFeltList(rest)
	if err != nil {
		return Record{}, err
	}
	rec.NewlyReachable = reach

	unreach, rest, err := readFeltList(rest)
	if err != nil {
		return Record{}, err
	}
	rec.NewlyUnreachable = unreach

	if len(rest) != 0 {
		return Record{}, &trieerr.CorruptionError{Reason: "trie log: trailing bytes"}
	}
	return rec, nil
}

func appendFelt(buf []byte, f felt.Felt) []byte {
	b := f.Bytes()
	return append(buf, b[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendFeltList(buf []byte, list []felt.Felt) []byte {
	buf = appendUint32(buf, uint32(len(list)))
	for _, f := range list {
		buf = appendFelt(buf, f)
	}
	return buf
}

func readFelt(b []byte) (felt.Felt, []byte, error) {
	if len(b) < felt.Len {
		return felt.Felt{}, nil, &trieerr.CorruptionError{Reason: "trie log: truncated felt"}
	}
	f, err := felt.FromBytes(b[:felt.Len])
	if err != nil {
		return felt.Felt{}, nil, &trieerr.CorruptionError{Reason: "trie log: bad felt"}
	}
	return f, b[felt.Len:], nil
}

func readUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, &trieerr.CorruptionError{Reason: "trie log: truncated length"}
	}
	return binary.BigEndian.Uint32(b[:4]), b[4:], nil
}

func readFeltList(b []byte) ([]felt.Felt, []byte, error) {
	n, rest, err := readUint32(b)
	if err != nil {
		return nil, nil, err
	}
	out := make([]felt.Felt, 0, n)
	for i := uint32(0); i < n; i++ {
		f, r2, err := readFelt(rest)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, f)
		rest = r2
	}
	return out, rest, nil
}
