package hexdex

import (
	"encoding/binary"
	"fmt"

	h3 "github.com/uber/h3-go/v4"
)

// Namespace tags. Fixed and documented: a prefix scan over one tag
// enumerates exactly that namespace and nothing else (I1-I4, P6).
const (
	tagItem       byte = 0x01
	tagCell       byte = 0x02
	tagInnerShape byte = 0x03
)

// ItemID is the externally supplied, opaque feature identifier. Uniqueness
// and monotonicity are the caller's responsibility.
type ItemID uint32

const (
	itemIDLen = 4 // uint32, big-endian
	cellIDLen = 8 // h3.Cell is a uint64, big-endian
)

func encodeItemKey(id ItemID) []byte {
	key := make([]byte, 1+itemIDLen)
	key[0] = tagItem
	binary.BigEndian.PutUint32(key[1:], uint32(id))
	return key
}

func encodeCellKey(cell h3.Cell) []byte {
	key := make([]byte, 1+cellIDLen)
	key[0] = tagCell
	binary.BigEndian.PutUint64(key[1:], uint64(cell))
	return key
}

func encodeInnerShapeKey(cell h3.Cell) []byte {
	key := make([]byte, 1+cellIDLen)
	key[0] = tagInnerShape
	binary.BigEndian.PutUint64(key[1:], uint64(cell))
	return key
}

// itemPrefix, cellPrefix and innerShapePrefix bound a bbolt cursor scan to
// exactly one namespace.
func itemPrefix() []byte       { return []byte{tagItem} }
func cellPrefix() []byte       { return []byte{tagCell} }
func innerShapePrefix() []byte { return []byte{tagInnerShape} }

// decodeItemIDFromKey extracts the item id from a key known to carry the
// Item tag (the caller must have already checked the prefix).
func decodeItemIDFromKey(key []byte) (ItemID, error) {
	if len(key) != 1+itemIDLen || key[0] != tagItem {
		return 0, fmt.Errorf("hexdex: malformed item key %x", key)
	}
	return ItemID(binary.BigEndian.Uint32(key[1:])), nil
}

// decodeCellFromKey extracts the cell id from a key known to carry either
// the Cell or InnerShape tag.
func decodeCellFromKey(key []byte) (h3.Cell, error) {
	if len(key) != 1+cellIDLen || (key[0] != tagCell && key[0] != tagInnerShape) {
		return 0, fmt.Errorf("hexdex: malformed cell key %x", key)
	}
	return h3.Cell(binary.BigEndian.Uint64(key[1:])), nil
}
