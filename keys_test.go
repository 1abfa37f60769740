package hexdex

import (
	"testing"

	h3 "github.com/uber/h3-go/v4"
)

func TestEncodeDecodeItemKey(t *testing.T) {
	key := encodeItemKey(ItemID(12345))
	if key[0] != tagItem {
		t.Fatalf("expected tag byte %x, got %x", tagItem, key[0])
	}
	got, err := decodeItemIDFromKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if got != ItemID(12345) {
		t.Errorf("expected 12345, got %d", got)
	}
}

func TestEncodeDecodeCellKey(t *testing.T) {
	cell, err := cellFromLatLng(48.8566, 2.3522, 5)
	if err != nil {
		t.Fatal(err)
	}
	key := encodeCellKey(cell)
	if key[0] != tagCell {
		t.Fatalf("expected tag byte %x, got %x", tagCell, key[0])
	}
	got, err := decodeCellFromKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if got != cell {
		t.Errorf("expected %v, got %v", cell, got)
	}

	innerKey := encodeInnerShapeKey(cell)
	if innerKey[0] != tagInnerShape {
		t.Fatalf("expected tag byte %x, got %x", tagInnerShape, innerKey[0])
	}
	if _, err := decodeCellFromKey(innerKey); err != nil {
		t.Fatal(err)
	}
}

func TestKeyNamespacesDoNotOverlap(t *testing.T) {
	itemKey := encodeItemKey(ItemID(1))
	var c h3.Cell
	cellKey := encodeCellKey(c)
	if itemKey[0] == cellKey[0] {
		t.Error("expected Item and Cell tag bytes to differ")
	}
	if _, err := decodeItemIDFromKey(cellKey); err == nil {
		t.Error("expected decodeItemIDFromKey to reject a Cell-tagged key")
	}
}
