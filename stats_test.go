package hexdex

import (
	"testing"

	bolt "go.etcd.io/bbolt"
)

func TestStatsAndItemsIteration(t *testing.T) {
	db := openTestDB(t)

	err := db.Update(func(tx *bolt.Tx) error {
		w, err := Create(tx, Options{})
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 5; i++ {
			geoJSON := makePointGeoJSON(2.0+float64(i), 48.0+float64(i))
			if err := w.AddItem(tx, ItemID(i+1), geoJSON); err != nil {
				t.Fatal(err)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = db.View(func(tx *bolt.Tx) error {
		w, err := Open(tx, Options{})
		if err != nil {
			t.Fatal(err)
		}

		stats, err := w.Stats(tx)
		if err != nil {
			t.Fatal(err)
		}
		if stats.TotalItems != 5 {
			t.Errorf("expected 5 items, got %d", stats.TotalItems)
		}
		if stats.TotalCells == 0 {
			t.Error("expected at least one cell entry")
		}
		t.Logf("stats: %+v", stats)

		seen := make(map[ItemID]bool)
		err = w.Items(tx, func(id ItemID, geoJSON []byte) bool {
			seen[id] = true
			if len(geoJSON) == 0 {
				t.Errorf("item %d: expected non-empty geometry", id)
			}
			return true
		})
		if err != nil {
			t.Fatal(err)
		}
		if len(seen) != 5 {
			t.Errorf("expected Items to yield 5 entries, got %d", len(seen))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestItemsEarlyStop(t *testing.T) {
	db := openTestDB(t)

	err := db.Update(func(tx *bolt.Tx) error {
		w, err := Create(tx, Options{})
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 5; i++ {
			if err := w.AddItem(tx, ItemID(i+1), makePointGeoJSON(2.0+float64(i), 48.0)); err != nil {
				t.Fatal(err)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	err = db.View(func(tx *bolt.Tx) error {
		w, err := Open(tx, Options{})
		if err != nil {
			t.Fatal(err)
		}
		count := 0
		err = w.Items(tx, func(id ItemID, geoJSON []byte) bool {
			count++
			return count < 2
		})
		if err != nil {
			t.Fatal(err)
		}
		if count != 2 {
			t.Errorf("expected iteration to stop after yield returns false, got %d calls", count)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestItemNotFound(t *testing.T) {
	db := openTestDB(t)

	err := db.View(func(tx *bolt.Tx) error {
		_, err := Create(tx, Options{})
		return err
	})
	if err == nil {
		t.Fatal("expected Create against a read-only transaction to fail")
	}

	err = db.Update(func(tx *bolt.Tx) error {
		w, err := Create(tx, Options{})
		if err != nil {
			t.Fatal(err)
		}
		_, ok, err := w.Item(tx, ItemID(404))
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Error("expected no item for an id never inserted")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
