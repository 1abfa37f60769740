package main

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/google/uuid"
	geom "github.com/peterstace/simplefeatures/geom"
	bolt "go.etcd.io/bbolt"

	hexdex "github.com/go-hexdex/hexdex"
)

func main() {
	inputFile := flag.String("in", "features.geojson", "Input GeoJSON FeatureCollection")
	dbFile := flag.String("db", "hexdex.db", "Output DB file")
	threshold := flag.Uint64("threshold", hexdex.DefaultThreshold, "Cell refinement threshold T")
	flag.Parse()

	db, err := bolt.Open(*dbFile, 0600, nil)
	if err != nil {
		log.Fatalf("Failed to open db: %v", err)
	}
	defer db.Close()

	f, err := os.Open(*inputFile)
	if err != nil {
		log.Fatalf("Failed to open input: %v", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}
	var fc geom.GeoJSONFeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		log.Fatalf("Failed to parse geojson: %v", err)
	}

	fmt.Printf("Ingesting %d features...\n", len(fc.Features))
	count := 0
	err = db.Update(func(tx *bolt.Tx) error {
		w, err := hexdex.Create(tx, hexdex.Options{Threshold: *threshold})
		if err != nil {
			return err
		}

		for i, feat := range fc.Features {
			id := nextItemID(feat)
			geoJSON, err := feat.Geometry.MarshalJSON()
			if err != nil {
				log.Printf("Error encoding geometry for feature %d: %v", i, err)
				continue
			}
			if err := w.AddItem(tx, id, geoJSON); err != nil {
				log.Printf("Error indexing item %d: %v", id, err)
				continue
			}
			count++
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Indexing transaction failed: %v", err)
	}
	fmt.Printf("Done. %d indexed.\n", count)
}

// nextItemID assigns a uint32 id to an ingested feature. A numeric
// feature.ID is used directly; otherwise a "name" property is hashed down
// to a uint32; failing that, a fresh uuid.New() is generated and hashed
// down the same way. Only the uuid fallback differs from run to run.
func nextItemID(feat geom.GeoJSONFeature) hexdex.ItemID {
	if feat.ID != nil {
		if n, ok := feat.ID.(float64); ok {
			return hexdex.ItemID(uint32(n))
		}
		return hashToItemID(fmt.Sprintf("%v", feat.ID))
	}
	if n, ok := feat.Properties["name"]; ok {
		return hashToItemID(fmt.Sprintf("%v", n))
	}
	return hashToItemID(uuid.New().String())
}

// hashToItemID folds a string identifier into a uint32 via the first four
// bytes of its SHA-1 digest, so non-numeric ingest ids (and uuid.New()
// fallbacks) still map to an ItemID, the same one for the same input string
// (ItemID is a flat uint32 here, unlike the string ids the teacher's
// uuid.New() itself produced).
func hashToItemID(s string) hexdex.ItemID {
	sum := sha1.Sum([]byte(s))
	return hexdex.ItemID(binary.BigEndian.Uint32(sum[:4]))
}
