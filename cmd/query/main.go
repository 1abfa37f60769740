package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	h3 "github.com/uber/h3-go/v4"
	bolt "go.etcd.io/bbolt"

	hexdex "github.com/go-hexdex/hexdex"
)

func main() {
	dbFile := flag.String("db", "hexdex.db", "BoltDB file path")
	polyFile := flag.String("poly", "", "GeoJSON Polygon file to query against")
	withGeom := flag.Bool("geom", false, "Print stored geometry alongside each match")
	verbose := flag.Bool("v", false, "Print each cell's filtering disposition")
	flag.Parse()

	if *polyFile == "" {
		log.Fatal("Please provide -poly pointing at a GeoJSON Polygon file")
	}

	raw, err := os.ReadFile(*polyFile)
	if err != nil {
		log.Fatalf("Failed to read query polygon: %v", err)
	}
	var g geom.Geometry
	if err := g.UnmarshalJSON(raw); err != nil {
		log.Fatalf("Failed to parse query polygon: %v", err)
	}
	if g.Type() != geom.TypePolygon {
		log.Fatalf("Query geometry must be a Polygon, got %s", g.Type())
	}
	polygon := g.MustAsPolygon()

	db, err := bolt.Open(*dbFile, 0600, nil)
	if err != nil {
		log.Fatalf("Failed to open db: %v", err)
	}
	defer db.Close()

	start := time.Now()
	var matches []hexdex.ItemID
	err = db.View(func(tx *bolt.Tx) error {
		w, err := hexdex.Open(tx, hexdex.Options{})
		if err != nil {
			return err
		}

		var inspector hexdex.Inspector
		if *verbose {
			inspector = func(step hexdex.FilteringStep, cell h3.Cell) {
				fmt.Printf("  cell %s: %v\n", cell.String(), step)
			}
		}

		bm, err := w.InShape(tx, polygon, inspector)
		if err != nil {
			return err
		}
		for _, v := range bm.ToArray() {
			matches = append(matches, hexdex.ItemID(v))
		}

		if *withGeom {
			for _, id := range matches {
				geoJSON, ok, err := w.Item(tx, id)
				if err != nil {
					return err
				}
				if ok {
					fmt.Printf("%d: %s\n", id, string(geoJSON))
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	duration := time.Since(start)
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf("Found %d item(s) in %v\n", len(matches), duration)
}
