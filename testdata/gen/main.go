// Command gen writes the sample datasets under testdata/.
package main

import (
	"log"
	"os"

	parquet "github.com/parquet-go/parquet-go"
)

type Sale struct {
	Time    string  `parquet:"time"`
	City    string  `parquet:"city"`
	Product string  `parquet:"product"`
	Units   int32   `parquet:"units"`
	Revenue float64 `parquet:"revenue"`
}

type City struct {
	Name       string `parquet:"name"`
	Country    string `parquet:"country"`
	Population int64  `parquet:"population"`
}

func main() {
	sales := []Sale{
		{"2024-03-01T09:15:00Z", "NY", "Widget", 3, 120},
		{"2024-03-01T11:40:00Z", "LA", "Gadget", 1, 80},
		{"2024-03-02T08:05:00Z", "NY", "Gadget", 2, 160},
		{"2024-03-02T16:30:00Z", "SF", "Widget", 5, 200},
		{"2024-03-03T10:00:00Z", "LA", "Widget", 4, 160},
		{"2024-03-04T13:20:00Z", "NY", "Gizmo", 1, 45.5},
		{"2024-03-05T18:45:00Z", "SF", "Gizmo", 2, 91},
	}
	cities := []City{
		{"NY", "US", 8336817},
		{"LA", "US", 3822238},
		{"SF", "US", 808437},
	}

	if err := write("testdata/sales.parquet", sales); err != nil {
		log.Fatal(err)
	}
	if err := write("testdata/cities.parquet", cities); err != nil {
		log.Fatal(err)
	}
}

func write[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := parquet.NewWriter(f)
	for _, r := range rows {
		if err := w.Write(r); err != nil {
			return err
		}
	}
	return w.Close()
}
