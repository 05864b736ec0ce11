// Package loader reads data files into datasets.
package loader

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	goavro "github.com/linkedin/goavro/v2"
	parquet "github.com/parquet-go/parquet-go"

	"github.com/razeghi71/ply/value"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Load reads a file and returns a Dataset. The format is picked from the
// file extension.
func Load(filename string) (*value.Dataset, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".csv":
		return loadCSV(filename)
	case ".json":
		return loadJSON(filename)
	case ".jsonl":
		return loadJSONL(filename)
	case ".avro":
		return loadAvro(filename)
	case ".parquet":
		return loadParquet(filename)
	default:
		return nil, fmt.Errorf("unsupported file format %q (supported: .csv, .json, .jsonl, .avro, .parquet)", ext)
	}
}

// LoadAll loads every file in sources, keyed by dataset name, into one
// datum. Names are bound in sorted order.
func LoadAll(sources map[string]string) (value.Datum, error) {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	var d value.Datum
	for _, name := range names {
		ds, err := Load(sources[name])
		if err != nil {
			return value.Datum{}, fmt.Errorf("dataset %s: %w", name, err)
		}
		d = d.Set(name, value.DatasetVal(ds))
	}
	return d, nil
}

// ParseSource splits "name=path". Without a name the file's base name
// minus its extension is used.
func ParseSource(s string) (name, path string, err error) {
	if i := strings.IndexByte(s, '='); i >= 0 {
		name, path = strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
	} else {
		path = strings.TrimSpace(s)
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if name == "" || path == "" {
		return "", "", fmt.Errorf("invalid data source %q (want name=path)", s)
	}
	return name, path, nil
}

func loadCSV(filename string) (*value.Dataset, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", filename, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("cannot read CSV header from %s: %w", filename, err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	ds := value.NewDataset(columns)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV row: %w", err)
		}

		attrs := make([]value.Attribute, 0, len(columns))
		for i, col := range columns {
			v := value.Null()
			if i < len(record) {
				v = parseCell(strings.TrimSpace(record[i]))
			}
			attrs = append(attrs, value.Attribute{Name: col, Value: v})
		}
		ds.Add(value.NewDatum(attrs...))
	}
	return ds, nil
}

// parseCell infers the type of a CSV cell.
func parseCell(s string) value.Value {
	if s == "" || strings.EqualFold(s, "null") {
		return value.Null()
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return value.Number(v)
	}
	switch strings.ToLower(s) {
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	}
	if t, ok := parseTime(s); ok {
		return value.Time(t)
	}
	return value.String(s)
}

func parseTime(s string) (time.Time, bool) {
	if len(s) < len("2006-01-02T15:04:05Z") || s[4] != '-' || s[10] != 'T' {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func loadJSON(filename string) (*value.Dataset, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", filename, err)
	}

	iter := jsoniter.ParseBytes(json, data)
	if iter.WhatIsNext() != jsoniter.ArrayValue {
		return nil, fmt.Errorf("cannot parse JSON from %s: expected array of objects", filename)
	}
	var rows []value.Datum
	iter.ReadArrayCB(func(iter *jsoniter.Iterator) bool {
		row, err := readObject(iter)
		if err != nil {
			iter.ReportError("loader", err.Error())
			return false
		}
		rows = append(rows, row)
		return true
	})
	if iter.Error != nil && iter.Error != io.EOF {
		return nil, fmt.Errorf("cannot parse JSON from %s: %w", filename, iter.Error)
	}
	return value.FromData(rows), nil
}

func loadJSONL(filename string) (*value.Dataset, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", filename, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var rows []value.Datum
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		iter := jsoniter.ParseString(json, line)
		row, err := readObject(iter)
		if err == nil && iter.Error != nil && iter.Error != io.EOF {
			err = iter.Error
		}
		if err != nil {
			return nil, fmt.Errorf("invalid JSON on line %d: %w", lineNum, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading %s: %w", filename, err)
	}
	return value.FromData(rows), nil
}

// readObject reads one JSON object keeping its key order.
func readObject(iter *jsoniter.Iterator) (value.Datum, error) {
	if next := iter.WhatIsNext(); next != jsoniter.ObjectValue {
		iter.Skip()
		return value.Datum{}, fmt.Errorf("expected object, got %s", kindName(next))
	}
	var row value.Datum
	iter.ReadObjectCB(func(iter *jsoniter.Iterator, key string) bool {
		row = row.Set(key, jsonValue(iter.Read()))
		return true
	})
	return row, nil
}

func kindName(t jsoniter.ValueType) string {
	switch t {
	case jsoniter.StringValue:
		return "string"
	case jsoniter.NumberValue:
		return "number"
	case jsoniter.NilValue:
		return "null"
	case jsoniter.BoolValue:
		return "bool"
	case jsoniter.ArrayValue:
		return "array"
	}
	return "invalid value"
}

func jsonValue(v any) value.Value {
	switch val := v.(type) {
	case nil:
		return value.Null()
	case float64:
		return value.Number(val)
	case string:
		if t, ok := parseTime(val); ok {
			return value.Time(t)
		}
		return value.String(val)
	case bool:
		return value.Bool(val)
	case []any:
		elems := make([]value.Value, len(val))
		for i, e := range val {
			elems[i] = jsonValue(e)
		}
		return value.NewSet(elems...)
	default:
		// nested objects are kept as their JSON text
		b, _ := json.Marshal(val)
		return value.String(string(b))
	}
}

func loadAvro(filename string) (*value.Dataset, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", filename, err)
	}
	defer f.Close()

	ocfr, err := goavro.NewOCFReader(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("cannot read Avro OCF from %s: %w", filename, err)
	}

	var schemaDef struct {
		Fields []struct {
			Name string `json:"name"`
		} `json:"fields"`
	}
	if err := json.UnmarshalFromString(ocfr.Codec().Schema(), &schemaDef); err != nil {
		return nil, fmt.Errorf("cannot parse Avro schema: %w", err)
	}
	columns := make([]string, len(schemaDef.Fields))
	for i, field := range schemaDef.Fields {
		columns[i] = field.Name
	}

	ds := value.NewDataset(columns)
	for ocfr.Scan() {
		datum, err := ocfr.Read()
		if err != nil {
			return nil, fmt.Errorf("error reading Avro record: %w", err)
		}
		rec, ok := datum.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("unexpected Avro record type %T", datum)
		}

		attrs := make([]value.Attribute, len(columns))
		for i, col := range columns {
			attrs[i] = value.Attribute{Name: col, Value: avroValue(rec[col])}
		}
		ds.Add(value.NewDatum(attrs...))
	}
	if err := ocfr.Err(); err != nil {
		return nil, fmt.Errorf("error reading Avro file: %w", err)
	}
	return ds, nil
}

func avroValue(v any) value.Value {
	switch val := v.(type) {
	case nil:
		return value.Null()
	case int32:
		return value.Number(float64(val))
	case int64:
		return value.Number(float64(val))
	case float32:
		return value.Number(float64(val))
	case float64:
		return value.Number(val)
	case string:
		return value.String(val)
	case bool:
		return value.Bool(val)
	case []byte:
		return value.String(string(val))
	case time.Time:
		return value.Time(val.UTC())
	case []any:
		elems := make([]value.Value, len(val))
		for i, e := range val {
			elems[i] = avroValue(e)
		}
		return value.NewSet(elems...)
	case map[string]any:
		// unions decode as {"type": value}
		for _, inner := range val {
			return avroValue(inner)
		}
		return value.Null()
	default:
		return value.String(fmt.Sprintf("%v", val))
	}
}

func loadParquet(filename string) (*value.Dataset, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", filename, err)
	}
	defer f.Close()

	reader := parquet.NewReader(f)
	defer reader.Close()

	paths := reader.Schema().Columns()
	columns := make([]string, len(paths))
	for i, p := range paths {
		columns[i] = strings.Join(p, ".")
	}

	ds := value.NewDataset(columns)
	rows := make([]parquet.Row, 128)
	for {
		n, err := reader.ReadRows(rows)
		for _, row := range rows[:n] {
			ds.Add(parquetRow(columns, row))
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading Parquet rows from %s: %w", filename, err)
		}
	}
	return ds, nil
}

// parquetRow converts a flat row. Repeated columns become sets.
func parquetRow(columns []string, row parquet.Row) value.Datum {
	vals := make([][]value.Value, len(columns))
	for _, v := range row {
		c := v.Column()
		if c < 0 || c >= len(columns) || v.IsNull() {
			continue
		}
		vals[c] = append(vals[c], parquetValue(v))
	}

	attrs := make([]value.Attribute, len(columns))
	for i, col := range columns {
		var v value.Value
		switch len(vals[i]) {
		case 0:
			v = value.Null()
		case 1:
			v = vals[i][0]
		default:
			v = value.NewSet(vals[i]...)
		}
		attrs[i] = value.Attribute{Name: col, Value: v}
	}
	return value.NewDatum(attrs...)
}

func parquetValue(v parquet.Value) value.Value {
	switch v.Kind() {
	case parquet.Boolean:
		return value.Bool(v.Boolean())
	case parquet.Int32:
		return value.Number(float64(v.Int32()))
	case parquet.Int64:
		return value.Number(float64(v.Int64()))
	case parquet.Float:
		return value.Number(float64(v.Float()))
	case parquet.Double:
		return value.Number(v.Double())
	case parquet.ByteArray, parquet.FixedLenByteArray:
		s := string(v.ByteArray())
		if t, ok := parseTime(s); ok {
			return value.Time(t)
		}
		return value.String(s)
	default:
		return value.String(v.String())
	}
}
