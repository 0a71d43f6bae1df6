package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/retrieval"
)

// decodeJSONList accepts either a single JSON object or an array of them.
func decodeJSONList[T any](data []byte) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var out []T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

// csvRows reads a headered CSV into one map per row keyed by the lowercased
// header.
func csvRows(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "csv: read header")
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "csv: read row")
		}
		row := make(map[string]string, len(header))
		for i, v := range record {
			if i < len(header) {
				row[header[i]] = strings.TrimSpace(v)
			}
		}
		rows = append(rows, row)
	}
}

// readItems loads extracted items from a JSON or CSV file.
func readItems(path string) ([]model.ExtractedItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read items %s", path)
	}
	if !isCSV(path) {
		items, err := decodeJSONList[model.ExtractedItem](data)
		return items, eris.Wrapf(err, "parse items %s", path)
	}

	rows, err := csvRows(bytes.NewReader(data))
	if err != nil {
		return nil, eris.Wrapf(err, "parse items %s", path)
	}
	items := make([]model.ExtractedItem, 0, len(rows))
	for _, row := range rows {
		if row["name"] == "" {
			continue
		}
		items = append(items, model.ExtractedItem{
			Name:        row["name"],
			Description: row["description"],
			Type:        model.ItemType(strings.ToLower(row["type"])),
			Vendor:      row["vendor"],
			Category:    row["category"],
			GTIN:        row["gtin"],
			EAN:         row["ean"],
			MPN:         row["mpn"],
		})
	}
	return items, nil
}

// validationColumns are CSV columns that are not validated fields.
var validationColumns = map[string]bool{
	"tenant": true, "item_name": true, "name": true, "description": true,
	"item_type": true, "type": true, "confidence": true, "validated_by": true,
}

// readValidations loads validated corrections from a JSON or CSV file. In CSV,
// every column that is not an item attribute becomes a validated field.
func readValidations(path, tenant string) ([]model.Validation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read validations %s", path)
	}

	var vs []model.Validation
	if isCSV(path) {
		rows, err := csvRows(bytes.NewReader(data))
		if err != nil {
			return nil, eris.Wrapf(err, "parse validations %s", path)
		}
		for i, row := range rows {
			v := model.Validation{
				Tenant:      row["tenant"],
				ItemName:    firstNonEmpty(row["item_name"], row["name"]),
				Description: row["description"],
				ItemType:    model.ItemType(strings.ToLower(firstNonEmpty(row["item_type"], row["type"]))),
				ValidatedBy: row["validated_by"],
				Fields:      make(map[string]any),
			}
			if c := row["confidence"]; c != "" {
				v.Confidence, err = strconv.ParseFloat(c, 64)
				if err != nil {
					return nil, eris.Wrapf(err, "validations %s row %d: bad confidence", path, i+2)
				}
			}
			for k, val := range row {
				if !validationColumns[k] && val != "" {
					v.Fields[k] = val
				}
			}
			vs = append(vs, v)
		}
	} else {
		vs, err = decodeJSONList[model.Validation](data)
		if err != nil {
			return nil, eris.Wrapf(err, "parse validations %s", path)
		}
	}

	if tenant != "" {
		for i := range vs {
			vs[i].Tenant = tenant
		}
	}
	return vs, nil
}

// readDocuments loads catalog documents. JSON files hold Document objects;
// any other file is indexed as one plain-text document named after the file.
func readDocuments(path, id string) ([]retrieval.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read documents %s", path)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		docs, err := decodeJSONList[retrieval.Document](data)
		return docs, eris.Wrapf(err, "parse documents %s", path)
	}
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return []retrieval.Document{{ID: id, Text: string(data)}}, nil
}

func isCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
