package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enricher/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadItems_CSV(t *testing.T) {
	path := writeFile(t, "items.csv", "Name,Description,Type,Vendor,GTIN\n"+
		"Cordless drill,18V brushless,Product,Makita,04006381333931\n"+
		",missing name,,,\n"+
		"IT retainer,,service,,\n")

	items, err := readItems(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Cordless drill", items[0].Name)
	assert.Equal(t, model.ItemTypeProduct, items[0].Type)
	assert.Equal(t, "Makita", items[0].Vendor)
	assert.Equal(t, "04006381333931", items[0].GTIN)
	assert.Equal(t, model.ItemTypeService, items[1].Type)
}

func TestReadItems_JSON(t *testing.T) {
	one := writeFile(t, "one.json", `{"name": "Office 365", "type": "service"}`)
	items, err := readItems(one)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Office 365", items[0].Name)

	many := writeFile(t, "many.json", ` [{"name": "a"}, {"name": "b"}]`)
	items, err = readItems(many)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	bad := writeFile(t, "bad.json", `{"name":`)
	_, err = readItems(bad)
	assert.Error(t, err)

	_, err = readItems(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestReadValidations_CSVFields(t *testing.T) {
	path := writeFile(t, "validations.csv", "tenant,item_name,item_type,category,vendor,confidence\n"+
		"acme,Office 365,service,Productivity Software,Microsoft,0.9\n"+
		"acme,Cordless drill,product,Power Tools,,\n")

	vs, err := readValidations(path, "")
	require.NoError(t, err)
	require.Len(t, vs, 2)

	assert.Equal(t, "acme", vs[0].Tenant)
	assert.Equal(t, "Office 365", vs[0].ItemName)
	assert.Equal(t, model.ItemTypeService, vs[0].ItemType)
	assert.InDelta(t, 0.9, vs[0].Confidence, 1e-9)
	assert.Equal(t, map[string]any{"category": "Productivity Software", "vendor": "Microsoft"}, vs[0].Fields)

	assert.Equal(t, map[string]any{"category": "Power Tools"}, vs[1].Fields)
	assert.Zero(t, vs[1].Confidence)
}

func TestReadValidations_TenantOverride(t *testing.T) {
	path := writeFile(t, "validations.json", `[{"tenant": "acme", "item_name": "x", "fields": {"category": "c"}}]`)

	vs, err := readValidations(path, "globex")
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, "globex", vs[0].Tenant)
}

func TestReadValidations_BadConfidence(t *testing.T) {
	path := writeFile(t, "validations.csv", "tenant,name,category,confidence\nacme,x,c,high\n")

	_, err := readValidations(path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad confidence")
	assert.Contains(t, err.Error(), "row 2")
}

func TestReadDocuments(t *testing.T) {
	text := writeFile(t, "drill-sheet.txt", "Cordless hammer drill.\n\nTwo batteries included.")
	docs, err := readDocuments(text, "")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "drill-sheet", docs[0].ID)
	assert.Contains(t, docs[0].Text, "Two batteries")

	docs, err = readDocuments(text, "sku-9")
	require.NoError(t, err)
	assert.Equal(t, "sku-9", docs[0].ID)

	js := writeFile(t, "docs.JSON", `[{"id": "sku-1", "text": "drill", "metadata": {"category": "Power Tools"}}]`)
	docs, err = readDocuments(js, "ignored")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "sku-1", docs[0].ID)
	assert.Equal(t, "Power Tools", docs[0].Metadata["category"])
}

func TestCSVRows_Empty(t *testing.T) {
	path := writeFile(t, "empty.csv", "")
	items, err := readItems(path)
	require.NoError(t, err)
	assert.Empty(t, items)
}
