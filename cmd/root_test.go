package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "enrich", "search", "index", "validate", "sources", "audit", "import"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "catalog-enricher", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestEnrichCommand_Flags(t *testing.T) {
	for _, name := range []string{"name", "description", "type", "file", "tenant", "sector", "bypass-cache", "deadline", "output"} {
		assert.NotNil(t, enrichCmd.Flags().Lookup(name), "enrich should have --%s", name)
	}
	flag := enrichCmd.Flags().Lookup("concurrency")
	require.NotNil(t, flag)
	assert.Equal(t, "4", flag.DefValue)
}

func TestSearchCommand_Flags(t *testing.T) {
	for _, name := range []string{"tenant", "query"} {
		flag := searchCmd.Flags().Lookup(name)
		require.NotNil(t, flag)
		assert.Equal(t, []string{"true"}, flag.Annotations["cobra_annotation_bash_completion_one_required_flag"], "--%s is required", name)
	}
	assert.Equal(t, "10", searchCmd.Flags().Lookup("limit").DefValue)
	assert.Equal(t, "0.7", searchCmd.Flags().Lookup("alpha").DefValue)
	assert.Equal(t, "catalog", searchCmd.Flags().Lookup("collection").DefValue)
}

func TestIndexCommand_Flags(t *testing.T) {
	assert.NotNil(t, indexCmd.Flags().Lookup("tenant"))
	assert.NotNil(t, indexCmd.Flags().Lookup("file"))
	assert.Equal(t, "catalog", indexCmd.Flags().Lookup("collection").DefValue)
}

func TestValidateCommand_Flags(t *testing.T) {
	flag := validateCmd.Flags().Lookup("confidence")
	require.NotNil(t, flag)
	assert.Equal(t, "1", flag.DefValue)
	assert.NotNil(t, validateCmd.Flags().Lookup("field"))
}

func TestAuditCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range auditCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats"} {
		assert.True(t, names[name], "expected audit subcommand %q not found", name)
	}
	assert.Equal(t, "50", auditListCmd.Flags().Lookup("limit").DefValue)
	assert.Equal(t, "24h0m0s", auditStatsCmd.Flags().Lookup("since").DefValue)
}

func TestEnrichItems_RequiresNameOrFile(t *testing.T) {
	enrichName, enrichFile = "", ""
	_, err := enrichItems()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--name or --file is required")

	enrichName, enrichVendor = "Cordless drill", "Makita"
	t.Cleanup(func() { enrichName, enrichVendor = "", "" })
	items, err := enrichItems()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Makita", items[0].Vendor)
}

func TestValidations_FromFlags(t *testing.T) {
	validateFile, validateTenant, validateName, validateFields = "", "", "", nil
	_, err := validations()
	require.Error(t, err)

	validateTenant, validateName = "acme", "Office 365"
	validateFields = map[string]string{"category": "Productivity Software"}
	validateConfidence = 0.9
	t.Cleanup(func() {
		validateTenant, validateName, validateFields, validateConfidence = "", "", nil, 1.0
	})

	vs, err := validations()
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, "acme", vs[0].Tenant)
	assert.Equal(t, "Productivity Software", vs[0].Fields["category"])
	assert.InDelta(t, 0.9, vs[0].Confidence, 1e-9)
}
