package parser

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mira/lexer"
)

func TestASTJSON(t *testing.T) {
	root := parseSource(t, "x := 1 + 2")

	jsonStr, err := ASTJSON(root)
	require.NoError(t, err)

	// The output must be valid JSON and name the node types.
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(jsonStr), &decoded))
	assert.Equal(t, "Block", decoded["type"])

	assert.Contains(t, jsonStr, `"Assignment"`)
	assert.Contains(t, jsonStr, `"BinaryOperation"`)
	assert.Contains(t, jsonStr, `"Identifier"`)
}

func TestASTJSONIfStatement(t *testing.T) {
	root := parseSource(t, "if true : output 1 end")

	jsonStr, err := ASTJSON(root)
	require.NoError(t, err)

	assert.Contains(t, jsonStr, `"IfStatement"`)
	// absent else branch serializes as null
	assert.Contains(t, jsonStr, `"else": null`)
}

func TestWriteASTJSONToFile(t *testing.T) {
	tokens := lexer.New("output 42").Scan()
	root, err := Make(tokens).Parse()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ast.json")
	require.NoError(t, WriteASTJSONToFile(root, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "Block", decoded["type"])
}
