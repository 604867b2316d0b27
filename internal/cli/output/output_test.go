package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type cacheRow struct {
	Cache   string `json:"cache" yaml:"cache"`
	Verdict string `json:"verdict" yaml:"verdict"`
}

type cacheRows []cacheRow

func (r cacheRows) Headers() []string { return []string{"CACHE", "VERDICT"} }

func (r cacheRows) Rows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, c := range r {
		rows = append(rows, []string{c.Cache, c.Verdict})
	}
	return rows
}

var sampleRows = cacheRows{
	{Cache: "KCM:1000:4711", Verdict: "accepted"},
	{Cache: "KCM:1000:fixed", Verdict: "not-younger"},
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "table", input: "table", want: FormatTable},
		{name: "empty defaults to table", input: "", want: FormatTable},
		{name: "json", input: "json", want: FormatJSON},
		{name: "JSON uppercase", input: "JSON", want: FormatJSON},
		{name: "yaml", input: "yaml", want: FormatYAML},
		{name: "yml alias", input: "yml", want: FormatYAML},
		{name: "whitespace trimmed", input: "  table  ", want: FormatTable},
		{name: "invalid format", input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, string(tt.want), got.String())
		})
	}
}

func TestPrinterPrint(t *testing.T) {
	t.Run("Table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(sampleRows))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		assert.Contains(t, lines[0], "CACHE")
		assert.Contains(t, lines[1], "KCM:1000:4711")
		assert.Contains(t, lines[2], "not-younger")
	})

	t.Run("TableFallsBackToYAML", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(map[string]string{"target": "KCM:1000:fixed"}))

		assert.Equal(t, "target: KCM:1000:fixed\n", buf.String())
	})

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatJSON, false).Print(sampleRows))

		var got cacheRows
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, sampleRows, got)
		assert.Contains(t, buf.String(), "\n  {")
	})

	t.Run("YAML", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatYAML, false).Print(sampleRows))

		var got cacheRows
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, sampleRows, got)
	})

	t.Run("UnknownFormat", func(t *testing.T) {
		var buf bytes.Buffer
		assert.Error(t, NewPrinter(&buf, Format("xml"), false).Print(sampleRows))
	})
}

func TestPrinterEnv(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatTable, false)

	p.Env("KRB5CCNAME", "KCM:1000:fixed", false)
	p.Env("KRB5CCNAME", "DIR::/tmp/krb5cc_1000.d/tkt1000_fixed", true)
	p.Env("KRB5CCNAME", "FILE:/tmp/it's here", false)

	assert.Equal(t, "KRB5CCNAME=KCM:1000:fixed\n"+
		"export KRB5CCNAME=DIR::/tmp/krb5cc_1000.d/tkt1000_fixed\n"+
		"KRB5CCNAME='FILE:/tmp/it'\\''s here'\n", buf.String())
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, "KCM:0:abc", ShellQuote("KCM:0:abc"))
	assert.Equal(t, "''", ShellQuote(""))
	assert.Equal(t, "'a b'", ShellQuote("a b"))
	assert.Equal(t, "'$HOME'", ShellQuote("$HOME"))
}

func TestPrinterMessages(t *testing.T) {
	var plain bytes.Buffer
	p := NewPrinter(&plain, FormatTable, false)
	p.Warning("careful")
	p.Error("failed")
	p.Printf("%s=%d\n", "uid", 1000)
	assert.Equal(t, "careful\nfailed\nuid=1000\n", plain.String())

	var colored bytes.Buffer
	NewPrinter(&colored, FormatTable, true).Error("failed")
	assert.Equal(t, "\033[31mfailed\033[0m\n", colored.String())
}

func TestSimpleTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SimpleTable(&buf, [][2]string{{"Version", "dev"}, {"Commit", "none"}}))

	out := buf.String()
	assert.Contains(t, out, "Version")
	assert.Contains(t, out, "dev")
	assert.Contains(t, out, "Commit")
}

type styledRows struct{ cacheRows }

func (r styledRows) RowStyle(i int) RowStyle {
	if r.cacheRows[i].Verdict == "accepted" {
		return RowSelected
	}
	return RowRejected
}

func TestPrintTableRowStyles(t *testing.T) {
	t.Run("ColoredByStyle", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, PrintTable(&buf, styledRows{sampleRows}, true))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		assert.NotContains(t, lines[0], "\033[")
		assert.Contains(t, lines[1], "\033[1;32m")
		assert.Contains(t, lines[2], "\033[90m")
	})

	t.Run("PlainWithoutColor", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, PrintTable(&buf, styledRows{sampleRows}, false))
		assert.NotContains(t, buf.String(), "\033[")
	})

	t.Run("PlainWithoutStyler", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, PrintTable(&buf, sampleRows, true))
		assert.NotContains(t, buf.String(), "\033[")
	})
}
