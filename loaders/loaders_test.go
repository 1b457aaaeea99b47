// Copyright (c) 2025 Michael D Henderson. All rights reserved.

package loaders_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mdhender/salesingest/loaders"
	"github.com/mdhender/salesingest/model"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, files map[string]string) *loaders.Registry {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
	}
	r := loaders.Native()
	r.SetFS(fs)
	return r
}

func TestLoadCSV_InfersColumnTypes(t *testing.T) {
	r := newRegistry(t, map[string]string{
		"/s/vendas.csv": "produto,quantidade,valor,data\n" +
			"caneta,2,3.5,2024-01-02\n" +
			"lapis,0,10,2024-01-03\n" +
			"borracha,,1,\n",
	})

	rs, err := r.Load(context.Background(), "/s/vendas.csv", model.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, []model.Column{
		{Name: "produto", Type: model.TypeString},
		{Name: "quantidade", Type: model.TypeInt},
		{Name: "valor", Type: model.TypeFloat},
		{Name: "data", Type: model.TypeTime},
	}, rs.Columns)
	require.Equal(t, 3, rs.Len())
	assert.Equal(t, []any{"caneta", int64(2), 3.5, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}, rs.Rows[0])
	assert.Equal(t, 10.0, rs.Rows[1][2])
	assert.Nil(t, rs.Rows[2][1])
	assert.Nil(t, rs.Rows[2][3])
}

func TestLoadCSV_SemicolonDelimiter(t *testing.T) {
	r := newRegistry(t, map[string]string{
		"/s/vendas.csv": "\xef\xbb\xbfproduto;quantidade;valor\ncaneta;2;3.5\n",
	})

	rs, err := r.Load(context.Background(), "/s/vendas.csv", model.FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, []string{"produto", "quantidade", "valor"}, rs.Names())
	assert.Equal(t, map[string]any{"produto": "caneta", "quantidade": int64(2), "valor": 3.5}, rs.Row(0))
}

func TestLoadCSV_MalformedIsDecodeError(t *testing.T) {
	r := newRegistry(t, map[string]string{
		"/s/ragged.csv": "a,b\n1,2,3\n",
		"/s/empty.csv":  "",
		"/s/dupes.csv":  "a,a\n1,2\n",
	})

	for _, path := range []string{"/s/ragged.csv", "/s/empty.csv", "/s/dupes.csv", "/s/missing.csv"} {
		_, err := r.Load(context.Background(), path, model.FormatCSV)
		var decodeErr *model.DecodeError
		require.True(t, errors.As(err, &decodeErr), "%s: got %v", path, err)
		assert.Equal(t, path, decodeErr.Path)
		assert.Equal(t, model.FormatCSV, decodeErr.Format)
	}
}

func TestLoadJSON_Array(t *testing.T) {
	r := newRegistry(t, map[string]string{
		"/s/vendas.json": `[
			{"produto": "caneta", "quantidade": 2, "valor": 3.5},
			{"produto": "lapis", "quantidade": 0, "valor": 10, "extra": {"cor": "azul"}},
			{"valor": 1.25, "produto": "borracha", "quantidade": null}
		]`,
	})

	rs, err := r.Load(context.Background(), "/s/vendas.json", model.FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, []model.Column{
		{Name: "produto", Type: model.TypeString},
		{Name: "quantidade", Type: model.TypeInt},
		{Name: "valor", Type: model.TypeFloat},
		{Name: "extra", Type: model.TypeString},
	}, rs.Columns)
	require.Equal(t, 3, rs.Len())
	assert.Equal(t, []any{"caneta", int64(2), 3.5, nil}, rs.Rows[0])
	assert.Equal(t, []any{"lapis", int64(0), int64(10), `{"cor":"azul"}`}, rs.Rows[1])
	assert.Equal(t, []any{"borracha", nil, 1.25, nil}, rs.Rows[2])
}

func TestLoadJSON_NewlineDelimited(t *testing.T) {
	r := newRegistry(t, map[string]string{
		"/s/vendas.json": "{\"quantidade\": 1, \"valor\": 2}\n{\"quantidade\": 3, \"valor\": 4.5, \"ok\": true}\n",
	})

	rs, err := r.Load(context.Background(), "/s/vendas.json", model.FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, []string{"quantidade", "valor", "ok"}, rs.Names())
	assert.Equal(t, model.TypeBool, rs.Columns[2].Type)
	assert.Equal(t, []any{int64(3), 4.5, true}, rs.Rows[1])
}

func TestLoadJSON_EmptyArray(t *testing.T) {
	r := newRegistry(t, map[string]string{"/s/vendas.json": "[]"})

	rs, err := r.Load(context.Background(), "/s/vendas.json", model.FormatJSON)
	require.NoError(t, err)
	assert.Empty(t, rs.Columns)
	assert.Zero(t, rs.Len())
}

func TestLoadJSON_MalformedIsDecodeError(t *testing.T) {
	r := newRegistry(t, map[string]string{
		"/s/truncated.json": `[{"quantidade": 1`,
		"/s/scalar.json":    `42`,
		"/s/mixed.json":     `[{"a": 1}, 2]`,
		"/s/trailing.json":  `[{"a": 1}] [`,
	})

	for _, path := range []string{"/s/truncated.json", "/s/scalar.json", "/s/mixed.json", "/s/trailing.json"} {
		_, err := r.Load(context.Background(), path, model.FormatJSON)
		var decodeErr *model.DecodeError
		assert.True(t, errors.As(err, &decodeErr), "%s: got %v", path, err)
	}
}

func TestRegistry_UnsupportedFormat(t *testing.T) {
	r := loaders.NewRegistry()

	_, err := r.Load(context.Background(), "/s/vendas.csv", model.FormatCSV)
	var unsupported *model.UnsupportedFormatError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "csv", unsupported.Tag)
}

func TestRegistry_RegisterReplaces(t *testing.T) {
	r := loaders.Native()
	want := &model.RowSet{Columns: []model.Column{{Name: "x"}}}
	r.Register(model.FormatCSV, func(context.Context, afero.Fs, string) (*model.RowSet, error) {
		return want, nil
	})

	got, err := r.Load(context.Background(), "ignored.csv", model.FormatCSV)
	require.NoError(t, err)
	assert.Same(t, want, got)
}
