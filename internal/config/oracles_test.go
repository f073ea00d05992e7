package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOracles_ExampleFile(t *testing.T) {
	file, err := LoadOracles(filepath.Join("..", "..", "config", "oracles.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, file.Oracles)

	byName := make(map[string]OracleDef)
	for _, def := range file.Oracles {
		byName[def.Name] = def
	}

	twap := byName["eth-usd-twap"]
	assert.Equal(t, OracleTypeTWAP, twap.Type)
	assert.Equal(t, time.Hour, twap.Period)
	assert.Equal(t, 3, twap.Window)

	gmu := byName["gmu-usd"]
	assert.Equal(t, uint8(6), gmu.PrecisionOrDefault())
	assert.Equal(t, uint8(8), gmu.Feed.PrecisionOr(gmu.PrecisionOrDefault()))
	assert.Equal(t, 10*time.Minute, byName["eth-usd-spot"].Feed.MaxAge)
}

func TestLoadOracles_MissingFile(t *testing.T) {
	_, err := LoadOracles(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadOracles_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "oracles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
oracles:
  - name: usd
    type: fixed
    price: "1"
`), 0o600))

	file, err := LoadOracles(path)
	require.NoError(t, err)
	require.Len(t, file.Oracles, 1)
	assert.Equal(t, "usd", file.Oracles[0].Name)
}

func TestParseOracles_Values(t *testing.T) {
	file, err := ParseOracles([]byte(`
oracles:
  - name: ma
    type: moving_average
    decimals: 6
    period: 24h
    max_change: "0.5"
    seed: ["2.5", "2.25"]
    short_feed: {type: static, value: "2.5"}
    long_feed: {type: static, value: "2.5"}
`))
	require.NoError(t, err)
	def := file.Oracles[0]

	maxChange, err := def.MaxChangeValue()
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", maxChange.Dec())

	spread, err := def.MaxSpreadValue()
	require.NoError(t, err)
	assert.Nil(t, spread)

	seed, err := def.SeedValues()
	require.NoError(t, err)
	require.Len(t, seed, 2)
	assert.Equal(t, "2500000", seed[0].Dec())
	assert.Equal(t, "2250000", seed[1].Dec())

	short, err := def.ShortSeedValues()
	require.NoError(t, err)
	assert.Nil(t, short)
}

func TestParseOracles_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", `oracles: []`},
		{"malformed yaml", `oracles: [`},
		{"missing name", `
oracles:
  - type: fixed
    price: "1"`},
		{"duplicate name", `
oracles:
  - {name: a, type: fixed, price: "1"}
  - {name: a, type: fixed, price: "2"}`},
		{"unknown type", `
oracles:
  - {name: a, type: median, price: "1"}`},
		{"twap without window", `
oracles:
  - name: a
    type: twap
    period: 1h
    max_change: "0.1"
    seed: ["1"]
    feed: {type: static, value: "1"}`},
		{"period below one second", `
oracles:
  - name: a
    type: twap
    period: 500ms
    window: 2
    max_change: "0.1"
    seed: ["1"]
    feed: {type: static, value: "1"}`},
		{"ratchet without feed", `
oracles:
  - {name: a, type: ratchet, price: "1"}`},
		{"linear feed without duration", `
oracles:
  - name: a
    type: linear
    price: "1"
    feed: {type: static, value: "2"}`},
		{"product with one source", `
oracles:
  - {name: a, type: fixed, price: "1"}
  - {name: p, type: product, sources: [a]}`},
		{"forward reference", `
oracles:
  - {name: p, type: product, sources: [a, b]}
  - {name: a, type: fixed, price: "1"}
  - {name: b, type: fixed, price: "1"}`},
		{"unknown oracle field", `
oracles:
  - {name: a, type: fixed, price: "1"}
  - name: b
    type: ratchet
    price: "1"
    feed: {type: oracle, oracle: a, field: price_90d}`},
		{"redis feed without key", `
oracles:
  - name: a
    type: ratchet
    price: "1"
    feed: {type: redis}`},
		{"decimals out of range", `
oracles:
  - {name: a, type: fixed, price: "1", decimals: 78}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOracles([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestOracleDef_References(t *testing.T) {
	def := OracleDef{
		Sources:   []string{"a", "b"},
		ShortFeed: &FeedDef{Type: FeedTypeOracle, Oracle: "c"},
		LongFeed:  &FeedDef{Type: FeedTypeRedis, Key: "k"},
	}
	assert.Equal(t, []string{"a", "b", "c"}, def.References())
}
