package main

import (
	"testing"

	"leaguesim/internal/sim"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$750k", formatMoney(750))
	assert.Equal(t, "$1.25M", formatMoney(1250))
	assert.Equal(t, "$30.00M", formatMoney(30000))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "Los Ang...", truncate("Los Angeles Lightning", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, "", truncate("abc", 0))
}

func TestFormatPct(t *testing.T) {
	assert.Equal(t, ".500", formatPct(0.5))
	assert.Equal(t, "1.000", formatPct(1))
}

func TestPlayActionsCoverDriverActions(t *testing.T) {
	for _, a := range []string{sim.ActionDay, sim.ActionWeek, sim.ActionMonth, sim.ActionUntilPlayoffs, sim.ActionUntilEnd, sim.ActionUntilPreseason} {
		assert.Contains(t, playActions, wordFor(a))
	}
}

func wordFor(action string) string {
	for w, a := range playActions {
		if a == action {
			return w
		}
	}
	return ""
}

func TestStandingsRowsSortsAcrossDivisions(t *testing.T) {
	raw := map[string]any{
		"season": 2025,
		"confs": []any{map[string]any{
			"name": "East",
			"divs": []any{
				map[string]any{"name": "A", "teams": []any{
					map[string]any{"tid": 0, "region": "Boston", "name": "Owls", "won": 3, "lost": 1, "winp": 0.75, "streak": 2},
				}},
				map[string]any{"name": "B", "teams": []any{
					map[string]any{"tid": 1, "region": "Denver", "name": "Elk", "won": 4, "lost": 0, "winp": 1.0, "streak": -1},
					map[string]any{"tid": 2, "region": "Austin", "name": "Bats", "won": 0, "lost": 4, "winp": 0.0, "gb": 4},
				}},
			},
		}},
	}
	st, err := decodeInto[standingsView](raw)
	require.NoError(t, err)
	rows := standingsRows(st)
	require.Len(t, rows, 3)
	assert.Equal(t, "Denver Elk", rows[0][0])
	assert.Equal(t, "L1", rows[0][6])
	assert.Equal(t, "Boston Owls", rows[1][0])
	assert.Equal(t, "W2", rows[1][6])
	assert.Equal(t, "4.0", rows[2][5])
}
