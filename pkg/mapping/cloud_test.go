package mapping

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemIDs(t *testing.T) {
	raw := json.RawMessage(`{"systems": [
		{"system_id": 101, "name": "home"},
		{"name": "no id"},
		{"system_id": 202}
	]}`)
	assert.Equal(t, []int64{101, 202}, SystemIDs(raw))

	assert.Empty(t, SystemIDs(json.RawMessage(`{"systems": []}`)))
	assert.Empty(t, SystemIDs(json.RawMessage(`{}`)))
	assert.Empty(t, SystemIDs(nil))
}

func TestTelemetry(t *testing.T) {
	t.Run("MetersAndBatteries", func(t *testing.T) {
		raw := json.RawMessage(`{"devices": {
			"meters": [
				{"name": "production", "channel": 1, "power": 1500, "last_report_at": 1700000000},
				{"name": "storage", "power": -200, "last_report_at": 1700000000}
			],
			"encharges": [
				{"id": 9, "power": -200, "operational_mode": "charging", "last_report_at": 1700000000}
			]
		}}`)

		records := Telemetry(raw, 101)
		require.Len(t, records, 3)

		assert.Equal(t, "production", records[0].Measurement)
		assert.Equal(t, "101", records[0].Tag("system_id"))
		assert.Equal(t, "1", records[0].Tag("phase"))
		assert.Equal(t, map[string]any{"power": 1500.0}, records[0].Fields)
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), records[0].Timestamp)

		assert.Equal(t, "storage_meter", records[1].Measurement,
			"the storage meter is renamed so it can't collide with battery_dc")
		assert.Empty(t, records[1].Tag("phase"), "no channel means no phase tag")

		assert.Equal(t, "battery_dc", records[2].Measurement)
		assert.Equal(t, "9", records[2].Tag("module_id"))
		assert.Equal(t, map[string]any{"power": -200.0, "mode": "charging"}, records[2].Fields)
	})

	t.Run("SkipsIncompleteEntries", func(t *testing.T) {
		raw := json.RawMessage(`{"devices": {
			"meters": [
				{"name": "production", "last_report_at": 1700000000},
				{"name": "consumption", "power": 10},
				{"power": 10, "last_report_at": 1700000000}
			],
			"encharges": [
				{"id": 1, "operational_mode": "idle", "last_report_at": 1700000000}
			]
		}}`)
		assert.Empty(t, Telemetry(raw, 1),
			"entries without power or a report time are dropped, not fabricated")
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, Telemetry(json.RawMessage(`{}`), 1))
		assert.Empty(t, Telemetry(nil, 1))
	})
}

func TestSummary(t *testing.T) {
	t.Run("FullDocument", func(t *testing.T) {
		raw := json.RawMessage(`{
			"source": "meter",
			"status": "normal",
			"current_power": 3300,
			"energy_lifetime": 12000000,
			"energy_today": 18000,
			"battery_charge_w": 500,
			"battery_discharge_w": 0,
			"battery_capacity_wh": 13500,
			"last_interval_end_at": 1700000000
		}`)

		records := Summary(raw, 101)
		require.Len(t, records, 1)

		rec := records[0]
		assert.Equal(t, "daily_summary", rec.Measurement)
		assert.Equal(t, "101", rec.Tag("system_id"))
		assert.Equal(t, "meter", rec.Tag("source"))
		assert.Equal(t, "normal", rec.Tag("status"))
		assert.Equal(t, 3300.0, rec.Fields["current_power"])
		assert.Equal(t, 0.0, rec.Fields["battery_discharge_w"])
		assert.Equal(t, time.Unix(1700000000, 0).UTC(), rec.Timestamp)
	})

	t.Run("PartialDocument", func(t *testing.T) {
		records := Summary(json.RawMessage(`{"current_power": 5}`), 1)
		require.Len(t, records, 1)
		assert.Equal(t, map[string]any{"current_power": 5.0}, records[0].Fields)
		assert.Empty(t, records[0].Tag("source"))
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Empty(t, Summary(json.RawMessage(`{}`), 1))
		assert.Empty(t, Summary(nil, 1))
	})
}
