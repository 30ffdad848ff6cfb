package mapping

import (
	"encoding/json"
	"strconv"

	"github.com/condorsolar/condor/pkg/types"
)

// SystemIDs extracts the system ids from a /systems response. The system
// list is fetched once at startup and iterated as a static collection.
func SystemIDs(raw json.RawMessage) []int64 {
	var doc struct {
		Systems []struct {
			SystemID *int64 `json:"system_id"`
		} `json:"systems"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &doc) != nil {
		return nil
	}
	var ids []int64
	for _, s := range doc.Systems {
		if s.SystemID != nil {
			ids = append(ids, *s.SystemID)
		}
	}
	return ids
}

type cloudTelemetry struct {
	Devices struct {
		Meters []struct {
			Name         string   `json:"name"`
			Channel      *int64   `json:"channel"`
			Power        *float64 `json:"power"`
			LastReportAt *int64   `json:"last_report_at"`
		} `json:"meters"`
		Encharges []struct {
			ID              *int64   `json:"id"`
			Power           *float64 `json:"power"`
			OperationalMode string   `json:"operational_mode"`
			LastReportAt    *int64   `json:"last_report_at"`
		} `json:"encharges"`
	} `json:"devices"`
}

// Telemetry maps /systems/{id}/latest_telemetry into per-meter AC records
// (measurement taken from the meter name, "storage" renamed
// "storage_meter") and per-battery-module DC records ("battery_dc").
// Entries missing power or a report time are skipped rather than emitted
// with fabricated values.
func Telemetry(raw json.RawMessage, systemID int64) []types.Record {
	var doc cloudTelemetry
	if len(raw) == 0 || json.Unmarshal(raw, &doc) != nil {
		return nil
	}
	sysTag := types.Tag{Key: "system_id", Value: strconv.FormatInt(systemID, 10)}

	var records []types.Record
	for _, m := range doc.Devices.Meters {
		if m.Name == "" || m.Power == nil || m.LastReportAt == nil {
			continue
		}
		measurement := m.Name
		if measurement == "storage" {
			measurement = "storage_meter"
		}
		tags := []types.Tag{sysTag}
		if m.Channel != nil {
			tags = append(tags, types.Tag{Key: "phase", Value: strconv.FormatInt(*m.Channel, 10)})
		}
		records = append(records, types.Record{
			Measurement: measurement,
			Tags:        tags,
			Fields:      map[string]any{"power": *m.Power},
			Timestamp:   epochToTime(m.LastReportAt),
		})
	}

	for _, mod := range doc.Devices.Encharges {
		if mod.Power == nil || mod.LastReportAt == nil {
			continue
		}
		tags := []types.Tag{sysTag}
		if mod.ID != nil {
			tags = append(tags, types.Tag{Key: "module_id", Value: strconv.FormatInt(*mod.ID, 10)})
		}
		fields := map[string]any{"power": *mod.Power}
		if mod.OperationalMode != "" {
			fields["mode"] = mod.OperationalMode
		}
		records = append(records, types.Record{
			Measurement: "battery_dc",
			Tags:        tags,
			Fields:      fields,
			Timestamp:   epochToTime(mod.LastReportAt),
		})
	}
	return records
}

// Summary maps /systems/{id}/summary into one "daily_summary" record.
func Summary(raw json.RawMessage, systemID int64) []types.Record {
	var doc struct {
		Source            string   `json:"source"`
		Status            string   `json:"status"`
		CurrentPower      *float64 `json:"current_power"`
		EnergyLifetime    *float64 `json:"energy_lifetime"`
		EnergyToday       *float64 `json:"energy_today"`
		BatteryChargeW    *float64 `json:"battery_charge_w"`
		BatteryDischargeW *float64 `json:"battery_discharge_w"`
		BatteryCapacityWH *float64 `json:"battery_capacity_wh"`
		LastIntervalEndAt *int64   `json:"last_interval_end_at"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &doc) != nil {
		return nil
	}

	fields := make(map[string]any)
	addField(fields, "current_power", doc.CurrentPower)
	addField(fields, "energy_lifetime", doc.EnergyLifetime)
	addField(fields, "energy_today", doc.EnergyToday)
	addField(fields, "battery_charge_w", doc.BatteryChargeW)
	addField(fields, "battery_discharge_w", doc.BatteryDischargeW)
	addField(fields, "battery_capacity_wh", doc.BatteryCapacityWH)
	if len(fields) == 0 {
		return nil
	}

	tags := []types.Tag{{Key: "system_id", Value: strconv.FormatInt(systemID, 10)}}
	if doc.Source != "" {
		tags = append(tags, types.Tag{Key: "source", Value: doc.Source})
	}
	if doc.Status != "" {
		tags = append(tags, types.Tag{Key: "status", Value: doc.Status})
	}
	return []types.Record{{
		Measurement: "daily_summary",
		Tags:        tags,
		Fields:      fields,
		Timestamp:   epochToTime(doc.LastIntervalEndAt),
	}}
}
