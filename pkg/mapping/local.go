package mapping

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/condorsolar/condor/pkg/types"
)

// StreamState is the gateway's live-data stream flag, re-derived from the
// snapshot each cycle and never persisted.
type StreamState string

const (
	StreamEnabled  StreamState = "enabled"
	StreamDisabled StreamState = "disabled"
)

// energyValues is the value object shared by the interval energy report
// and the legacy production endpoint.
type energyValues struct {
	WattHoursToday     *float64 `json:"wattHoursToday"`
	WattHoursSevenDays *float64 `json:"wattHoursSevenDays"`
	WattHoursLifetime  *float64 `json:"wattHoursLifetime"`
	WattsNow           *float64 `json:"wattsNow"`
}

func (v energyValues) fields() map[string]any {
	fields := make(map[string]any)
	addField(fields, "wh_today", v.WattHoursToday)
	addField(fields, "wh_7d", v.WattHoursSevenDays)
	addField(fields, "wh_life", v.WattHoursLifetime)
	addField(fields, "w_now", v.WattsNow)
	return fields
}

// IntervalEnergy maps /ivp/pdm/energy: category → sub-source → values,
// one record per (category, sub-source) pair named "{category}_{sub}".
// The report time is read once from meta.last_report_at and stamped on
// every record in the batch.
func IntervalEnergy(raw json.RawMessage, host string) []types.Record {
	var doc map[string]json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &doc) != nil || doc == nil {
		return nil
	}

	var meta struct {
		LastReportAt *int64 `json:"last_report_at"`
	}
	if m, ok := doc["meta"]; ok {
		_ = json.Unmarshal(m, &meta)
	}
	ts := epochToTime(meta.LastReportAt)

	categories := make([]string, 0, len(doc))
	for cat := range doc {
		if cat != "meta" {
			categories = append(categories, cat)
		}
	}
	sort.Strings(categories)

	var records []types.Record
	for _, cat := range categories {
		var subs map[string]energyValues
		if json.Unmarshal(doc[cat], &subs) != nil {
			continue
		}
		names := make([]string, 0, len(subs))
		for name := range subs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fields := subs[name].fields()
			if len(fields) == 0 {
				continue
			}
			records = append(records, types.Record{
				Measurement: cat + "_" + name,
				Tags:        []types.Tag{{Key: "host", Value: host}},
				Fields:      fields,
				Timestamp:   ts,
			})
		}
	}
	return records
}

// ProductionTotal maps /api/v1/production into a single
// "production_total" record timestamped from the object's own timestamp
// field.
func ProductionTotal(raw json.RawMessage, host string) []types.Record {
	var doc struct {
		energyValues
		Timestamp *int64 `json:"timestamp"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &doc) != nil {
		return nil
	}
	fields := doc.fields()
	if len(fields) == 0 {
		return nil
	}
	return []types.Record{{
		Measurement: "production_total",
		Tags:        []types.Tag{{Key: "host", Value: host}},
		Fields:      fields,
		Timestamp:   epochToTime(doc.Timestamp),
	}}
}

// MeterReadings maps /ivp/meters/readings: one "meter_power" record per
// CT, tagged with the meter's eid and measurement type. The timestamp
// falls back to read_at when the primary field is absent.
func MeterReadings(raw json.RawMessage, host string) []types.Record {
	var meters []struct {
		EID                 *int64   `json:"eid"`
		MeasurementType     string   `json:"measurementType"`
		ActivePower         *float64 `json:"activePower"`
		InstantaneousDemand *float64 `json:"instantaneousDemand"`
		Voltage             *float64 `json:"voltage"`
		Current             *float64 `json:"current"`
		Timestamp           *int64   `json:"timestamp"`
		ReadAt              *int64   `json:"read_at"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &meters) != nil {
		return nil
	}

	var records []types.Record
	for _, m := range meters {
		fields := make(map[string]any)
		addField(fields, "active_power", m.ActivePower)
		addField(fields, "inst_demand", m.InstantaneousDemand)
		addField(fields, "voltage", m.Voltage)
		addField(fields, "current", m.Current)
		if len(fields) == 0 {
			continue
		}
		tags := []types.Tag{{Key: "host", Value: host}}
		if m.EID != nil {
			tags = append(tags, types.Tag{Key: "eid", Value: strconv.FormatInt(*m.EID, 10)})
		}
		if m.MeasurementType != "" {
			tags = append(tags, types.Tag{Key: "type", Value: m.MeasurementType})
		}
		ts := m.Timestamp
		if ts == nil {
			ts = m.ReadAt
		}
		records = append(records, types.Record{
			Measurement: "meter_power",
			Tags:        tags,
			Fields:      fields,
			Timestamp:   epochToTime(ts),
		})
	}
	return records
}

// InverterProduction maps /api/v1/production/inverters: one
// "inverter_power" record per inverter, tagged with its serial number and
// timestamped from its own last-report field.
func InverterProduction(raw json.RawMessage, host string) []types.Record {
	var inverters []struct {
		SerialNumber    string   `json:"serialNumber"`
		LastReportDate  *int64   `json:"lastReportDate"`
		LastReportWatts *float64 `json:"lastReportWatts"`
		MaxReportWatts  *float64 `json:"maxReportWatts"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &inverters) != nil {
		return nil
	}

	var records []types.Record
	for _, inv := range inverters {
		fields := make(map[string]any)
		addField(fields, "last_w", inv.LastReportWatts)
		addField(fields, "max_w", inv.MaxReportWatts)
		if len(fields) == 0 {
			continue
		}
		tags := []types.Tag{{Key: "host", Value: host}}
		if inv.SerialNumber != "" {
			tags = append(tags, types.Tag{Key: "serial", Value: inv.SerialNumber})
		}
		records = append(records, types.Record{
			Measurement: "inverter_power",
			Tags:        tags,
			Fields:      fields,
			Timestamp:   epochToTime(inv.LastReportDate),
		})
	}
	return records
}

type liveDoc struct {
	Connection struct {
		SCStream string `json:"sc_stream"`
	} `json:"connection"`
	Meters *struct {
		LastUpdate *int64              `json:"last_update"`
		PV         map[string]*float64 `json:"pv"`
		Load       map[string]*float64 `json:"load"`
		Grid       map[string]*float64 `json:"grid"`
		Storage    map[string]*float64 `json:"storage"`
	} `json:"meters"`
}

// LiveStreamState extracts the stream flag from a live snapshot. Anything
// other than an explicit "enabled" reads as disabled.
func LiveStreamState(raw json.RawMessage) StreamState {
	var doc liveDoc
	if len(raw) == 0 || json.Unmarshal(raw, &doc) != nil {
		return StreamDisabled
	}
	if doc.Connection.SCStream == string(StreamEnabled) {
		return StreamEnabled
	}
	return StreamDisabled
}

// LiveData maps /ivp/livedata/status into one "live_data" record with up
// to eight fields (power and apparent power for pv, load, grid, storage).
// Absent categories or keys become explicit null fields; the record is
// still emitted.
func LiveData(raw json.RawMessage, host string) []types.Record {
	var doc liveDoc
	if len(raw) == 0 || json.Unmarshal(raw, &doc) != nil || doc.Meters == nil {
		return nil
	}

	get := func(cat map[string]*float64, key string) any {
		if v, ok := cat[key]; ok && v != nil {
			return *v
		}
		return nil
	}
	fields := map[string]any{
		"pv_mw":       get(doc.Meters.PV, "agg_p_mw"),
		"pv_mva":      get(doc.Meters.PV, "agg_s_mva"),
		"load_mw":     get(doc.Meters.Load, "agg_p_mw"),
		"load_mva":    get(doc.Meters.Load, "agg_s_mva"),
		"grid_mw":     get(doc.Meters.Grid, "agg_p_mw"),
		"grid_mva":    get(doc.Meters.Grid, "agg_s_mva"),
		"storage_mw":  get(doc.Meters.Storage, "agg_p_mw"),
		"storage_mva": get(doc.Meters.Storage, "agg_s_mva"),
	}

	return []types.Record{{
		Measurement: "live_data",
		Tags:        []types.Tag{{Key: "host", Value: host}},
		Fields:      fields,
		Timestamp:   epochToTime(doc.Meters.LastUpdate),
	}}
}
