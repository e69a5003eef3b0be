package workflow

import (
	"sort"
	"strconv"
)

// Placeholder stands in for registry fields that have no value.
const Placeholder = "-"

// ViewRow is a stage row merged with its registry context.
type ViewRow struct {
	Stage    StageRow
	Registry RegistryRow
	Matched  bool
	Status   Status
	Delay    Delay
}

// RegID returns the registration id of the stage row.
func (v ViewRow) RegID() string {
	return v.Stage.RegID
}

// Field looks a value up by name. Registry fields shadow stage columns of the
// same name and read as Placeholder when empty or unmatched.
func (v ViewRow) Field(name string) (string, bool) {
	if value, ok := v.Registry.Get(name); ok {
		if name == "reg_id" {
			return v.Stage.RegID, true
		}
		if !v.Matched || value == "" {
			return Placeholder, true
		}
		return value, true
	}
	value, ok := v.Stage.Fields[name]
	return value, ok
}

// Values returns every field value, stage columns first in key order, then
// the derived status and delay values.
func (v ViewRow) Values() []string {
	keys := make([]string, 0, len(v.Stage.Fields))
	for k := range v.Stage.Fields {
		if _, shadowed := registryIndex[k]; !shadowed {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys)+len(RegistryAliases)+3)
	for _, k := range keys {
		out = append(out, v.Stage.Fields[k])
	}
	for _, f := range RegistryAliases {
		value, _ := v.Field(f.Name)
		out = append(out, value)
	}
	// 与 Flatten 输出的派生字段保持一致
	return append(out, v.Status.String(), strconv.Itoa(v.Delay.Days), strconv.FormatBool(v.Delay.Known))
}

// Flatten renders the row as one record for JSON and export.
func (v ViewRow) Flatten() map[string]interface{} {
	out := make(map[string]interface{}, len(v.Stage.Fields)+len(RegistryAliases)+3)
	for k, value := range v.Stage.Fields {
		out[k] = value
	}
	for _, f := range RegistryAliases {
		value, _ := v.Field(f.Name)
		out[f.Name] = value
	}
	out["status"] = v.Status.String()
	out["delay_days"] = v.Delay.Days
	out["delay_known"] = v.Delay.Known
	return out
}

// Join merges stage rows with the registry on reg_id.
// Duplicate registry ids resolve last-write-wins; output keeps stage order.
func Join(stage []StageRow, registry []RegistryRow, mode JoinMode) []ViewRow {
	lookup := make(map[string]RegistryRow, len(registry))
	for _, r := range registry {
		if r.RegID != "" {
			lookup[r.RegID] = r
		}
	}

	out := make([]ViewRow, 0, len(stage))
	for _, row := range stage {
		reg, ok := lookup[row.RegID]
		if !ok && mode == JoinRequired {
			continue
		}
		out = append(out, ViewRow{
			Stage:    row,
			Registry: reg,
			Matched:  ok,
			Status:   row.Status(),
			Delay:    ComputeDelay(row.Planned, row.Actual),
		})
	}
	return out
}

// Buckets splits view rows by status.
type Buckets struct {
	Pending    []ViewRow
	History    []ViewRow
	NotStarted int
}

// Bucket partitions rows; NotStarted rows are only counted.
func Bucket(rows []ViewRow) Buckets {
	b := Buckets{Pending: []ViewRow{}, History: []ViewRow{}}
	for _, row := range rows {
		switch row.Status {
		case Pending:
			b.Pending = append(b.Pending, row)
		case Completed:
			b.History = append(b.History, row)
		default:
			b.NotStarted++
		}
	}
	return b
}
