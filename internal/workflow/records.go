package workflow

import (
	"pumptrack/internal/entity"
	"strings"
)

// StageRow is a decoded stage-table row.
type StageRow struct {
	RegID   string
	Planned string
	Actual  string
	// Fields holds every column in string form, planned/actual included.
	Fields map[string]string
}

// Status classifies the row.
func (r StageRow) Status() Status {
	return Classify(r.Planned, r.Actual)
}

// DecodeStageRows converts record-store rows of stage's table.
func DecodeStageRows(stage Stage, rows []entity.Row) []StageRow {
	planned, actual := stage.PlannedColumn(), stage.ActualColumn()
	out := make([]StageRow, 0, len(rows))
	for _, row := range rows {
		fields := make(map[string]string, len(row))
		for k := range row {
			fields[k] = row.String(k)
		}
		out = append(out, StageRow{
			RegID:   strings.TrimSpace(fields[entity.KeyColumn]),
			Planned: fields[planned],
			Actual:  fields[actual],
			Fields:  fields,
		})
	}
	return out
}

// RegistryRow is a typed beneficiary registry entry.
type RegistryRow struct {
	RegID           string
	IPName          string
	District        string
	Block           string
	Village         string
	Pincode         string
	PumpCapacity    string
	PumpHead        string
	BeneficiaryName string
	FatherName      string
	MobileNumber    string
	Amount          string
}

// registryField binds a view field name to its accepted source keys and accessor.
type registryField struct {
	Name string
	// Keys in resolution order: snake_case column first, then header-style.
	Keys []string
	get  func(*RegistryRow) *string
}

// RegistryAliases 登记表字段别名，加载时解析一次。
var RegistryAliases = []registryField{
	{Name: "reg_id", Keys: []string{"reg_id", "Reg ID"}, get: func(r *RegistryRow) *string { return &r.RegID }},
	{Name: "ip_name", Keys: []string{"ip_name", "IP Name"}, get: func(r *RegistryRow) *string { return &r.IPName }},
	{Name: "district", Keys: []string{"district", "District"}, get: func(r *RegistryRow) *string { return &r.District }},
	{Name: "block", Keys: []string{"block", "Block"}, get: func(r *RegistryRow) *string { return &r.Block }},
	{Name: "village", Keys: []string{"village", "Village"}, get: func(r *RegistryRow) *string { return &r.Village }},
	{Name: "pincode", Keys: []string{"pincode", "Pincode"}, get: func(r *RegistryRow) *string { return &r.Pincode }},
	{Name: "pump_capacity", Keys: []string{"pump_capacity", "Pump Capacity"}, get: func(r *RegistryRow) *string { return &r.PumpCapacity }},
	{Name: "pump_head", Keys: []string{"pump_head", "Pump Head"}, get: func(r *RegistryRow) *string { return &r.PumpHead }},
	{Name: "beneficiary_name", Keys: []string{"beneficiary_name", "Beneficiary Name"}, get: func(r *RegistryRow) *string { return &r.BeneficiaryName }},
	{Name: "father_name", Keys: []string{"father_name", "Father's Name"}, get: func(r *RegistryRow) *string { return &r.FatherName }},
	{Name: "mobile_number", Keys: []string{"mobile_number", "Mobile Number"}, get: func(r *RegistryRow) *string { return &r.MobileNumber }},
	{Name: "amount", Keys: []string{"amount", "Amount"}, get: func(r *RegistryRow) *string { return &r.Amount }},
}

var registryIndex = func() map[string]registryField {
	m := make(map[string]registryField, len(RegistryAliases))
	for _, f := range RegistryAliases {
		m[f.Name] = f
	}
	return m
}()

// Get returns the registry value for a view field name.
func (r RegistryRow) Get(name string) (string, bool) {
	f, ok := registryIndex[name]
	if !ok {
		return "", false
	}
	return *f.get(&r), true
}

// DecodeRegistryRows resolves aliases once per row. Values are trimmed.
func DecodeRegistryRows(rows []entity.Row) []RegistryRow {
	out := make([]RegistryRow, 0, len(rows))
	for _, row := range rows {
		var rr RegistryRow
		for _, f := range RegistryAliases {
			for _, key := range f.Keys {
				if v := strings.TrimSpace(row.String(key)); v != "" {
					*f.get(&rr) = v
					break
				}
			}
		}
		out = append(out, rr)
	}
	return out
}
