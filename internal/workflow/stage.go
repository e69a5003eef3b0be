// Package workflow reconciles stage tables against the beneficiary registry:
// it classifies rows into pending/history buckets, joins registry context,
// aggregates dashboard counters, filters view rows and coordinates bulk updates.
package workflow

import (
	"fmt"
	"pumptrack/internal/entity"
	"strings"
)

// JoinMode controls what happens to a stage row without a registry match.
type JoinMode int

const (
	// JoinOptional keeps unmatched rows with placeholder registry fields.
	JoinOptional JoinMode = iota
	// JoinRequired drops unmatched rows.
	JoinRequired
)

// Stage describes one workflow step and the table that tracks it.
type Stage struct {
	Key   string
	Table string
	// Index is the <n> of the planned_<n>/actual_<n> column pair.
	Index int
	Page  string
	Join  JoinMode
	// AttachmentColumn receives the public URL of an uploaded file.
	AttachmentColumn string
	// Columns are the stage-specific columns a submit may write.
	Columns []string
}

// PlannedColumn 返回计划日期列名。
func (s Stage) PlannedColumn() string {
	return fmt.Sprintf("planned_%d", s.Index)
}

// ActualColumn 返回实际完成日期列名。
func (s Stage) ActualColumn() string {
	return fmt.Sprintf("actual_%d", s.Index)
}

// Editable reports whether a submit may write column.
func (s Stage) Editable(column string) bool {
	if column == "remarks" || column == s.PlannedColumn() {
		return true
	}
	for _, c := range s.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// FacetFields are the registry fields offered as dropdown filters on every page.
var FacetFields = []string{"ip_name", "district", "block"}

// Stages lists the workflow in program order.
var Stages = []Stage{
	{
		Key:              "survey",
		Table:            entity.TableSurvey,
		Index:            2,
		Page:             entity.PageSanction,
		AttachmentColumn: "survey_document",
		Columns:          []string{"surveyor_name", "sanction_no"},
	},
	{
		Key:              "foundation",
		Table:            entity.TableDispatchMaterial,
		Index:            3,
		Page:             entity.PageFoundation,
		AttachmentColumn: "invoice_copy",
		Columns:          []string{"invoice_no", "vehicle_no"},
	},
	{
		Key:              "installation",
		Table:            entity.TableInstallation,
		Index:            4,
		Page:             entity.PageInstallation,
		AttachmentColumn: "site_photo",
		Columns:          []string{"installer_name", "latitude", "longitude"},
	},
	{
		Key:              "system_info",
		Table:            entity.TableSystemInfo,
		Index:            7,
		Page:             entity.PageSystemInfo,
		AttachmentColumn: "",
		Columns:          []string{"imei", "controller_no", "panel_serial"},
	},
	{
		Key:              "portal_update",
		Table:            entity.TablePortalUpdate,
		Index:            7,
		Page:             entity.PagePortalUpdate,
		Join:             JoinRequired,
		AttachmentColumn: "screenshot",
		Columns:          []string{"portal_status"},
	},
	{
		Key:              "payment",
		Table:            entity.TableIPPayment,
		Index:            11,
		Page:             entity.PagePayment,
		AttachmentColumn: "payment_slip",
		Columns:          []string{"invoice_no", "amount_paid", "utr_no"},
	},
}

// LookupStage finds a stage by key, case-insensitively.
func LookupStage(key string) (Stage, bool) {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, s := range Stages {
		if s.Key == key {
			return s, true
		}
	}
	return Stage{}, false
}

func mustStage(key string) Stage {
	s, ok := LookupStage(key)
	if !ok {
		panic("workflow: unknown stage " + key)
	}
	return s
}
