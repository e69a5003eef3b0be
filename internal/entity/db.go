package entity

// Re-export common types from the common package.

import (
	"pumptrack/internal/entity/common"
)

type Row = common.Row
type CommaList = common.CommaList
type Meta = common.Meta
type BaseParams = common.BaseParams

const TimestampLayout = common.TimestampLayout

var (
	FormatValue    = common.FormatValue
	ParseCommaList = common.ParseCommaList
)
