package entity

import "time"

// Table names of the installation program. Stage tables are keyed by reg_id.
const (
	TablePortal           = "portal"
	TableSurvey           = "survey"
	TableDispatchMaterial = "dispatch_material"
	TableInstallation     = "installation"
	TableSystemInfo       = "system_info"
	TableIPPayment        = "ip_payment"
	TablePortalUpdate     = "portal_update"
	TableUsers            = "users"

	KeyColumn = "reg_id"
)

// DbPortal 受益人登记表，所有阶段表都以 reg_id 关联到它。
type DbPortal struct {
	ID              uint      `gorm:"primarykey" json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	RegID           string    `gorm:"column:reg_id;type:varchar(64);uniqueIndex;not null" json:"reg_id"`
	IPName          string    `gorm:"column:ip_name;type:varchar(255);index" json:"ip_name"`
	District        string    `gorm:"column:district;type:varchar(128);index" json:"district"`
	Block           string    `gorm:"column:block;type:varchar(128)" json:"block"`
	Village         string    `gorm:"column:village;type:varchar(128)" json:"village"`
	Pincode         string    `gorm:"column:pincode;type:varchar(16)" json:"pincode"`
	PumpCapacity    string    `gorm:"column:pump_capacity;type:varchar(32)" json:"pump_capacity"`
	PumpHead        string    `gorm:"column:pump_head;type:varchar(32)" json:"pump_head"`
	BeneficiaryName string    `gorm:"column:beneficiary_name;type:varchar(255)" json:"beneficiary_name"`
	FatherName      string    `gorm:"column:father_name;type:varchar(255)" json:"father_name"`
	MobileNumber    string    `gorm:"column:mobile_number;type:varchar(32)" json:"mobile_number"`
	Amount          string    `gorm:"column:amount;type:varchar(32)" json:"amount"`
}

func (DbPortal) TableName() string { return TablePortal }

// StageBase 是所有阶段表共有的列。
type StageBase struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	RegID     string    `gorm:"column:reg_id;type:varchar(64);uniqueIndex;not null" json:"reg_id"`
	Remarks   string    `gorm:"column:remarks;type:text" json:"remarks"`
}

// DbSurvey tracks survey and sanction (stage 2).
type DbSurvey struct {
	StageBase
	Planned2       *string `gorm:"column:planned_2;type:varchar(32)" json:"planned_2"`
	Actual2        *string `gorm:"column:actual_2;type:varchar(32)" json:"actual_2"`
	SurveyorName   string  `gorm:"column:surveyor_name;type:varchar(255)" json:"surveyor_name"`
	SanctionNo     string  `gorm:"column:sanction_no;type:varchar(64)" json:"sanction_no"`
	SurveyDocument string  `gorm:"column:survey_document;type:text" json:"survey_document"`
}

func (DbSurvey) TableName() string { return TableSurvey }

// DbDispatchMaterial tracks foundation material dispatch (stage 3).
type DbDispatchMaterial struct {
	StageBase
	Planned3    *string `gorm:"column:planned_3;type:varchar(32)" json:"planned_3"`
	Actual3     *string `gorm:"column:actual_3;type:varchar(32)" json:"actual_3"`
	InvoiceNo   string  `gorm:"column:invoice_no;type:varchar(64)" json:"invoice_no"`
	VehicleNo   string  `gorm:"column:vehicle_no;type:varchar(64)" json:"vehicle_no"`
	InvoiceCopy string  `gorm:"column:invoice_copy;type:text" json:"invoice_copy"`
}

func (DbDispatchMaterial) TableName() string { return TableDispatchMaterial }

// DbInstallation tracks pump installation (stage 4).
type DbInstallation struct {
	StageBase
	Planned4      *string `gorm:"column:planned_4;type:varchar(32)" json:"planned_4"`
	Actual4       *string `gorm:"column:actual_4;type:varchar(32)" json:"actual_4"`
	InstallerName string  `gorm:"column:installer_name;type:varchar(255)" json:"installer_name"`
	Latitude      string  `gorm:"column:latitude;type:varchar(32)" json:"latitude"`
	Longitude     string  `gorm:"column:longitude;type:varchar(32)" json:"longitude"`
	SitePhoto     string  `gorm:"column:site_photo;type:text" json:"site_photo"`
}

func (DbInstallation) TableName() string { return TableInstallation }

// DbSystemInfo 系统信息登记（IMEI、控制器编号等）。
type DbSystemInfo struct {
	StageBase
	Planned7     *string `gorm:"column:planned_7;type:varchar(32)" json:"planned_7"`
	Actual7      *string `gorm:"column:actual_7;type:varchar(32)" json:"actual_7"`
	IMEI         string  `gorm:"column:imei;type:varchar(32)" json:"imei"`
	ControllerNo string  `gorm:"column:controller_no;type:varchar(64)" json:"controller_no"`
	PanelSerial  string  `gorm:"column:panel_serial;type:varchar(128)" json:"panel_serial"`
}

func (DbSystemInfo) TableName() string { return TableSystemInfo }

// DbPortalUpdate 政府门户更新。
type DbPortalUpdate struct {
	StageBase
	Planned7     *string `gorm:"column:planned_7;type:varchar(32)" json:"planned_7"`
	Actual7      *string `gorm:"column:actual_7;type:varchar(32)" json:"actual_7"`
	PortalStatus string  `gorm:"column:portal_status;type:varchar(64)" json:"portal_status"`
	Screenshot   string  `gorm:"column:screenshot;type:text" json:"screenshot"`
}

func (DbPortalUpdate) TableName() string { return TablePortalUpdate }

// DbIPPayment 安装商付款（stage 11）。
type DbIPPayment struct {
	StageBase
	Planned11   *string `gorm:"column:planned_11;type:varchar(32)" json:"planned_11"`
	Actual11    *string `gorm:"column:actual_11;type:varchar(32)" json:"actual_11"`
	InvoiceNo   string  `gorm:"column:invoice_no;type:varchar(64)" json:"invoice_no"`
	AmountPaid  string  `gorm:"column:amount_paid;type:varchar(32)" json:"amount_paid"`
	UTRNo       string  `gorm:"column:utr_no;type:varchar(64)" json:"utr_no"`
	PaymentSlip string  `gorm:"column:payment_slip;type:text" json:"payment_slip"`
}

func (DbIPPayment) TableName() string { return TableIPPayment }

// Dashboard page names, as stored in users.page_access.
const (
	PageDashboard    = "Dashboard"
	PageSanction     = "Sanction"
	PageFoundation   = "Foundation"
	PageInstallation = "Installation"
	PageSystemInfo   = "System Info"
	PagePortalUpdate = "Portal Update"
	PagePayment      = "Payment"
	PageSettings     = "Settings"
)

// Pages lists every page in menu order.
var Pages = []string{
	PageDashboard,
	PageSanction,
	PageFoundation,
	PageInstallation,
	PageSystemInfo,
	PagePortalUpdate,
	PagePayment,
	PageSettings,
}
