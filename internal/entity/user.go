package entity

import "time"

const (
	UserRoleAdmin = "Admin"
	UserRoleUser  = "User"

	UserStatusActive   = "Active"
	UserStatusInactive = "Inactive"
)

// DbUser represents a dashboard account managed from the Settings page.
type DbUser struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	UserID       string    `gorm:"column:user_id;type:varchar(128);uniqueIndex;not null" json:"user_id"`
	PasswordHash string    `gorm:"column:password_hash;type:varchar(255);not null" json:"-"`
	UserName     string    `gorm:"column:user_name;type:varchar(255)" json:"user_name"`
	Role         string    `gorm:"column:role;type:varchar(32);index;not null" json:"role"`
	PageAccess   CommaList `gorm:"column:page_access;type:text" json:"page_access"`
	Status       string    `gorm:"column:status;type:varchar(32);not null;default:Active" json:"status"`
}

// TableName overrides default pluralised name.
func (DbUser) TableName() string {
	return "users"
}

// IsActive reports whether the account may sign in.
func (u *DbUser) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// UserSummary is a lightweight user description returned to clients.
type UserSummary struct {
	ID         uint      `json:"id"`
	UserID     string    `json:"user_id"`
	UserName   string    `json:"user_name"`
	Role       string    `json:"role"`
	PageAccess []string  `json:"page_access"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UserQuery supports listing users with pagination.
type UserQuery struct {
	BaseParams
	Role    string `json:"role" form:"role" query:"role"`
	Status  string `json:"status" form:"status" query:"status"`
	Keyword string `json:"keyword" form:"keyword" query:"keyword"`
}

// AuthStatusResponse indicates whether the system already has users.
type AuthStatusResponse struct {
	HasUser bool `json:"has_user"`
}

type AuthLoginRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthRegisterRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
	UserName string `json:"user_name"`
}

type AuthResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      UserSummary `json:"user"`
}

type UserCreateRequest struct {
	UserID     string   `json:"user_id" binding:"required"`
	Password   string   `json:"password" binding:"required,min=8"`
	UserName   string   `json:"user_name"`
	Role       string   `json:"role" binding:"required"`
	PageAccess []string `json:"page_access"`
	Status     string   `json:"status"`
}

type UserUpdateRequest struct {
	UserName   *string   `json:"user_name,omitempty"`
	Role       *string   `json:"role,omitempty"`
	Password   *string   `json:"password,omitempty"`
	PageAccess *[]string `json:"page_access,omitempty"`
	Status     *string   `json:"status,omitempty"`
}

type UserListResponse struct {
	Users []UserSummary `json:"users"`
	Meta  *Meta         `json:"meta"`
}
