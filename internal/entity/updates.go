package entity

// UserUpdates 用户更新字段
type UserUpdates struct {
	UserName     *string
	Role         *string
	PasswordHash *string
	PageAccess   *CommaList
	Status       *string
}

// ToMap 转换为 GORM 更新 map（内部使用）
func (u UserUpdates) ToMap() map[string]interface{} {
	updates := make(map[string]interface{})
	if u.UserName != nil {
		updates["user_name"] = *u.UserName
	}
	if u.Role != nil {
		updates["role"] = *u.Role
	}
	if u.PasswordHash != nil {
		updates["password_hash"] = *u.PasswordHash
	}
	if u.PageAccess != nil {
		updates["page_access"] = u.PageAccess.String()
	}
	if u.Status != nil {
		updates["status"] = *u.Status
	}
	return updates
}

// IsEmpty 检查是否没有任何更新字段
func (u UserUpdates) IsEmpty() bool {
	return len(u.ToMap()) == 0
}
