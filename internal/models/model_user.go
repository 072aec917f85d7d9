package models

import "time"

// User is owned by the auth service; the engine only reads it to snapshot
// contact details onto orders and to address notifications.
type User struct {
	ID        string    `gorm:"column:id;type:varchar(64);primaryKey" json:"id"`
	Name      string    `gorm:"column:name;type:varchar(255)" json:"name"`
	Email     string    `gorm:"column:email;type:varchar(255)" json:"email"`
	Phone     string    `gorm:"column:phone;type:varchar(64)" json:"phone"`
	Company   string    `gorm:"column:company;type:varchar(255)" json:"company"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) Contact() OrderContact {
	if u == nil {
		return OrderContact{}
	}
	return OrderContact{Name: u.Name, Email: u.Email, Phone: u.Phone, Company: u.Company}
}
