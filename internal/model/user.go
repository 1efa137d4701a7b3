package model

import "time"

// Department groups users and the files they upload.
type Department struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// User is an account that can authenticate. PasswordHash never leaves the server.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Active       bool      `json:"-"`
	DepartmentID int64     `json:"department_id"`
	CreatedAt    time.Time `json:"-"`
}

// Actor returns the identity used for authorization decisions.
func (u *User) Actor() Actor {
	return Actor{ID: u.ID, Role: u.Role, DepartmentID: u.DepartmentID}
}
