package model

import "time"

type Role string

const (
	RoleStudent  Role = "student"
	RoleLecturer Role = "lecturer"
)

type User struct {
	ID            string    `json:"id"`
	FullName      string    `json:"full_name"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Role          Role      `json:"role"`
	AcademicLevel string    `json:"academic_level,omitempty"` // "100".."400"; empty for lecturers
	AvatarURL     string    `json:"avatar_url"`
	CreatedAt     time.Time `json:"created_at"`
}

type UserPublic struct {
	ID            string `json:"id"`
	FullName      string `json:"full_name"`
	Role          Role   `json:"role"`
	AcademicLevel string `json:"academic_level,omitempty"`
	AvatarURL     string `json:"avatar_url"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:            u.ID,
		FullName:      u.FullName,
		Role:          u.Role,
		AcademicLevel: u.AcademicLevel,
		AvatarURL:     u.AvatarURL,
	}
}
