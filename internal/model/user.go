package model

import "time"

// User 用户；Friends 为对称好友集合（按建立顺序）
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"passwordHash"`
	Bio          string    `json:"bio"`
	Friends      []string  `json:"friends"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u *User) HasFriend(id string) bool {
	for _, f := range u.Friends {
		if f == id {
			return true
		}
	}
	return false
}

// AddFriend 幂等：已存在时返回 false
func (u *User) AddFriend(id string) bool {
	if u.HasFriend(id) {
		return false
	}
	u.Friends = append(u.Friends, id)
	return true
}

// DisplayName 名字为空时退回到 id
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}
