package model

import "time"

// User 目录中的一行：用户名唯一且创建后不可变，ClientID 为空表示当前未连接。
type User struct {
	Username  string    `bson:"username" json:"username"`
	ClientID  *string   `bson:"client_id" json:"clientId"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Connected reports whether the directory row carries a connection id.
func (u User) Connected() bool {
	return u.ClientID != nil && *u.ClientID != ""
}

// ClientIDOrEmpty dereferences ClientID.
func (u User) ClientIDOrEmpty() string {
	if u.ClientID == nil {
		return ""
	}
	return *u.ClientID
}
