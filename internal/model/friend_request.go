package model

import "time"

type FriendRequestStatus string

const (
	FriendRequestPending  FriendRequestStatus = "pending"
	FriendRequestAccepted FriendRequestStatus = "accepted"
	FriendRequestDeclined FriendRequestStatus = "declined"
)

// FriendRequest 好友申请（A -> B）；同一有序对同时最多一条 pending
type FriendRequest struct {
	ID        string              `json:"id"`
	FromID    string              `json:"fromId"`
	ToID      string              `json:"toId"`
	Status    FriendRequestStatus `json:"status"`
	CreatedAt time.Time           `json:"createdAt"`
}

func (r *FriendRequest) IsPending() bool { return r.Status == FriendRequestPending }
