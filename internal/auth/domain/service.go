package domain

import "context"

type Service interface {
	Login(ctx context.Context, username, pin string) (*User, error)
	ChangePin(ctx context.Context, req ChangePinRequest) error
	CreateUser(ctx context.Context, actor *User, req CreateUserRequest) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
}
