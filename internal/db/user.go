package db

import (
	"context"
	"fmt"
	"time"

	"github.com/ukydev/fleet-ledger/internal/models"
)

// UserCollection defines the interface for user database operations
type UserCollection interface {
	InsertUser(ctx context.Context, user models.User) (string, error)
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUser(ctx context.Context, id string, fields Document) error
	UpdateLastLogin(ctx context.Context, id string) error
}

// StoreUserCollection implements UserCollection on any Store.
type StoreUserCollection struct {
	users *Collection[models.User]
}

var _ UserCollection = (*StoreUserCollection)(nil)

// NewUserCollection returns the users collection of store.
func NewUserCollection(store Store) *StoreUserCollection {
	return &StoreUserCollection{users: NewCollection[models.User](store, CollectionUsers)}
}

// InsertUser inserts a new, active user and returns its id.
func (c *StoreUserCollection) InsertUser(ctx context.Context, user models.User) (string, error) {
	user.IsActive = true
	return c.users.Create(ctx, user)
}

func (c *StoreUserCollection) found(user *models.User, err error, key string) (*models.User, error) {
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", key, ErrNotFound)
	}
	return user, nil
}

// FindUserByID finds a user by their ID
func (c *StoreUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	user, err := c.users.Get(ctx, id)
	return c.found(user, err, id)
}

// FindUserByUsername finds a user by their username
func (c *StoreUserCollection) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := c.users.FindOne(ctx, Eq(models.UserFieldUsername, username))
	return c.found(user, err, username)
}

// FindUserByEmail finds a user by their email
func (c *StoreUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := c.users.FindOne(ctx, Eq(models.UserFieldEmail, email))
	return c.found(user, err, email)
}

// UpdateUser merges fields into the stored user.
func (c *StoreUserCollection) UpdateUser(ctx context.Context, id string, fields Document) error {
	return c.users.Update(ctx, id, fields)
}

// UpdateLastLogin updates the last login time for a user
func (c *StoreUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	return c.users.Update(ctx, id, Document{models.UserFieldLastLogin: time.Now()})
}
