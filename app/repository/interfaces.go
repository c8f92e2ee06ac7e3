package repository

import (
	"github.com/pwr-labs/pwr-access/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
}

// Repositories holds all repository instances
type Repositories struct {
	User UserRepository
}
