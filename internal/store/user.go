package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/rcdvgn/copypitch/internal/models"
)

// CreateUser creates a user account on the free plan. Email must be unique.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, name string) (*models.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	now := time.Now()
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		Plan:         models.PlanFree,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		emails := tx.Bucket(bucketUserEmails)
		if existing := emails.Get([]byte(email)); existing != nil {
			return fmt.Errorf("user with email %q already exists", email)
		}
		if err := putUser(tx, user); err != nil {
			return err
		}
		return emails.Put([]byte(email), []byte(user.ID))
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user *models.User
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		user, err = getUser(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByEmail retrieves a user through the email index.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user *models.User
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketUserEmails).Get([]byte(email))
		if id == nil {
			return ErrNotFound
		}
		var err error
		user, err = getUser(tx, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByCustomerID retrieves a user through the billing customer index.
func (s *Store) GetUserByCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	var user *models.User
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketUserCustomers).Get([]byte(customerID))
		if id == nil {
			return ErrNotFound
		}
		var err error
		user, err = getUser(tx, string(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUserPlan sets the user's plan tier.
func (s *Store) UpdateUserPlan(ctx context.Context, id, plan string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		user, err := getUser(tx, id)
		if err != nil {
			return err
		}
		user.Plan = plan
		user.UpdatedAt = time.Now()
		return putUser(tx, user)
	})
}

// SetUserCustomerID binds a billing customer ID to the user and indexes it.
func (s *Store) SetUserCustomerID(ctx context.Context, id, customerID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		user, err := getUser(tx, id)
		if err != nil {
			return err
		}
		customers := tx.Bucket(bucketUserCustomers)
		if user.BillingCustomerID != "" && user.BillingCustomerID != customerID {
			if err := customers.Delete([]byte(user.BillingCustomerID)); err != nil {
				return err
			}
		}
		user.BillingCustomerID = customerID
		user.UpdatedAt = time.Now()
		if err := putUser(tx, user); err != nil {
			return err
		}
		return customers.Put([]byte(customerID), []byte(user.ID))
	})
}

// TouchUserPayment stamps the user's last successful payment time.
func (s *Store) TouchUserPayment(ctx context.Context, id string, at time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		user, err := getUser(tx, id)
		if err != nil {
			return err
		}
		user.LastPaymentAt = &at
		user.UpdatedAt = time.Now()
		return putUser(tx, user)
	})
}

// storedUser is the on-disk form of a user. The model hides the password
// hash from JSON responses, so persistence carries it explicitly.
type storedUser struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

func getUser(tx *bolt.Tx, id string) (*models.User, error) {
	data := tx.Bucket(bucketUsers).Get([]byte(id))
	if data == nil {
		return nil, ErrNotFound
	}
	var stored storedUser
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	user := stored.User
	user.PasswordHash = stored.PasswordHash
	return &user, nil
}

func putUser(tx *bolt.Tx, user *models.User) error {
	data, err := json.Marshal(&storedUser{User: *user, PasswordHash: user.PasswordHash})
	if err != nil {
		return fmt.Errorf("failed to marshal user: %w", err)
	}
	return tx.Bucket(bucketUsers).Put([]byte(user.ID), data)
}
