package account

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/codeabode/backend/core"
)

type Account struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
}

func (a *Account) SetPassword(pwd string, cost ...int) error {
	c := bcrypt.DefaultCost
	if len(cost) > 0 && cost[0] >= bcrypt.MinCost {
		c = cost[0]
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), c)
	if err != nil {
		return err
	}
	a.PasswordHash = hash
	return nil
}

func (a *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(pwd))
}

func (a Account) String() string {
	return fmt.Sprintf("%d: %s (%s)", a.ID, a.Username, a.Name)
}

// Person identifies the account in logs.
func (a Account) Person() core.Person {
	return core.Person{ID: strconv.Itoa(a.ID), Username: a.Username, Email: a.Email}
}

// NewAccount contains information needed to create a new Account.
type NewAccount struct {
	Username string `json:"username" validate:"required,min=3,max=64,alphanum_"`
	Name     string `json:"name" validate:"required,notblank,max=128"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Username = core.CleanString(na.Username, true /* lower */)
	na.Name = core.CleanString(na.Name)
	na.Email = core.CleanString(na.Email, true /* lower */)
	return validate.Struct(na)
}

type Credentials struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (c *Credentials) Validate(validate *validator.Validate) error {
	c.Username = core.CleanString(c.Username, true /* lower */)
	return validate.Struct(c)
}

// PasswordChange is a self-service password change, authenticated by the current password.
type PasswordChange struct {
	Username    string `json:"username" validate:"required"`
	Password    string `json:"password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,nefield=Password"`
}

func (pc *PasswordChange) Validate(validate *validator.Validate) error {
	pc.Username = core.CleanString(pc.Username, true /* lower */)
	return validate.Struct(pc)
}

type EmailUpdate struct {
	Email string `json:"email" validate:"required,email"`
}

func (eu *EmailUpdate) Validate(validate *validator.Validate) error {
	eu.Email = core.CleanString(eu.Email, true /* lower */)
	return validate.Struct(eu)
}

type GetFilter struct {
	ID       int
	Username string
}
