package authcore

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/quantconsole/authcore/password"
)

// RegisterInput is the material for a new account. FirstName and LastName
// are optional profile fields.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
}

// Register creates an account and logs the new user straight in. The store
// is the conflict authority: the pre-checks exist to give precise errors,
// but a constraint violation from CreateUser wins any race they miss.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Username = strings.TrimSpace(input.Username)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)

	if err := validateRegisterInput(input); err != nil {
		return nil, err
	}

	if _, err := e.userStore.GetUserByEmail(ctx, input.Email); err == nil {
		e.metricInc(MetricRegisterConflict)
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	if _, err := e.userStore.GetUserByUsername(ctx, input.Username); err == nil {
		e.metricInc(MetricRegisterConflict)
		return nil, ErrUsernameTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := e.passwords.Hash(input.Password)
	if err != nil {
		if errors.Is(err, password.ErrWeakPassword) {
			return nil, ErrInvalidInput
		}
		return nil, err
	}

	user := &User{
		Email:        input.Email,
		Username:     input.Username,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		PasswordHash: hash,
		Role:         "user",
		IsActive:     true,
	}
	if err := e.userStore.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) || errors.Is(err, ErrUsernameTaken) {
			e.metricInc(MetricRegisterConflict)
		}
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.recordEvent(ctx, user.ID, EventRegister, "account created", SeverityLow, nil)

	return e.startSession(ctx, user)
}

func validateRegisterInput(input RegisterInput) error {
	if input.Email == "" || input.Username == "" || input.Password == "" {
		return ErrInvalidInput
	}
	if _, err := mail.ParseAddress(input.Email); err != nil {
		return ErrInvalidInput
	}
	if len(input.Username) < 3 || len(input.Username) > 32 {
		return ErrInvalidInput
	}
	for _, r := range input.Username {
		if !isUsernameRune(r) {
			return ErrInvalidInput
		}
	}
	if len(input.FirstName) > 100 || len(input.LastName) > 100 {
		return ErrInvalidInput
	}
	return nil
}

func isUsernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_', r == '-', r == '.':
		return true
	}
	return false
}
