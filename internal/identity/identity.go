// Package identity checks staff credentials. A PIN check attributes an order
// to a staff member without opening a session; the password check backs full
// logins. Both answer the same way for an unknown user and a wrong secret.
package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"hotelpos/backend/internal/domain"
	"hotelpos/backend/internal/store"
)

type StaffFinder interface {
	GetActiveStaffByUsername(ctx context.Context, username string) (*domain.StaffMember, error)
}

type Checker struct {
	staff StaffFinder
	// compared against when the username is unknown so both paths cost a bcrypt round
	decoy   []byte
	compare func(hash []byte, secret []byte) error
}

func NewChecker(staff StaffFinder) *Checker {
	decoy, _ := bcrypt.GenerateFromPassword([]byte("decoy-secret"), bcrypt.DefaultCost)
	return &Checker{staff: staff, decoy: decoy, compare: bcrypt.CompareHashAndPassword}
}

// ValidatePIN never reports which half of the credential was wrong. The error
// is reserved for lookup failures.
func (c *Checker) ValidatePIN(ctx context.Context, username string, pin domain.PIN) (domain.PINValidation, error) {
	member, err := c.lookup(ctx, username)
	if err != nil {
		return domain.PINValidation{}, err
	}
	stored := ""
	if member != nil {
		stored = member.PIN
	}
	if !c.pinMatches(stored, pin.String()) || member == nil {
		return domain.PINValidation{Valid: false}, nil
	}
	return domain.PINValidation{
		Valid:     true,
		StaffID:   member.ID,
		StaffName: member.Name,
		Role:      member.Role,
	}, nil
}

func (c *Checker) ValidatePassword(ctx context.Context, username string, password string) (*domain.StaffMember, error) {
	member, err := c.lookup(ctx, username)
	if err != nil {
		return nil, err
	}
	if member == nil || !IsSecretHash(member.PasswordHash) || strings.TrimSpace(password) == "" {
		_ = c.compare(c.decoy, []byte(password))
		return nil, store.ErrAuthentication
	}
	if c.compare([]byte(member.PasswordHash), []byte(password)) != nil {
		return nil, store.ErrAuthentication
	}
	return member, nil
}

// Attribute resolves who an order is credited to. Exempt order types skip the
// PIN check entirely.
func (c *Checker) Attribute(ctx context.Context, orderType string, username string, pin domain.PIN) (domain.Attribution, error) {
	if exempt, ok := domain.ExemptionFor(orderType); ok {
		return exempt, nil
	}
	if strings.TrimSpace(username) == "" || pin.String() == "" {
		return domain.Attribution{}, fmt.Errorf("%w: staff_username and pin are required for %s orders", store.ErrValidation, orderType)
	}
	result, err := c.ValidatePIN(ctx, username, pin)
	if err != nil {
		return domain.Attribution{}, err
	}
	if !result.Valid {
		return domain.Attribution{}, fmt.Errorf("%w: invalid staff username or pin", store.ErrAuthentication)
	}
	return domain.Attributed(result.StaffID, result.StaffName), nil
}

func (c *Checker) lookup(ctx context.Context, username string) (*domain.StaffMember, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, nil
	}
	member, err := c.staff.GetActiveStaffByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup staff: %w", err)
	}
	return member, nil
}

func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// pinMatches compares PINs as trimmed strings. Hashed PINs go through bcrypt;
// every other path (unknown user, legacy plain PIN, empty input) is charged
// one decoy round so response time does not reveal which usernames exist.
func (c *Checker) pinMatches(stored string, input string) bool {
	stored = strings.TrimSpace(stored)
	if IsSecretHash(stored) && input != "" {
		return c.compare([]byte(stored), []byte(input)) == nil
	}
	_ = c.compare(c.decoy, []byte(input))
	if stored == "" || input == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(input)) == 1
}

func VerifySecret(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !IsSecretHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func IsSecretHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}

var commonPINs = map[string]bool{
	"1212": true, "1122": true, "121212": true, "112233": true, "123123": true, "696969": true,
}

// CheckPINStrength rejects PINs a colleague could guess at the till: repeated
// digits, straight runs up or down, and a short list of favourites.
func CheckPINStrength(pin string) error {
	if commonPINs[pin] {
		return fmt.Errorf("%w: common pin not allowed", store.ErrValidation)
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("%w: pin must not repeat a single digit", store.ErrValidation)
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("%w: sequential pin not allowed", store.ErrValidation)
	}
	return nil
}
