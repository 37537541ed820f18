package domain

import (
	"errors"
	"regexp"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// validatorInstance is a package-level validator instance.
// Using a single instance is more efficient as it caches struct information.
var validatorInstance = validator.New()

var assetSymbol = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

// init registers custom validation functions with the validator instance.
func init() {
	_ = validatorInstance.RegisterValidation("archetype", func(fl validator.FieldLevel) bool {
		return Archetype(fl.Field().String()).Valid()
	})
	_ = validatorInstance.RegisterValidation("asset", func(fl validator.FieldLevel) bool {
		return assetSymbol.MatchString(fl.Field().String())
	})
}

// Capacity limits.
const (
	JoinThreshold   = 5
	MaxParticipants = 8
	MinToStart      = 2
)

// LobbyConfig is the input to create a battle. The epoch budget is derived
// from the participant count and cannot be set here.
type LobbyConfig struct {
	ID     string          `json:"id,omitempty" validate:"omitempty,max=64"`
	Assets []string        `json:"assets" validate:"required,min=1,max=8,dive,asset"`
	Fee    decimal.Decimal `json:"fee"`
	Seed   uint64          `json:"seed,omitempty"`
}

// Validate checks the lobby configuration.
func (c *LobbyConfig) Validate() error {
	if err := validatorInstance.Struct(c); err != nil {
		return toValidationError(err)
	}
	if c.Fee.IsNegative() {
		return &ValidationError{Field: "Fee", Reason: "must not be negative"}
	}
	return nil
}

// JoinRequest is the input to add a participant to a lobby.
type JoinRequest struct {
	ID        string    `json:"id,omitempty" validate:"omitempty,max=64"`
	Name      string    `json:"name" validate:"required,min=2,max=32"`
	Archetype Archetype `json:"archetype" validate:"required,archetype"`
}

// Validate checks the join request.
func (r *JoinRequest) Validate() error {
	if err := validatorInstance.Struct(r); err != nil {
		return toValidationError(err)
	}
	return nil
}

// ValidateAction checks a decision against the battle's asset list. Invalid
// actions are replaced with SafeDefault by the epoch pipeline.
func ValidateAction(a EpochAction, assets []string) error {
	if err := validatorInstance.Struct(a); err != nil {
		return toValidationError(err)
	}
	if !slices.Contains(assets, a.Prediction.Asset) {
		return &ValidationError{Field: "Prediction.Asset", Reason: "unknown asset " + a.Prediction.Asset}
	}
	if (a.Stance == StanceAttack || a.Stance == StanceSabotage) && (a.Target == "" || a.Stake <= 0) {
		return &ValidationError{Field: "Target", Reason: "offensive stance needs a target and a positive stake"}
	}
	return nil
}

func toValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Field: fe.Namespace(), Reason: "failed on '" + fe.Tag() + "'", Err: err}
	}
	return &ValidationError{Reason: err.Error(), Err: err}
}
