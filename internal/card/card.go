package card

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Brand is the card network detected from the number prefix.
type Brand string

const (
	BrandVisa       Brand = "visa"
	BrandMastercard Brand = "mastercard"
	BrandAmex       Brand = "amex"
	BrandDiscover   Brand = "discover"
	BrandUnknown    Brand = "unknown"
)

var (
	ErrInvalidNumber = errors.New("invalid card number")
	ErrInvalidCVC    = errors.New("invalid card security code")
	ErrExpired       = errors.New("card expired")
	ErrInvalidExpiry = errors.New("invalid card expiry")
	ErrInvalidHolder = errors.New("invalid card holder name")
)

// Card carries raw card details on their way to the provider.
// Its String, GoString and LogValue methods only ever expose the brand and last four digits.
type Card struct {
	Number   string `json:"number" validate:"required,credit_card"`
	ExpMonth int    `json:"exp_month" validate:"min=1,max=12"`
	ExpYear  int    `json:"exp_year" validate:"min=2000,max=2100"`
	CVC      string `json:"cvc" validate:"required,number,min=3,max=4"`
	Holder   string `json:"holder,omitempty" validate:"max=128"`
}

func (c Card) Brand() Brand { return DetectBrand(c.Number) }

func (c Card) Last4() string {
	digits := digitsOnly(c.Number)
	if len(digits) < 4 {
		return ""
	}

	return digits[len(digits)-4:]
}

// Masked renders the number as "**** 4242".
func (c Card) Masked() string { return Mask(c.Number) }

func (c Card) String() string {
	return fmt.Sprintf("%s %s", c.Brand(), c.Masked())
}

func (c Card) GoString() string { return c.String() }

func (c Card) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("brand", string(c.Brand())),
		slog.String("last4", c.Last4()),
	)
}

// Mask keeps only the last four digits of a card number.
func Mask(number string) string {
	digits := digitsOnly(number)
	if len(digits) < 4 {
		return "****"
	}

	return "**** " + digits[len(digits)-4:]
}

// DetectBrand identifies the network from IIN prefixes.
func DetectBrand(number string) Brand {
	d := digitsOnly(number)

	switch {
	case strings.HasPrefix(d, "4"):
		return BrandVisa
	case strings.HasPrefix(d, "34"), strings.HasPrefix(d, "37"):
		return BrandAmex
	case hasPrefixRange(d, 51, 55, 2), hasPrefixRange(d, 2221, 2720, 4):
		return BrandMastercard
	case strings.HasPrefix(d, "6011"), strings.HasPrefix(d, "65"), hasPrefixRange(d, 644, 649, 3):
		return BrandDiscover
	default:
		return BrandUnknown
	}
}

func hasPrefixRange(d string, lo, hi, width int) bool {
	if len(d) < width {
		return false
	}

	n := 0
	for _, r := range d[:width] {
		n = n*10 + int(r-'0')
	}

	return n >= lo && n <= hi
}

var separators = strings.NewReplacer(" ", "", "-", "")

// Validator performs structural checks on card input before any transaction exists.
// The struct tags on Card cover number shape, Luhn and field ranges; brand rules and the
// expiry window are checked here.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewValidator() *Validator {
	return NewValidatorAt(time.Now)
}

// NewValidatorAt fixes the clock used for expiry checks.
func NewValidatorAt(now func() time.Time) *Validator {
	return &Validator{validate: validator.New(), now: now}
}

// Validate checks the card and returns it normalised (number stripped of spaces and dashes).
// Errors are the package sentinels and never carry the submitted values.
func (v *Validator) Validate(c Card) (Card, error) {
	c.Number = separators.Replace(c.Number)
	c.CVC = strings.TrimSpace(c.CVC)
	c.Holder = strings.TrimSpace(c.Holder)

	if err := v.validate.Struct(c); err != nil {
		return Card{}, fieldError(err)
	}

	cvcLen := 3
	if DetectBrand(c.Number) == BrandAmex {
		cvcLen = 4
	}

	if len(c.CVC) != cvcLen {
		return Card{}, ErrInvalidCVC
	}

	// A card is valid through the last day of its expiry month.
	now := v.now().UTC()
	firstOfNext := time.Date(c.ExpYear, time.Month(c.ExpMonth)+1, 1, 0, 0, 0, 0, time.UTC)
	if !now.Before(firstOfNext) {
		return Card{}, ErrExpired
	}

	return c, nil
}

// fieldError maps the first failed field onto a sentinel.
func fieldError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return ErrInvalidNumber
	}

	switch verrs[0].StructField() {
	case "CVC":
		return ErrInvalidCVC
	case "ExpMonth", "ExpYear":
		return ErrInvalidExpiry
	case "Holder":
		return ErrInvalidHolder
	default:
		return ErrInvalidNumber
	}
}

func digitsOnly(s string) string {
	var sb strings.Builder

	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}

	return sb.String()
}
