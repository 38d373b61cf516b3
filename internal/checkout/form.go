package checkout

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"guest-checkout/internal/model"
	"guest-checkout/internal/storage"
)

// Form is the guest checkout form as the buyer fills it in.
// Validation runs only on submit.
type Form struct {
	FirstName  string `json:"firstName" validate:"required"`
	LastName   string `json:"lastName" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,phone"`
	Street     string `json:"street" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode" validate:"required,postcode5"`
	Country    string `json:"country" validate:"required"`
}

var (
	phoneRe    = regexp.MustCompile(`^[0-9+\-() ]{8,}$`)
	postcodeRe = regexp.MustCompile(`^[0-9]{5}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so UIs can map errors to inputs.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phoneRe.MatchString(fl.Field().String())
	})
	v.RegisterValidation("postcode5", func(fl validator.FieldLevel) bool {
		return postcodeRe.MatchString(fl.Field().String())
	})
	return v
}

var messages = map[string]string{
	"required":  "is required",
	"email":     "must be a valid email address",
	"phone":     "must be at least 8 characters of digits, spaces, +, -, ( or )",
	"postcode5": "must be 5 digits",
}

// Normalized returns a copy with surrounding whitespace trimmed.
func (f Form) Normalized() Form {
	trim := strings.TrimSpace
	return Form{
		FirstName:  trim(f.FirstName),
		LastName:   trim(f.LastName),
		Email:      trim(f.Email),
		Phone:      trim(f.Phone),
		Street:     trim(f.Street),
		City:       trim(f.City),
		State:      trim(f.State),
		PostalCode: trim(f.PostalCode),
		Country:    strings.ToUpper(trim(f.Country)),
	}
}

// Validate checks the form. An empty result means valid.
func (f Form) Validate() model.FieldErrors {
	errs := model.FieldErrors{}
	err := validate.Struct(f.Normalized())
	if err == nil {
		return errs
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs["form"] = err.Error()
		return errs
	}
	for _, fe := range verrs {
		msg, ok := messages[fe.Tag()]
		if !ok {
			msg = "is invalid"
		}
		// First failing rule per field wins
		if _, seen := errs[fe.Field()]; !seen {
			errs[fe.Field()] = msg
		}
	}
	return errs
}

// Customer extracts the buyer identity.
func (f Form) Customer() model.Customer {
	n := f.Normalized()
	return model.Customer{
		FirstName: n.FirstName,
		LastName:  n.LastName,
		Email:     n.Email,
		Phone:     n.Phone,
	}
}

// Address extracts the shipping address.
func (f Form) Address() model.Address {
	n := f.Normalized()
	return model.Address{
		Street:     n.Street,
		City:       n.City,
		State:      n.State,
		PostalCode: n.PostalCode,
		Country:    n.Country,
	}
}

// FormStore persists the in-progress form so it survives a reload.
type FormStore struct {
	store storage.Store
}

// NewFormStore creates a FormStore over the durable store.
func NewFormStore(store storage.Store) *FormStore {
	return &FormStore{store: store}
}

// Save stores the form as-is, valid or not.
func (s *FormStore) Save(ctx context.Context, f Form) error {
	return storage.SetJSON(ctx, s.store, storage.KeyCheckoutForm, f)
}

// Restore returns the saved form. ok is false when nothing was saved.
func (s *FormStore) Restore(ctx context.Context) (f Form, ok bool, err error) {
	err = storage.GetJSON(ctx, s.store, storage.KeyCheckoutForm, &f)
	if errors.Is(err, storage.ErrMiss) {
		return Form{}, false, nil
	}
	if err != nil {
		return Form{}, false, err
	}
	return f, true, nil
}

// Clear forgets the saved form. Called after a completed order.
func (s *FormStore) Clear(ctx context.Context) error {
	return s.store.Delete(ctx, storage.KeyCheckoutForm)
}
