package model

import (
	"errors"
	"testing"
)

func TestCheckoutResult_Kind(t *testing.T) {
	tests := []struct {
		result CheckoutResult
		want   ResultKind
	}{
		{&Redirect{URL: "https://pay.example/s/1"}, KindRedirect},
		{&Completed{Order: &Order{ID: "o1"}}, KindCompleted},
		{&Failed{Err: errors.New("declined")}, KindFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			if got := tt.result.Kind(); got != tt.want {
				t.Errorf("Kind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCheckoutRequest_Validate(t *testing.T) {
	tests := []struct {
		name     string
		req      CheckoutRequest
		sentinel error
	}{
		{"cart with session", CheckoutRequest{SessionID: "guest_1_x"}, nil},
		{"cart without session", CheckoutRequest{}, ErrSession},
		{"buy now", CheckoutRequest{ProductID: "p1", Quantity: 1}, nil},
		{"buy now zero quantity", CheckoutRequest{ProductID: "p1"}, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.sentinel == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("Validate() = %v, want %v", err, tt.sentinel)
			}
		})
	}
}

func TestCustomer_FullName(t *testing.T) {
	tests := []struct {
		c    Customer
		want string
	}{
		{Customer{FirstName: "Ada", LastName: "Lovelace"}, "Ada Lovelace"},
		{Customer{FirstName: "Ada"}, "Ada"},
		{Customer{LastName: "Lovelace"}, "Lovelace"},
	}
	for _, tt := range tests {
		if got := tt.c.FullName(); got != tt.want {
			t.Errorf("FullName() = %q, want %q", got, tt.want)
		}
	}
}
