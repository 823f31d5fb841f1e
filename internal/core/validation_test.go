package core

import (
	"errors"
	"testing"
)

func TestValidateHeaders(t *testing.T) {
	specs := []FieldSpec{
		{Name: "Order Number", Required: true},
		{Name: "Product name", Required: true},
		{Name: "Price", Type: FieldNumeric},
	}

	t.Run("all present case-insensitive", func(t *testing.T) {
		idx, err := ValidateHeaders("orders", []string{"order number", "PRODUCT NAME"}, specs)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if idx["product name"] != 1 {
			t.Errorf("idx = %v", idx)
		}
	})

	t.Run("missing required", func(t *testing.T) {
		_, err := ValidateHeaders("orders", []string{"Price"}, specs)
		var mfe *MissingFieldError
		if !errors.As(err, &mfe) {
			t.Fatalf("want *MissingFieldError, got %v", err)
		}
		if len(mfe.Fields) != 2 || mfe.Fields[0] != "Order Number" {
			t.Errorf("Fields = %v", mfe.Fields)
		}
		want := "orders: missing required columns: Order Number, Product name"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})
}

func TestValidateCell(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		spec    FieldSpec
		wantErr bool
	}{
		{name: "empty always valid", value: "", spec: FieldSpec{Type: FieldNumeric}},
		{name: "price with won", value: "1,234원", spec: FieldSpec{Type: FieldNumeric}},
		{name: "bad number", value: "abc", spec: FieldSpec{Name: "Price", Type: FieldNumeric}, wantErr: true},
		{name: "datetime", value: "2024-01-02 03:04:05", spec: FieldSpec{Type: FieldDateTime}},
		{name: "iso datetime", value: "2024-01-02T03:04:05+09:00", spec: FieldSpec{Type: FieldDateTime}},
		{name: "bad datetime", value: "01/02/2024", spec: FieldSpec{Type: FieldDateTime}, wantErr: true},
		{name: "bool yes", value: "Yes", spec: FieldSpec{Type: FieldBool}},
		{name: "bad bool", value: "maybe", spec: FieldSpec{Type: FieldBool}, wantErr: true},
		{name: "text anything", value: "whatever", spec: FieldSpec{Type: FieldText}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCell(tt.value, tt.spec)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCell(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}
