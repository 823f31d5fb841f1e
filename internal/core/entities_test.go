package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemberFromRow(t *testing.T) {
	row := MapRow{
		FieldMemberCode: " SUB1 ",
		FieldEmail:      "a@x.com",
		FieldName:       "Kim",
		FieldSignupDate: "2024-12-27 15:30:45",
	}

	m := MemberFromRow(row, DefaultOffset)
	if m.Code != "SUB1" {
		t.Errorf("Code = %q, want trimmed", m.Code)
	}

	got := m.Fields()
	if got[FieldIsActive] != true {
		t.Errorf("new member should be active, got %v", got[FieldIsActive])
	}
	if got[FieldSignupDateISO] != "2024-12-27T15:30:45+09:00" {
		t.Errorf("ISO = %v", got[FieldSignupDateISO])
	}
}

func TestMemberFields_OmitsEmptyISO(t *testing.T) {
	m := MemberFromRow(MapRow{FieldMemberCode: "SUB1", FieldSignupDate: "yesterday"}, DefaultOffset)
	if _, ok := m.Fields()[FieldSignupDateISO]; ok {
		t.Error("unparseable sign-up date should omit the ISO field")
	}
}

func TestOrderFromRow(t *testing.T) {
	o := OrderFromRow(MapRow{
		FieldOrderNumber: "O1",
		FieldProductName: "KM-CMDS-OBM-ME-1",
		FieldPrice:       "55,000원",
		FieldPaymentType: RegularPayment,
		FieldPaymentDate: "2024-01-02 03:04",
	}, DefaultOffset)

	if o.Price != 55000 {
		t.Errorf("Price = %d, want 55000", o.Price)
	}
	f := o.Fields()
	if f[FieldPaymentDateISO] != "2024-01-02T03:04:00+09:00" {
		t.Errorf("ISO = %v", f[FieldPaymentDateISO])
	}
	if _, ok := f[LinkMember]; ok {
		t.Error("order fields should not carry links")
	}
}

func TestRefundFields_OmitsEmptyStatus(t *testing.T) {
	r := RefundFromRow(MapRow{FieldOrderNumber: "O1", FieldRefundPrice: "1,000"}, DefaultOffset)
	f := r.Fields()
	if _, ok := f[FieldRefundStatus]; ok {
		t.Error("empty status should be omitted")
	}
	if f[FieldRefundPrice] != 1000 {
		t.Errorf("price = %v", f[FieldRefundPrice])
	}
}

func TestProductsFromOrders(t *testing.T) {
	orders := []Order{
		{ProductName: "B", PaymentType: "Single Payment"},
		{ProductName: "A", PaymentType: "Single Payment"},
		{ProductName: "B", PaymentType: RegularPayment},
		{ProductName: ""},
		{ProductName: "A", PaymentType: "Single Payment"},
	}

	got := ProductsFromOrders(orders)
	want := []Product{
		{Code: "B", IsSubscription: true},
		{Code: "A", IsSubscription: false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ProductsFromOrders() mismatch (-want +got):\n%s", diff)
	}
}

func TestMemberProgramFields(t *testing.T) {
	mp := MemberProgram{Code: "SUB1_KM-CMDS-OBM", MemberID: "recM", ProductID: "recP"}
	want := map[string]any{
		FieldProgramCode: "SUB1_KM-CMDS-OBM",
		LinkMember:       []string{"recM"},
		LinkProduct:      []string{"recP"},
		FieldWelcomeSent: false,
	}
	if diff := cmp.Diff(want, mp.Fields()); diff != "" {
		t.Errorf("Fields() mismatch (-want +got):\n%s", diff)
	}
}
