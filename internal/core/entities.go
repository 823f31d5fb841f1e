package core

// Field names shared by the CSV exports and the remote tables.
const (
	FieldMemberCode     = "Member Code"
	FieldUsername       = "Username"
	FieldEmail          = "E-mail"
	FieldCountry        = "Country"
	FieldName           = "Name"
	FieldGender         = "Gender"
	FieldBirthYear      = "Birth year"
	FieldPersonalEmail  = "Personal email address"
	FieldMobile         = "Mobile number"
	FieldSignupDate     = "Sign-up Date"
	FieldSignupDateISO  = "Sign-up Date (ISO)"
	FieldIsActive       = "Is Active"
	FieldOrderNumber    = "Order Number"
	FieldProductName    = "Product name"
	FieldOrderType      = "Type"
	FieldPrice          = "Price"
	FieldPaymentType    = "Payment Type"
	FieldPaymentMethod  = "Payment Method"
	FieldPaymentDate    = "Date and Time of Payment"
	FieldPaymentDateISO = "Date and Time of Payment (ISO)"
	FieldRefundStatus   = "Refund Status"
	FieldRefundPrice    = "Refund Request Price"
	FieldRefundDate     = "Refund Request Date"
	FieldRefundDateISO  = "Refund Request Date (ISO)"

	FieldProductCode      = "Product Code"
	FieldDisplayName      = "Display Name"
	FieldIsSubscription   = "Is Subscription"
	FieldSubscriptionDays = "Subscription Days"

	FieldProgramCode        = "MemberPrograms Code"
	FieldSubscriptionStatus = "Subscription Status"
	FieldLastPaymentDate    = "Last Payment Date"
	FieldExpiryDate         = "Expiry Date"
	FieldWelcomeSent        = "Welcome Sent"

	// Link fields
	LinkMember         = "Member"
	LinkProduct        = "Product"
	LinkMemberPrograms = "MemberPrograms"
	LinkOrders         = "Orders"
)

// SelectFields are the single-select fields the sync writes. A batch rejected
// for an unknown option is reported with its distinct values in these fields.
var SelectFields = []string{
	FieldOrderType,
	FieldPaymentType,
	FieldPaymentMethod,
	FieldRefundStatus,
	FieldSubscriptionStatus,
}

// RegularPayment is the payment type that marks a product as a subscription.
const RegularPayment = "Regular Payment"

// TerminalRefundStatuses are never revisited by the refund status scan.
var TerminalRefundStatuses = map[string]bool{
	"Refunded": true,
	"Rejected": true,
}

// Member is a registered user of the publ channel.
type Member struct {
	Code          string
	Username      string
	Email         string
	Country       string
	Name          string
	Gender        string
	BirthYear     string
	PersonalEmail string
	Mobile        string
	SignupDate    string
	SignupDateISO string
}

// MemberFromRow decodes a members CSV row.
func MemberFromRow(r Row, offset string) Member {
	signup := r.Get(FieldSignupDate)
	return Member{
		Code:          r.Get(FieldMemberCode),
		Username:      r.Get(FieldUsername),
		Email:         r.Get(FieldEmail),
		Country:       r.Get(FieldCountry),
		Name:          r.Get(FieldName),
		Gender:        r.Get(FieldGender),
		BirthYear:     r.Get(FieldBirthYear),
		PersonalEmail: r.Get(FieldPersonalEmail),
		Mobile:        r.Get(FieldMobile),
		SignupDate:    signup,
		SignupDateISO: ToISO(signup, offset),
	}
}

// Fields encodes a new member. New members are always active.
func (m Member) Fields() map[string]any {
	f := map[string]any{
		FieldMemberCode:    m.Code,
		FieldUsername:      m.Username,
		FieldEmail:         m.Email,
		FieldCountry:       m.Country,
		FieldName:          m.Name,
		FieldGender:        m.Gender,
		FieldBirthYear:     m.BirthYear,
		FieldPersonalEmail: m.PersonalEmail,
		FieldMobile:        m.Mobile,
		FieldSignupDate:    m.SignupDate,
		FieldIsActive:      true,
	}
	if m.SignupDateISO != "" {
		f[FieldSignupDateISO] = m.SignupDateISO
	}
	return f
}

// Order is a single purchase. Orders are never updated after insertion
// except to attach links.
type Order struct {
	Number         string
	ProductName    string
	Type           string
	Price          int
	BuyerName      string
	BuyerEmail     string
	MemberCode     string
	PaymentType    string
	PaymentMethod  string
	PaymentDate    string
	PaymentDateISO string
}

// OrderFromRow decodes an orders CSV row.
func OrderFromRow(r Row, offset string) Order {
	paid := r.Get(FieldPaymentDate)
	return Order{
		Number:         r.Get(FieldOrderNumber),
		ProductName:    r.Get(FieldProductName),
		Type:           r.Get(FieldOrderType),
		Price:          ParsePrice(r.Get(FieldPrice)),
		BuyerName:      r.Get(FieldName),
		BuyerEmail:     r.Get(FieldEmail),
		MemberCode:     r.Get(FieldMemberCode),
		PaymentType:    r.Get(FieldPaymentType),
		PaymentMethod:  r.Get(FieldPaymentMethod),
		PaymentDate:    paid,
		PaymentDateISO: ToISO(paid, offset),
	}
}

// Fields encodes an order without links.
func (o Order) Fields() map[string]any {
	f := map[string]any{
		FieldOrderNumber:   o.Number,
		FieldProductName:   o.ProductName,
		FieldOrderType:     o.Type,
		FieldPrice:         o.Price,
		FieldName:          o.BuyerName,
		FieldEmail:         o.BuyerEmail,
		FieldMemberCode:    o.MemberCode,
		FieldPaymentType:   o.PaymentType,
		FieldPaymentMethod: o.PaymentMethod,
		FieldPaymentDate:   o.PaymentDate,
	}
	if o.PaymentDateISO != "" {
		f[FieldPaymentDateISO] = o.PaymentDateISO
	}
	return f
}

// Refund is a refund request, keyed by the order it refunds.
type Refund struct {
	OrderNumber    string
	Status         string
	RequestPrice   int
	Username       string
	MemberCode     string
	RequestDate    string
	RequestDateISO string
}

// RefundFromRow decodes a refunds CSV row.
func RefundFromRow(r Row, offset string) Refund {
	requested := r.Get(FieldRefundDate)
	return Refund{
		OrderNumber:    r.Get(FieldOrderNumber),
		Status:         r.Get(FieldRefundStatus),
		RequestPrice:   ParsePrice(r.Get(FieldRefundPrice)),
		Username:       r.Get(FieldUsername),
		MemberCode:     r.Get(FieldMemberCode),
		RequestDate:    requested,
		RequestDateISO: ToISO(requested, offset),
	}
}

// Fields encodes a refund without links. An empty status is omitted so the
// single-select field stays unset.
func (r Refund) Fields() map[string]any {
	f := map[string]any{
		FieldOrderNumber: r.OrderNumber,
		FieldRefundPrice: r.RequestPrice,
		FieldUsername:    r.Username,
		FieldMemberCode:  r.MemberCode,
		FieldRefundDate:  r.RequestDate,
	}
	if r.Status != "" {
		f[FieldRefundStatus] = r.Status
	}
	if r.RequestDateISO != "" {
		f[FieldRefundDateISO] = r.RequestDateISO
	}
	return f
}

// Product is derived from the orders snapshot; Code is the product name.
type Product struct {
	Code           string
	IsSubscription bool
}

// Fields encodes a new product. Display Name is left blank and Subscription
// Days unset; both are curated by hand.
func (p Product) Fields() map[string]any {
	return map[string]any{
		FieldProductCode:    p.Code,
		FieldDisplayName:    "",
		FieldIsSubscription: p.IsSubscription,
	}
}

// ProductsFromOrders aggregates orders by product name, in order of first
// appearance. A product is a subscription iff any of its orders was paid with
// RegularPayment.
func ProductsFromOrders(orders []Order) []Product {
	index := make(map[string]int)
	var products []Product
	for _, o := range orders {
		if o.ProductName == "" {
			continue
		}
		i, ok := index[o.ProductName]
		if !ok {
			i = len(products)
			index[o.ProductName] = i
			products = append(products, Product{Code: o.ProductName})
		}
		if o.PaymentType == RegularPayment {
			products[i].IsSubscription = true
		}
	}
	return products
}

// MemberProgram groups every purchase variant of one program for one member.
type MemberProgram struct {
	Code       string // MemberCode_ProgramCode
	MemberCode string
	Program    string
	MemberID   string
	ProductID  string // representative product
}

// Fields encodes a new member-program record. Subscription status and dates
// are maintained outside this system and never written here.
func (mp MemberProgram) Fields() map[string]any {
	return map[string]any{
		FieldProgramCode: mp.Code,
		LinkMember:       []string{mp.MemberID},
		LinkProduct:      []string{mp.ProductID},
		FieldWelcomeSent: false,
	}
}
