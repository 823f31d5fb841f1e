package tables

import "github.com/JonMunkholm/publsync/internal/core"

func init() {
	registerOrders()
}

func registerOrders() {
	core.Register(core.SourceDefinition{
		Info: core.SourceInfo{
			Key:         core.SourceOrders,
			Label:       "Orders",
			FilePattern: "*_orders*.csv",
			UniqueKey:   core.FieldOrderNumber,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: core.FieldOrderNumber, Type: core.FieldText, Required: true},
			{Name: core.FieldProductName, Type: core.FieldText, Required: true},
			{Name: core.FieldOrderType, Type: core.FieldText},
			{Name: core.FieldPrice, Type: core.FieldNumeric},
			{Name: core.FieldName, Type: core.FieldText},
			{Name: core.FieldEmail, Type: core.FieldText},
			{Name: core.FieldMemberCode, Type: core.FieldText, Required: true},
			{Name: core.FieldPaymentType, Type: core.FieldEnum, Required: true, EnumValues: []string{core.RegularPayment, "One-time Payment"}},
			{Name: core.FieldPaymentMethod, Type: core.FieldText},
			{Name: core.FieldPaymentDate, Type: core.FieldDateTime},
		},
	})
}
