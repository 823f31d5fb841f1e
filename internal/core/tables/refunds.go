package tables

import "github.com/JonMunkholm/publsync/internal/core"

func init() {
	registerRefunds()
}

func registerRefunds() {
	core.Register(core.SourceDefinition{
		Info: core.SourceInfo{
			Key:         core.SourceRefunds,
			Label:       "Refunds",
			FilePattern: "*_refunds.csv",
			UniqueKey:   core.FieldOrderNumber,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: core.FieldOrderNumber, Type: core.FieldText, Required: true},
			// Open set: new statuses must first be added to the remote single-select.
			{Name: core.FieldRefundStatus, Type: core.FieldEnum, Required: true, EnumValues: []string{"Pending", "Processing", "Refunded", "Rejected"}},
			{Name: core.FieldRefundPrice, Type: core.FieldNumeric},
			{Name: core.FieldUsername, Type: core.FieldText},
			{Name: core.FieldMemberCode, Type: core.FieldText},
			{Name: core.FieldRefundDate, Type: core.FieldDateTime},
		},
	})
}
