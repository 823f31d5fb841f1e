package tables

import "github.com/JonMunkholm/publsync/internal/core"

func init() {
	registerMembers()
}

func registerMembers() {
	core.Register(core.SourceDefinition{
		Info: core.SourceInfo{
			Key:         core.SourceMembers,
			Label:       "Members",
			FilePattern: "*_members.csv",
			UniqueKey:   core.FieldMemberCode,
		},
		FieldSpecs: []core.FieldSpec{
			{Name: core.FieldMemberCode, Type: core.FieldText, Required: true},
			{Name: core.FieldUsername, Type: core.FieldText},
			{Name: core.FieldEmail, Type: core.FieldText, Required: true},
			{Name: core.FieldCountry, Type: core.FieldText},
			{Name: core.FieldName, Type: core.FieldText, Required: true},
			{Name: core.FieldGender, Type: core.FieldText},
			{Name: core.FieldBirthYear, Type: core.FieldText},
			{Name: core.FieldPersonalEmail, Type: core.FieldText},
			{Name: core.FieldMobile, Type: core.FieldText},
			{Name: core.FieldSignupDate, Type: core.FieldDateTime},
		},
	})
}
