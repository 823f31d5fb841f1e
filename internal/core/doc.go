// Package core holds the domain model for the publ.biz → table store sync.
//
// This package has no I/O. It defines the typed entities that flow through the
// reconciler, the CSV source definitions, and the pure conversions applied at
// the CSV-to-entity boundary. Every other package depends on it; it depends on
// nothing in this module.
//
// # Entities
//
// Members, Orders and Refunds are decoded from CSV rows ([MemberFromRow],
// [OrderFromRow], [RefundFromRow]) and encoded to store field maps using the
// exact field names of the remote tables. Products and MemberPrograms are
// derived: products from the Orders snapshot ([ProductsFromOrders]) and
// member-programs from already-synced remote orders.
//
// # Source Registry
//
// CSV sources are registered at init time using [Register], in the same way
// the tables subpackage does for members, orders and refunds:
//
//	core.Register(core.SourceDefinition{
//	    Info: core.SourceInfo{Key: "members", Label: "Members",
//	        FilePattern: "*_members.csv", UniqueKey: core.FieldMemberCode},
//	    FieldSpecs: []core.FieldSpec{
//	        {Name: core.FieldMemberCode, Required: true, Type: core.FieldText},
//	    },
//	})
//
// # Conversions
//
//   - [ParsePrice]: currency strings ("1,234원") to truncated integers
//   - [ToISO]: "YYYY-MM-DD HH:MM[:SS]" to ISO-8601 with a fixed offset
//   - [ExtractProgram]: product code to its three-segment program code
//
// # Error Handling
//
// Technical errors are mapped to coded user messages using [MapError]:
//
//   - CFG001-CFG003: configuration errors (credentials, settings file)
//   - SRC001-SRC003: source files (not found, missing columns, parse)
//   - AT001-AT005: remote store errors (options, auth, not found, limits)
//   - NET001-NET002: network errors
package core
