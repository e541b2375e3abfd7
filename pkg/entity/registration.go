package entity

import (
	"encoding/json"
	"fmt"
)

// RegistrationQuery pages through the registrations collection.
const RegistrationQuery = `query Registrations($first: Int!, $skip: Int!) {
  registrations(first: $first, skip: $skip) {
    id
    domain { id }
    registrationDate
    expiryDate
    cost
    registrant { id }
    labelName
  }
}`

// Registration is the registrations collection stored in the registration table.
var Registration = &Entity{
	Name:       "registration",
	Collection: "registrations",
	Table:      "registration",
	Key:        "id",
	Query:      RegistrationQuery,
	Columns: []Column{
		{Name: "block_range", Type: BlockRange, NotNull: true},
		{Name: "id", Type: KeyText, NotNull: true},
		{Name: "domain", Type: Text, NotNull: true},
		{Name: "registration_date", Type: Numeric, NotNull: true},
		{Name: "expiry_date", Type: Numeric, NotNull: true},
		{Name: "cost", Type: Numeric},
		{Name: "registrant", Type: Text, NotNull: true},
		{Name: "label_name", Type: Text},
	},
	mapFn: mapRegistration,
}

type registrationRecord struct {
	ID               string   `json:"id"`
	Domain           *ref     `json:"domain"`
	RegistrationDate *decimal `json:"registrationDate"`
	ExpiryDate       *decimal `json:"expiryDate"`
	Cost             *decimal `json:"cost"`
	Registrant       *ref     `json:"registrant"`
	LabelName        *string  `json:"labelName"`
}

func mapRegistration(raw json.RawMessage) (Row, error) {
	var r registrationRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if r.ID == "" {
		return nil, fmt.Errorf("%w: id", ErrMissingField)
	}

	domain, err := requiredRef(r.Domain, "domain")
	if err != nil {
		return nil, err
	}

	registrant, err := requiredRef(r.Registrant, "registrant")
	if err != nil {
		return nil, err
	}

	return Row{
		OpenBlockRange,
		r.ID,
		domain,
		numericOr(r.RegistrationDate, "0"),
		numericOr(r.ExpiryDate, "0"),
		numeric(r.Cost),
		registrant,
		text(r.LabelName),
	}, nil
}

func init() {
	register(Registration)
}
