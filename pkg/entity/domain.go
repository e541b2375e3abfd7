package entity

import (
	"encoding/json"
	"fmt"
)

// DomainQuery pages through the domains collection.
const DomainQuery = `query Domains($first: Int!, $skip: Int!) {
  domains(first: $first, skip: $skip) {
    id
    name
    labelName
    labelhash
    parent { id }
    subdomains { id }
    resolvedAddress { id }
    resolver { id }
    ttl
    isMigrated
    createdAt
    owner { id }
  }
}`

// Domain is the domains collection stored in the domain table.
var Domain = &Entity{
	Name:       "domain",
	Collection: "domains",
	Table:      "domain",
	Key:        "id",
	Query:      DomainQuery,
	Columns: []Column{
		{Name: "block_range", Type: BlockRange, NotNull: true},
		{Name: "id", Type: KeyText, NotNull: true},
		{Name: "name", Type: Text},
		{Name: "label_name", Type: Text},
		{Name: "labelhash", Type: Bytes},
		{Name: "parent", Type: Text},
		{Name: "subdomain_count", Type: Int, NotNull: true},
		{Name: "resolved_address", Type: Text},
		{Name: "resolver", Type: Text},
		{Name: "ttl", Type: Numeric},
		{Name: "is_migrated", Type: Bool, NotNull: true},
		{Name: "created_at", Type: Numeric, NotNull: true},
		{Name: "owner", Type: Text, NotNull: true},
		{Name: "registrant", Type: Text},
		{Name: "wrapped_owner", Type: Text},
		{Name: "expiry_date", Type: Numeric},
	},
	mapFn: mapDomain,
}

type domainRecord struct {
	ID              string   `json:"id"`
	Name            *string  `json:"name"`
	LabelName       *string  `json:"labelName"`
	Labelhash       *string  `json:"labelhash"`
	Parent          *ref     `json:"parent"`
	Subdomains      []ref    `json:"subdomains"`
	ResolvedAddress *ref     `json:"resolvedAddress"`
	Resolver        *ref     `json:"resolver"`
	TTL             *decimal `json:"ttl"`
	IsMigrated      *bool    `json:"isMigrated"`
	CreatedAt       *decimal `json:"createdAt"`
	Owner           *ref     `json:"owner"`
	Registrant      *ref     `json:"registrant"`
	WrappedOwner    *ref     `json:"wrappedOwner"`
	ExpiryDate      *decimal `json:"expiryDate"`
}

func mapDomain(raw json.RawMessage) (Row, error) {
	var d domainRecord
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if d.ID == "" {
		return nil, fmt.Errorf("%w: id", ErrMissingField)
	}

	owner, err := requiredRef(d.Owner, "owner")
	if err != nil {
		return nil, err
	}

	labelhash, err := hexBytes(d.Labelhash, "labelhash")
	if err != nil {
		return nil, err
	}

	isMigrated := false
	if d.IsMigrated != nil {
		isMigrated = *d.IsMigrated
	}

	return Row{
		OpenBlockRange,
		d.ID,
		text(d.Name),
		text(d.LabelName),
		labelhash,
		refID(d.Parent),
		int32(len(d.Subdomains)),
		refID(d.ResolvedAddress),
		refID(d.Resolver),
		numeric(d.TTL),
		isMigrated,
		numericOr(d.CreatedAt, "0"),
		owner,
		refID(d.Registrant),
		refID(d.WrappedOwner),
		numeric(d.ExpiryDate),
	}, nil
}

func init() {
	register(Domain)
}
