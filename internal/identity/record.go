package identity

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// Store keys. They are shared with installs written by the first generation of the app.
const (
	KeyAccount    = "olimtoy_user"
	KeyDependents = "olimtoy_children"
	KeyCachedLink = "child_key"
)

// SchemaVersion is written into every account record.
const SchemaVersion = 2

const addedDateLayout = "2006-01-02"

type entitlementRecord struct {
	Active    *bool      `json:"active,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	TrialDays *int       `json:"trialDays,omitempty"`
}

// accountRecord accepts both schema generations. Version 1 records used the phone/type/isPro
// field names and had no dependent limit.
type accountRecord struct {
	SchemaVersion  int                `json:"schemaVersion,omitempty"`
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	ContactNumber  string             `json:"contactNumber,omitempty"`
	Role           string             `json:"role,omitempty"`
	CreatedAt      *time.Time         `json:"createdAt,omitempty"`
	Entitlement    *entitlementRecord `json:"entitlement,omitempty"`
	DependentCount *int               `json:"dependentCount,omitempty"`
	DependentLimit *int               `json:"dependentLimit,omitempty"`

	Phone         string     `json:"phone,omitempty"`
	Type          string     `json:"type,omitempty"`
	IsPro         *bool      `json:"isPro,omitempty"`
	ChildrenCount *int       `json:"childrenCount,omitempty"`
	MaxChildren   *int       `json:"maxChildren,omitempty"`
	ProExpiryDate *time.Time `json:"proExpiryDate,omitempty"`
	ProTrialDays  *int       `json:"proTrialDays,omitempty"`
}

type dependentRecord struct {
	ID              string `json:"id"`
	DisplayName     string `json:"displayName,omitempty"`
	LinkKey         string `json:"linkKey,omitempty"`
	AddedDate       string `json:"addedDate"`
	ParentAccountID string `json:"parentAccountId,omitempty"`

	Name     string `json:"name,omitempty"`
	Key      string `json:"key,omitempty"`
	ParentID string `json:"parentId,omitempty"`
}

func encodeAccount(a Account) (string, error) {
	active := a.Entitlement.Active
	trial := a.Entitlement.TrialDays
	count := a.DependentCount
	limit := a.DependentLimit
	created := a.CreatedAt.UTC()
	rec := accountRecord{
		SchemaVersion: SchemaVersion,
		ID:            a.ID,
		Name:          a.Name,
		ContactNumber: a.ContactNumber,
		Role:          string(a.Role),
		CreatedAt:     &created,
		Entitlement: &entitlementRecord{
			Active:    &active,
			ExpiresAt: a.Entitlement.ExpiresAt,
			TrialDays: &trial,
		},
		DependentCount: &count,
		DependentLimit: &limit,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode account: %w", err)
	}
	return string(data), nil
}

func encodeDependents(deps []Dependent) (string, error) {
	recs := make([]dependentRecord, 0, len(deps))
	for _, d := range deps {
		recs = append(recs, dependentRecord{
			ID:              d.ID,
			DisplayName:     d.DisplayName,
			LinkKey:         d.LinkKey,
			AddedDate:       d.AddedDate.Format(addedDateLayout),
			ParentAccountID: d.ParentAccountID,
		})
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return "", fmt.Errorf("encode dependents: %w", err)
	}
	return string(data), nil
}

// decodeAccount parses either generation and returns a fully populated Account. now fills
// a missing creation time. stale reports that the stored record should be rewritten in the
// current schema.
func decodeAccount(raw string, now time.Time) (a Account, stale bool, err error) {
	var rec accountRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Account{}, false, fmt.Errorf("%w: account: %v", ErrStorageCorrupt, err)
	}
	if strings.TrimSpace(rec.ID) == "" {
		return Account{}, false, fmt.Errorf("%w: account has no id", ErrStorageCorrupt)
	}
	stale = rec.SchemaVersion != SchemaVersion

	a = Account{ID: rec.ID, Name: rec.Name, ContactNumber: rec.ContactNumber}
	if a.ContactNumber == "" {
		a.ContactNumber = rec.Phone
	}

	roleTag := rec.Role
	if roleTag == "" {
		roleTag = rec.Type
	}
	switch roleTag {
	case string(RoleGuardian), "parent":
		a.Role = RoleGuardian
	case string(RoleDependent), "child":
		a.Role = RoleDependent
	default:
		return Account{}, false, fmt.Errorf("%w: unknown role %q", ErrStorageCorrupt, roleTag)
	}

	if rec.CreatedAt != nil {
		a.CreatedAt = *rec.CreatedAt
	} else {
		log.Printf("identity: account %s has no createdAt, using restore time", a.ID)
		a.CreatedAt = now
		stale = true
	}

	a.Entitlement.TrialDays = DefaultTrialDays
	if e := rec.Entitlement; e != nil {
		if e.Active != nil {
			a.Entitlement.Active = *e.Active
		}
		a.Entitlement.ExpiresAt = e.ExpiresAt
		if e.TrialDays != nil {
			a.Entitlement.TrialDays = *e.TrialDays
		} else {
			stale = true
		}
	} else {
		if rec.IsPro != nil {
			a.Entitlement.Active = *rec.IsPro
		}
		a.Entitlement.ExpiresAt = rec.ProExpiryDate
		if rec.ProTrialDays != nil && *rec.ProTrialDays > 0 {
			a.Entitlement.TrialDays = *rec.ProTrialDays
		}
	}

	switch {
	case rec.DependentCount != nil:
		a.DependentCount = *rec.DependentCount
	case rec.ChildrenCount != nil:
		a.DependentCount = *rec.ChildrenCount
	}
	if a.DependentCount < 0 {
		a.DependentCount = 0
	}

	// The limit is a function of the entitlement; a stored value that disagrees (or a
	// version 1 maxChildren) is not trusted.
	a.DependentLimit = limitFor(a.Entitlement.Active)
	switch {
	case rec.DependentLimit == nil:
		stale = true
	case *rec.DependentLimit != a.DependentLimit:
		log.Printf("identity: account %s stored limit %d, normalized to %d", a.ID, *rec.DependentLimit, a.DependentLimit)
		stale = true
	}
	return a, stale, nil
}

func decodeDependents(raw string) ([]Dependent, error) {
	var recs []dependentRecord
	if err := json.Unmarshal([]byte(raw), &recs); err != nil {
		return nil, fmt.Errorf("%w: dependents: %v", ErrStorageCorrupt, err)
	}
	out := make([]Dependent, 0, len(recs))
	for i, r := range recs {
		if strings.TrimSpace(r.ID) == "" {
			return nil, fmt.Errorf("%w: dependent %d has no id", ErrStorageCorrupt, i)
		}
		d := Dependent{
			ID:              r.ID,
			DisplayName:     firstNonEmpty(r.DisplayName, r.Name),
			LinkKey:         firstNonEmpty(r.LinkKey, r.Key),
			ParentAccountID: firstNonEmpty(r.ParentAccountID, r.ParentID),
		}
		added, err := time.Parse(addedDateLayout, r.AddedDate)
		if err != nil {
			return nil, fmt.Errorf("%w: dependent %s added date: %v", ErrStorageCorrupt, r.ID, err)
		}
		d.AddedDate = added
		if d.DisplayName == "" {
			d.DisplayName = defaultDisplayName(d.LinkKey)
		}
		out = append(out, d)
	}
	return out, nil
}

func defaultDisplayName(key string) string {
	return "Farzand-" + key
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
