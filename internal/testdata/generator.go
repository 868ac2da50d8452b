// Package testdata builds stored session records the way each generation of the app wrote
// them, so restore can be exercised against realistic data.
package testdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/olimtoy/olimtoy/internal/store"
)

// Store keys as written on disk.
const (
	keyAccount    = "olimtoy_user"
	keyDependents = "olimtoy_children"
	keyCachedLink = "child_key"
)

var names = []string{"Aziza", "Bekzod", "Dilnoza", "Jasur", "Madina", "Otabek", "Sardor", "Zarina"}

// Fixture is one stored session.
type Fixture struct {
	AccountID    string
	DependentIDs []string
	Entries      map[string]string
}

// Seed writes every entry of fx in one batch.
func Seed(ctx context.Context, st store.Store, fx Fixture) error {
	b := store.NewBatch()
	for k, v := range fx.Entries {
		b.Set(k, v)
	}
	return st.Apply(ctx, b)
}

// LegacyGuardian is a first-generation guardian record with children dependents. The stored
// childrenCount is off by one so count reconciliation has something to fix.
func LegacyGuardian(isPro bool, children int) Fixture {
	id := uuid.NewString()
	maxChildren := 1
	if isPro {
		maxChildren = 10
	}
	acct := map[string]any{
		"id":            id,
		"name":          names[rand.Intn(len(names))],
		"phone":         "+998901234567",
		"type":          "parent",
		"isPro":         isPro,
		"childrenCount": children + 1,
		"maxChildren":   maxChildren,
	}
	if isPro {
		acct["proExpiryDate"] = time.Now().UTC().Add(20 * 24 * time.Hour).Format(time.RFC3339)
	}

	fx := Fixture{AccountID: id, Entries: map[string]string{}}
	var kids []map[string]any
	for i := 0; i < children; i++ {
		kid := uuid.NewString()
		fx.DependentIDs = append(fx.DependentIDs, kid)
		kids = append(kids, map[string]any{
			"id":        kid,
			"name":      fmt.Sprintf("Farzand-%d", i+1),
			"key":       fmt.Sprintf("KEY%03d", i),
			"addedDate": "2024-09-0" + fmt.Sprint(i%9+1),
			"parentId":  id,
		})
	}
	fx.Entries[keyAccount] = mustJSON(acct)
	fx.Entries[keyDependents] = mustJSON(kids)
	return fx
}

// CurrentGuardian is a schema version 2 guardian with children dependents and one foreign
// dependent that belongs to another account.
func CurrentGuardian(active bool, children int) Fixture {
	id := uuid.NewString()
	limit := 1
	ent := map[string]any{"active": active, "trialDays": 7}
	if active {
		limit = 10
		ent["expiresAt"] = time.Now().UTC().Add(10 * 24 * time.Hour).Format(time.RFC3339)
	}
	acct := map[string]any{
		"schemaVersion":  2,
		"id":             id,
		"name":           names[rand.Intn(len(names))],
		"contactNumber":  "+998331234567",
		"role":           "guardian",
		"createdAt":      time.Now().UTC().Add(-48 * time.Hour).Format(time.RFC3339),
		"entitlement":    ent,
		"dependentCount": children,
		"dependentLimit": limit,
	}

	fx := Fixture{AccountID: id, Entries: map[string]string{}}
	var kids []map[string]any
	for i := 0; i < children; i++ {
		kid := uuid.NewString()
		fx.DependentIDs = append(fx.DependentIDs, kid)
		kids = append(kids, map[string]any{
			"id":              kid,
			"displayName":     names[i%len(names)],
			"linkKey":         fmt.Sprintf("LNK%03d", i),
			"addedDate":       "2025-01-15",
			"parentAccountId": id,
		})
	}
	kids = append(kids, map[string]any{
		"id":              uuid.NewString(),
		"displayName":     "Stray",
		"linkKey":         "STRAY1",
		"addedDate":       "2025-01-15",
		"parentAccountId": uuid.NewString(),
	})
	fx.Entries[keyAccount] = mustJSON(acct)
	fx.Entries[keyDependents] = mustJSON(kids)
	return fx
}

// LegacyDevice is a first-generation dependent device with its cached key.
func LegacyDevice(key string) Fixture {
	id := uuid.NewString()
	acct := map[string]any{
		"id":            id,
		"name":          "Child-" + key,
		"phone":         "",
		"type":          "child",
		"isPro":         false,
		"childrenCount": 0,
		"maxChildren":   1,
	}
	return Fixture{
		AccountID: id,
		Entries: map[string]string{
			keyAccount:    mustJSON(acct),
			keyCachedLink: key,
		},
	}
}

// Corrupt is an account entry that is not JSON, next to an otherwise valid dependent list.
func Corrupt() Fixture {
	return Fixture{Entries: map[string]string{
		keyAccount:    "{not json",
		keyDependents: "[]",
		keyCachedLink: "ABC123",
	}}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
