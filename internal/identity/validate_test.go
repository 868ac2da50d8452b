package identity

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olimtoy/olimtoy/internal/capability"
)

func TestValidateContactNumber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantMsg string
	}{
		{name: "plain", input: "+998901234567", want: "+998901234567"},
		{name: "formatted", input: " +998 (33) 123-45-67 ", want: "+998331234567"},
		{name: "every operator", input: "+998771234567", want: "+998771234567"},
		{name: "empty", input: "   ", wantMsg: "contact number is required"},
		{name: "missing prefix", input: "998901234567", wantMsg: "contact number must start with +998"},
		{name: "wrong country", input: "+79011234567", wantMsg: "contact number must start with +998"},
		{name: "too short", input: "+99890123456", wantMsg: "contact number must have exactly 9 digits after +998, got 8"},
		{name: "too long", input: "+9989012345678", wantMsg: "contact number must have exactly 9 digits after +998, got 10"},
		{name: "unknown operator", input: "+998111234567", wantMsg: "unknown operator code 11, expected one of 91, 90, 87, 88, 97, 33, 77"},
		{name: "inner plus dropped", input: "+998+901234567", want: "+998901234567"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ValidateContactNumber(tt.input)
			if tt.wantMsg == "" {
				require.NoError(t, err)
				require.Equal(t, tt.want, got)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, "contactNumber", verr.Field)
			require.Equal(t, tt.wantMsg, verr.Message)
		})
	}
}

func TestValidateProfile(t *testing.T) {
	t.Parallel()

	name, contact, err := ValidateProfile("  Aziza ", "+998901234567")
	require.NoError(t, err)
	require.Equal(t, "Aziza", name)
	require.Equal(t, "+998901234567", contact)

	_, _, err = ValidateProfile(" ", "+998901234567")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "name", verr.Field)
}

func TestNormalizeLinkKey(t *testing.T) {
	t.Parallel()

	key, err := NormalizeLinkKey(" ab12cd ")
	require.NoError(t, err)
	require.Equal(t, "AB12CD", key)

	for _, bad := range []string{"", "ABC12", "ABC1234", "AB-12C", "ÄB12CD"} {
		_, err := NormalizeLinkKey(bad)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), bad)
		require.Equal(t, "linkKey", verr.Field)
	}
}

func TestGenerateLinkKey(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		key, err := GenerateLinkKey()
		require.NoError(t, err)
		require.Len(t, key, LinkKeyLength)
		got, err := NormalizeLinkKey(key)
		require.NoError(t, err)
		require.Equal(t, key, got)
		seen[key] = true
	}
	require.Greater(t, len(seen), 1)
}

func TestEntitlementDaysLeft(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := now.Add(EntitlementPeriod)
	e := Entitlement{Active: true, ExpiresAt: &exp}
	require.Equal(t, 30, e.DaysLeft(now))
	require.Equal(t, 1, e.DaysLeft(exp.Add(-time.Minute)))
	require.Equal(t, 0, e.DaysLeft(exp))
	require.False(t, e.Expired(now))
	require.True(t, e.Expired(exp))

	require.Equal(t, 0, Entitlement{}.DaysLeft(now))
	require.False(t, Entitlement{}.Expired(now))
}

func TestAccountPredicates(t *testing.T) {
	t.Parallel()

	free := Account{Role: RoleGuardian, DependentLimit: FreeDependentLimit}
	require.True(t, free.CanAddMoreDependents())
	require.False(t, free.NeedsUpgradeForMoreDependents())

	free.DependentCount = 1
	require.False(t, free.CanAddMoreDependents())
	require.True(t, free.NeedsUpgradeForMoreDependents())

	pro := Account{Role: RoleGuardian, DependentCount: 1, DependentLimit: EntitledDependentLimit, Entitlement: Entitlement{Active: true}}
	require.True(t, pro.CanAddMoreDependents())
	require.False(t, pro.NeedsUpgradeForMoreDependents())
}

func TestAccountCanUse(t *testing.T) {
	t.Parallel()

	free := Account{Role: RoleGuardian, DependentLimit: FreeDependentLimit}
	require.ErrorIs(t, free.CanUse(capability.Microphone), ErrEntitlementRequired)
	for _, k := range []capability.Kind{capability.Camera, capability.Location, capability.Battery, capability.Device} {
		require.NoError(t, free.CanUse(k), k.String())
	}

	pro := Account{Role: RoleGuardian, DependentLimit: EntitledDependentLimit, Entitlement: Entitlement{Active: true}}
	for _, k := range capability.All() {
		require.NoError(t, pro.CanUse(k), k.String())
	}
}
