package assignment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newComposer(t *testing.T) *CrewComposer {
	t.Helper()
	c, err := NewCrewComposer(DefaultModelConfiguration())
	require.NoError(t, err)
	return c
}

func TestComposeExactMix(t *testing.T) {
	crew, err := newComposer(t).Compose(4,
		[]Paramedic{
			{ID: 11, Level: LevelJunior, Status: StatusAvailable},
			{ID: 10, Level: LevelSenior, Status: StatusAvailable},
		},
		[]Nurse{{ID: 20, Status: StatusAvailable}},
	)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 11}, crew.ParamedicIDs)
	assert.Equal(t, []string{LevelSenior, LevelJunior}, crew.ParamedicLevels)
	require.NotNil(t, crew.NurseID)
	assert.Equal(t, int64(20), *crew.NurseID)
	assert.False(t, crew.UsedFallback())
}

func TestComposeFallbackIsRecorded(t *testing.T) {
	crew, err := newComposer(t).Compose(4,
		[]Paramedic{
			{ID: 1, Level: LevelJunior, Status: StatusAvailable},
			{ID: 2, Level: LevelJunior, Status: StatusAvailable},
		},
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, crew.ParamedicIDs)
	assert.True(t, crew.UsedFallback())
	require.Len(t, crew.Substitutions, 1)
	assert.Equal(t, LevelSenior, crew.Substitutions[0].Wanted)
	assert.Equal(t, LevelJunior, crew.Substitutions[0].Got)
	assert.True(t, crew.NurseMissing())
	assert.Contains(t, describeCrew(crew), "fallback: junior #1 substituted for senior")
}

func TestComposeSeverityFiveOnlyTwoJuniors(t *testing.T) {
	_, err := newComposer(t).Compose(5,
		[]Paramedic{
			{ID: 1, Level: LevelJunior, Status: StatusAvailable},
			{ID: 2, Level: LevelJunior, Status: StatusAvailable},
		},
		[]Nurse{{ID: 3, Status: StatusAvailable}},
	)
	require.ErrorIs(t, err, ErrInsufficientPersonnel)

	var ipe *InsufficientPersonnelError
	require.True(t, errors.As(err, &ipe))
	assert.Equal(t, 3, ipe.Required)
	assert.Equal(t, 2, ipe.Assigned)
	assert.True(t, ipe.FallbackAttempted)
	assert.Equal(t, CategoryInsufficientPersonnel, Category(err))
}

func TestComposeIgnoresUnavailable(t *testing.T) {
	_, err := newComposer(t).Compose(1,
		[]Paramedic{{ID: 1, Level: LevelJunior, Status: "off_duty"}},
		nil,
	)
	require.ErrorIs(t, err, ErrInsufficientPersonnel)
}

func TestComposeMeetsMinimumForEverySeverity(t *testing.T) {
	composer := newComposer(t)
	pool := []Paramedic{
		{ID: 1, Level: LevelSenior, Status: StatusAvailable},
		{ID: 2, Level: LevelJunior, Status: StatusAvailable},
		{ID: 3, Level: LevelJunior, Status: StatusAvailable},
	}
	for sev := 1; sev <= 5; sev++ {
		rule, ok := composer.Rule(sev)
		require.True(t, ok)
		crew, err := composer.Compose(sev, pool, nil)
		if err != nil {
			require.ErrorIs(t, err, ErrInsufficientPersonnel)
			continue
		}
		assert.GreaterOrEqual(t, len(crew.ParamedicIDs), rule.MinParamedics, "severity %d", sev)
	}
}

func TestComposeNurseOnlyWhenRequired(t *testing.T) {
	crew, err := newComposer(t).Compose(2,
		[]Paramedic{{ID: 1, Level: LevelJunior, Status: StatusAvailable}},
		[]Nurse{{ID: 9, Status: StatusAvailable}},
	)
	require.NoError(t, err)
	assert.Nil(t, crew.NurseID)
	assert.False(t, crew.NurseMissing())
}

func TestComposeCustomTable(t *testing.T) {
	cfg := DefaultModelConfiguration()
	cfg.Staffing[4] = StaffingRule{Severity: 1, MinParamedics: 2, Levels: []string{LevelSenior}}
	composer, err := NewCrewComposer(cfg)
	require.NoError(t, err)

	crew, err := composer.Compose(1, []Paramedic{
		{ID: 5, Level: LevelJunior, Status: StatusAvailable},
		{ID: 6, Level: LevelSenior, Status: StatusAvailable},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 5}, crew.ParamedicIDs)
	assert.False(t, crew.UsedFallback())
}
