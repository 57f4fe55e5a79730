package assignment

import (
	"fmt"
)

// Substitution records a crew slot filled with a different level than preferred.
type Substitution struct {
	Slot        int
	Wanted      string
	Got         string
	ParamedicID int64
}

// Crew is the composed care team.
type Crew struct {
	Severity        int
	Required        int
	ParamedicIDs    []int64
	ParamedicLevels []string
	NurseID         *int64
	NurseRequired   bool
	Substitutions   []Substitution
}

// UsedFallback reports whether any slot was filled outside its preferred level.
func (c Crew) UsedFallback() bool { return len(c.Substitutions) > 0 }

// NurseMissing reports a required nurse that could not be assigned.
func (c Crew) NurseMissing() bool { return c.NurseRequired && c.NurseID == nil }

// CrewComposer applies the severity staffing table.
type CrewComposer struct {
	table map[int]StaffingRule
}

// NewCrewComposer builds a composer from the staffing rules in cfg.
func NewCrewComposer(cfg ModelConfiguration) (*CrewComposer, error) {
	table, err := cfg.StaffingTable()
	if err != nil {
		return nil, err
	}
	return &CrewComposer{table: table}, nil
}

// Rule returns the staffing rule for a severity.
func (c *CrewComposer) Rule(severity int) (StaffingRule, bool) {
	r, ok := c.table[severity]
	return r, ok
}

// Compose fills the preferred levels in order. A slot whose level has nobody left
// takes the next available paramedic of another level and the swap is recorded.
// Members keep the order in which the caller listed them.
func (c *CrewComposer) Compose(severity int, paramedics []Paramedic, nurses []Nurse) (Crew, error) {
	rule, ok := c.table[severity]
	if !ok {
		return Crew{}, validationError("assignment.compose",
			map[string]string{"severity_level": "staffing"}, fmt.Errorf("no staffing rule for severity %d", severity))
	}

	pools := map[string][]Paramedic{}
	for _, p := range paramedics {
		if p.Status != StatusAvailable {
			continue
		}
		pools[p.Level] = append(pools[p.Level], p)
	}
	take := func(level string) (Paramedic, bool) {
		pool := pools[level]
		if len(pool) == 0 {
			return Paramedic{}, false
		}
		pools[level] = pool[1:]
		return pool[0], true
	}

	crew := Crew{
		Severity:      severity,
		Required:      rule.MinParamedics,
		NurseRequired: rule.NurseRequired,
	}
	fallbackAttempted := false

	slots := rule.MinParamedics
	if len(rule.Levels) > slots {
		slots = len(rule.Levels)
	}
	for slot := 0; slot < slots; slot++ {
		wanted := ""
		if slot < len(rule.Levels) {
			wanted = rule.Levels[slot]
		}

		if wanted != "" {
			if p, ok := take(wanted); ok {
				crew.add(p)
				continue
			}
			fallbackAttempted = true
		}

		p, ok := takeAny(take, wanted)
		if !ok {
			continue
		}
		crew.add(p)
		if wanted != "" {
			crew.Substitutions = append(crew.Substitutions, Substitution{
				Slot: slot, Wanted: wanted, Got: p.Level, ParamedicID: p.ID,
			})
		}
	}

	if len(crew.ParamedicIDs) < rule.MinParamedics {
		return Crew{}, &Error{
			Op:       "assignment.compose",
			Category: CategoryInsufficientPersonnel,
			Err: &InsufficientPersonnelError{
				Severity:          severity,
				Required:          rule.MinParamedics,
				Assigned:          len(crew.ParamedicIDs),
				FallbackAttempted: fallbackAttempted,
			},
		}
	}

	if rule.NurseRequired {
		for _, n := range nurses {
			if n.Status == StatusAvailable {
				id := n.ID
				crew.NurseID = &id
				break
			}
		}
	}
	return crew, nil
}

func (c *Crew) add(p Paramedic) {
	c.ParamedicIDs = append(c.ParamedicIDs, p.ID)
	c.ParamedicLevels = append(c.ParamedicLevels, p.Level)
}

// takeAny draws from the remaining levels, seniors first, skipping the level that
// was already found empty.
func takeAny(take func(string) (Paramedic, bool), skip string) (Paramedic, bool) {
	for _, lvl := range []string{LevelSenior, LevelJunior} {
		if lvl == skip {
			continue
		}
		if p, ok := take(lvl); ok {
			return p, true
		}
	}
	return Paramedic{}, false
}
