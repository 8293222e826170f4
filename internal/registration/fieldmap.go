package registration

import "gatehouse/internal/registration/models"

// mappedField binds a public input key to a draft attribute. The table is
// closed: input keys outside it never reach the aggregate.
type mappedField struct {
	key   string
	apply func(d *models.DraftUser, value string)
}

var fieldTable = []mappedField{
	{key: "username", apply: func(d *models.DraftUser, v string) { d.Username = v }},
	{key: "email", apply: func(d *models.DraftUser, v string) { d.Email = v }},
	{key: "timezone", apply: func(d *models.DraftUser, v string) { d.Timezone = v }},
	{key: "location", apply: func(d *models.DraftUser, v string) { d.Profile.Location = v }},
}

// applyMapped copies the mapped subset of input onto the draft. Absent keys
// leave the corresponding attribute untouched, present-but-empty values
// overwrite it.
func (s *Service) applyMapped(input models.Input) {
	for _, f := range fieldTable {
		if v, ok := input.Get(f.key); ok {
			f.apply(s.draft, v)
		}
	}
}
