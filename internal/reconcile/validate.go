package reconcile

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/pavelanni/kwizkit/internal/model"
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

type studentIdentity struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"omitempty,min=6"`
}

// Validate rejects a malformed draft before anything touches the store.
func Validate(d model.Draft) error {
	var flds []model.FieldError
	add := func(field, format string, args ...any) {
		flds = append(flds, model.FieldError{Field: field, Error: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(d.Name) == "" {
		add("name", "name is a required field")
	}

	cols := make(map[string]model.Column, len(d.Columns))
	for i, c := range d.Columns {
		field := fmt.Sprintf("columns[%d]", i)
		switch {
		case c.ID == "":
			add(field+".id", "id is a required field")
		case model.IsReservedColumnID(c.ID):
			add(field+".id", "column id %s is reserved", c.ID)
		case cols[c.ID].ID != "":
			add(field+".id", "duplicate column id %s", c.ID)
		}
		if strings.TrimSpace(c.Name) == "" {
			add(field+".name", "name is a required field")
		}
		if !c.Type.Valid() {
			add(field+".type", "unknown column type %q", c.Type)
		}
		cols[c.ID] = c
	}

	ids := make(map[string]bool, len(d.Rows))
	emails := make(map[string]bool, len(d.Rows))
	for i, r := range d.Rows {
		field := fmt.Sprintf("students[%d]", i)
		switch {
		case r.ID == "":
			add(field+".id", "id is a required field")
		case ids[r.ID]:
			add(field+".id", "duplicate row id %s", r.ID)
		}
		ids[r.ID] = true

		err := model.ValidateStruct(studentIdentity{
			FirstName: r.FirstName, LastName: r.LastName, Email: r.Email, Password: r.Password,
		})
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			for _, f := range ve.Fields {
				add(field+"."+f.Field, "%s", f.Error)
			}
		} else if err != nil {
			return err
		}
		if len(r.Password) > maxPasswordBytes {
			add(field+".password", "password must be at most %d bytes", maxPasswordBytes)
		}

		key := strings.ToLower(r.Email)
		if key != "" && emails[key] {
			add(field+".email", "duplicate email %s", r.Email)
		}
		emails[key] = true

		for _, colID := range slices.Sorted(maps.Keys(r.Data)) {
			v := r.Data[colID]
			c, ok := cols[colID]
			if !ok {
				add(field+"."+colID, "unknown column %s", colID)
				continue
			}
			if err := model.CheckValue(c.Type, v); err != nil {
				add(field+"."+colID, "%v", err)
			}
		}
	}

	if len(flds) > 0 {
		return model.NewValidationError(flds...)
	}
	return nil
}
