package internal

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/derWhity/medstock/internal/models"
	"github.com/go-playground/validator/v10"
)

// validate is shared by all services. It is safe for concurrent use and caches struct metadata
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldMessage creates a human-readable message for a failed validation rule
func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Este campo es obligatorio"
	case "datetime":
		return "Fecha inválida, use el formato AAAA-MM-DD"
	case "number":
		return "Debe ser un número entero"
	case "email":
		return "Correo electrónico inválido"
	case "max":
		return fmt.Sprintf("Máximo %s caracteres", fe.Param())
	case "min":
		return fmt.Sprintf("Mínimo %s caracteres", fe.Param())
	case "eqfield":
		return "Las contraseñas no coinciden"
	}
	return fmt.Sprintf("Valor inválido (%s)", fe.Tag())
}

// validateStruct validates a request struct and turns any failures into a validation error
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return validationError(fields)
}

// fieldTag builds the validation rules of a record field
func fieldTag(f models.FieldSpec) string {
	rules := []string{"omitempty"}
	if f.Required {
		rules[0] = "required"
	}
	if f.MaxLen > 0 {
		rules = append(rules, fmt.Sprintf("max=%d", f.MaxLen))
	}
	if f.Date {
		rules = append(rules, "datetime="+models.DateLayout)
	}
	if f.Numeric {
		rules = append(rules, "number")
	}
	return strings.Join(rules, ",")
}

// cleanFields validates the incoming values against the fields of the kind. Unknown and reserved keys are dropped,
// values are trimmed
func cleanFields(kind *models.RecordKind, in map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(kind.Fields))
	failed := map[string]string{}
	for _, f := range kind.Fields {
		val := strings.TrimSpace(in[f.Name])
		if err := validate.Var(val, fieldTag(f)); err != nil {
			errs, ok := err.(validator.ValidationErrors)
			if !ok {
				return nil, err
			}
			failed[f.Name] = fieldMessage(errs[0])
			continue
		}
		if val != "" {
			out[f.Name] = val
		}
	}
	if len(failed) > 0 {
		return nil, validationError(failed)
	}
	return out, nil
}
