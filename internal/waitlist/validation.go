package waitlist

import (
	"strings"

	"evently-waitlist/internal/shared/errs"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		return Priority(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("entry_status", func(fl validator.FieldLevel) bool {
		return EntryStatus(fl.Field().String()).IsValid()
	})
	return v
}

// validateStruct runs struct tag validation and folds failures into one
// ValidationError naming every offending field.
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return errs.Validation("%s", err.Error())
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
	}
	return errs.Validation("%s", strings.Join(msgs, "; "))
}
