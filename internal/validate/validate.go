package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ghclone/ghclone/internal/models"
	"github.com/go-playground/validator/v10"
)

// v is shared by every caller. Custom registrations belong in init.
var v = validator.New()

func init() {
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Struct validates s using its validate tags. Failures wrap
// models.ErrValidation and list each offending field by its JSON name.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", models.ErrValidation, strings.Join(msgs, "; "))
	}
	return nil
}
