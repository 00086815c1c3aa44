package v1alpha1

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/l7mp/fixpoint/pkg/relation"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the structure of the program: required fields and allowed types and joins.
// Semantic checks are done by the compiler.
func (p *Program) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return relation.NewConfigurationError("invalid program: %s", err.Error())
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Namespace() + ": failed on " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return relation.NewConfigurationError("invalid program: %s", strings.Join(msgs, "; "))
}
