package board

import (
	"fmt"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Config describes a board: which model to use and the model specific attributes.
type Config struct {
	Name       string                 `json:"name,omitempty"`
	Model      string                 `json:"model"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`

	ConvertedAttributes interface{} `json:"-"`
}

type validator interface {
	Validate(path string) error
}

// ConvertAttributes converts the raw attribute map into the model's typed config.
// It is a no-op when the attributes were already converted.
func (conf *Config) ConvertAttributes() error {
	if conf.ConvertedAttributes != nil {
		return nil
	}
	reg, ok := lookup(conf.Model)
	if !ok {
		return errors.Errorf("unknown board model %q", conf.Model)
	}
	if reg.AttributeMapConverter == nil {
		return nil
	}
	converted, err := reg.AttributeMapConverter(conf.Attributes)
	if err != nil {
		return errors.Wrapf(err, "error converting attributes of %s board", conf.Model)
	}
	conf.ConvertedAttributes = converted
	return nil
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.Model == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "model")
	}
	if _, ok := lookup(conf.Model); !ok {
		return utils.NewConfigValidationError(path, errors.Errorf("unknown board model %q", conf.Model))
	}
	if v, ok := conf.ConvertedAttributes.(validator); ok {
		return v.Validate(fmt.Sprintf("%s.%s", path, "attributes"))
	}
	return nil
}
