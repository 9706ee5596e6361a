// Package utils contains helpers shared by components and the config reader.
package utils

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// TransformAttributeMapToStruct decodes an attribute map into to, matching keys against
// json struct tags. Keys that match no field are an error.
func TransformAttributeMapToStruct(to interface{}, attributes map[string]interface{}) (interface{}, error) {
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:  "json",
		Result:   to,
		Metadata: &md,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, err
	}
	if len(md.Unused) > 0 {
		slices.Sort(md.Unused)
		return nil, errors.Errorf("unknown attributes %q", md.Unused)
	}
	return to, nil
}
