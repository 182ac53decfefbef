package utils

import (
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// AttributeMap is a loosely typed set of named attributes, as decoded from JSON config.
type AttributeMap map[string]interface{}

// Has returns whether the attribute is present.
func (am AttributeMap) Has(name string) bool {
	_, has := am[name]
	return has
}

// String returns a string attribute or def when it is absent.
func (am AttributeMap) String(name, def string) (string, error) {
	x, has := am[name]
	if !has || x == nil {
		return def, nil
	}
	s, ok := x.(string)
	if !ok {
		return "", errors.Errorf("wanted a string for (%s) but got (%v) %T", name, x, x)
	}
	return s, nil
}

// Int returns an int attribute or def when it is absent. JSON numbers arrive as float64.
func (am AttributeMap) Int(name string, def int) (int, error) {
	x, has := am[name]
	if !has {
		return def, nil
	}
	switch v := x.(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	default:
		return 0, errors.Errorf("wanted an int for (%s) but got (%v) %T", name, x, x)
	}
}

// Float64 returns a number attribute or def when it is absent.
func (am AttributeMap) Float64(name string, def float64) (float64, error) {
	x, has := am[name]
	if !has {
		return def, nil
	}
	switch v := x.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, errors.Errorf("wanted a float64 for (%s) but got (%v) %T", name, x, x)
	}
}

// Bool returns a bool attribute or def when it is absent.
func (am AttributeMap) Bool(name string, def bool) (bool, error) {
	x, has := am[name]
	if !has {
		return def, nil
	}
	v, ok := x.(bool)
	if !ok {
		return false, errors.Errorf("wanted a bool for (%s) but got (%v) %T", name, x, x)
	}
	return v, nil
}

// TransformAttributeMap decodes attributes into T using json tags. When T is a pointer type a new
// value is allocated. Unknown attributes are an error.
func TransformAttributeMap[T any](attributes AttributeMap) (T, error) {
	var out T

	var forResult interface{}
	toT := reflect.TypeOf(out)
	if toT == nil {
		// nothing to transform
		return out, nil
	}
	if toT.Kind() == reflect.Ptr {
		var ok bool
		out, ok = reflect.New(toT.Elem()).Interface().(T)
		if !ok {
			return out, errors.Errorf("failed to allocate default config type %T", out)
		}
		forResult = out
	} else {
		forResult = &out
	}

	return out, DecodeAttributeMap(attributes, forResult)
}

// DecodeAttributeMap decodes attributes over the value out points to using json tags. Fields
// without an attribute keep their current value. Unknown attributes are an error.
func DecodeAttributeMap(attributes AttributeMap, out interface{}) error {
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:  "json",
		Result:   out,
		Metadata: &md,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(map[string]interface{}(attributes)); err != nil {
		return errors.Wrap(err, "decoding attributes")
	}
	if len(md.Unused) != 0 {
		return errors.Errorf("unknown attributes %v", md.Unused)
	}
	return nil
}
