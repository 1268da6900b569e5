// Copyright 2021 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config provides the typed static configuration surface of the
// unit: an enumerated schema of recognized option names with declared
// types and default values, coerced and validated as a whole.
package config

import (
	"fmt"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/juju/environschema.v1"
)

// KnownConfigKeys returns the valid config keys.
func KnownConfigKeys(schemaFields environschema.Fields) set.Strings {
	result := set.NewStrings()
	for name := range schemaFields {
		result.Add(name)
	}
	return result
}

// Config encapsulates config for an entity.
type Config struct {
	attributes map[string]interface{}
}

// NewConfig returns a new config instance with the given attributes and
// allowing for the extra provider attributes.
func NewConfig(attrs map[string]interface{}, schemaFields environschema.Fields, defaults schema.Defaults) (*Config, error) {
	cfg := &Config{}
	if err := cfg.setAttributes(attrs, schemaFields, defaults); err != nil {
		return nil, errors.Trace(err)
	}
	return cfg, nil
}

func (c *Config) setAttributes(attrs map[string]interface{}, schemaFields environschema.Fields, defaults schema.Defaults) error {
	known := KnownConfigKeys(schemaFields)
	for name, value := range attrs {
		if !known.Contains(name) {
			return errors.Errorf("unknown key %q (value %q)", name, value)
		}
	}
	checker, err := schemaChecker(schemaFields, defaults)
	if err != nil {
		return errors.Trace(err)
	}
	m := make(map[string]interface{}, len(attrs))
	for k, v := range attrs {
		m[k] = v
	}
	result, err := checker.Coerce(m, nil)
	if err != nil {
		return errors.Trace(err)
	}
	coerced := result.(map[string]interface{})
	// The schema coerces integers to int64; the rest of the operator
	// deals in plain ints.
	for k, v := range coerced {
		if i, ok := v.(int64); ok {
			coerced[k] = int(i)
		}
	}
	c.attributes = coerced
	return nil
}

func schemaChecker(schemaFields environschema.Fields, defaults schema.Defaults) (schema.Checker, error) {
	fields, schemaDefaults, err := schemaFields.ValidationSchema()
	if err != nil {
		return nil, errors.Trace(err)
	}
	for key, value := range defaults {
		schemaDefaults[key] = value
	}
	return schema.FieldMap(fields, schemaDefaults), nil
}

// ConfigAttributes is the config for an entity.
type ConfigAttributes map[string]interface{}

// Attributes returns all the config attributes.
func (c *Config) Attributes() ConfigAttributes {
	if c == nil {
		return nil
	}
	result := make(ConfigAttributes)
	for attr, val := range c.attributes {
		result[attr] = val
	}
	return result
}

// Get gets the specified attribute.
func (c ConfigAttributes) Get(attrName string, defaultValue interface{}) interface{} {
	if val, ok := c[attrName]; ok {
		return val
	}
	return defaultValue
}

// GetString gets the specified attribute as a string.
func (c ConfigAttributes) GetString(attrName string, defaultValue string) string {
	if val, ok := c[attrName]; ok {
		return val.(string)
	}
	return defaultValue
}

// GetInt gets the specified attribute as an int.
func (c ConfigAttributes) GetInt(attrName string, defaultValue int) int {
	if val, ok := c[attrName]; ok {
		if value, ok := val.(float64); ok {
			return int(value)
		}
		if value, ok := val.(int64); ok {
			return int(value)
		}
		return val.(int)
	}
	return defaultValue
}

// GetBool gets the specified attribute as a bool.
func (c ConfigAttributes) GetBool(attrName string, defaultValue bool) bool {
	if val, ok := c[attrName]; ok {
		return val.(bool)
	}
	return defaultValue
}

// GetStringMap gets the specified attribute as a string map.
func (c ConfigAttributes) GetStringMap(attrName string, defaultValue map[string]string) (map[string]string, error) {
	if valData, ok := c[attrName]; ok {
		result := make(map[string]string)
		switch val := valData.(type) {
		case map[string]string:
			for k, v := range val {
				result[k] = v
			}
		case map[string]interface{}:
			for k, v := range val {
				result[k] = fmt.Sprintf("%v", v)
			}
		default:
			return nil, errors.NotValidf("string map value of type %T", val)
		}
		return result, nil
	}
	return defaultValue, nil
}
