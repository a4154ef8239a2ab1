package config

import (
	"fmt"
	"io/ioutil"
	"sort"

	"github.com/hashicorp/hcl"
)

type Value interface {
	Set(string) error
	SetValue(interface{}) error
	String() string
}

type setBy int

const (
	byDefault setBy = iota
	byConfig
	byFlag
)

func (by setBy) String() string {
	switch by {
	case byConfig:
		return "config"
	case byFlag:
		return "flag"
	}
	return "default"
}

type variable struct {
	name     string
	val      Value
	by       setBy
	noConfig bool
	hidden   bool
}

// Config is a registry of named configuration variables settable from an
// hcl config file or command line flags; flags win over the config file,
// the config file wins over defaults.
type Config struct {
	vars map[string]*variable
}

func NewConfig() *Config {
	return &Config{
		vars: map[string]*variable{},
	}
}

type Var struct {
	v *variable
}

// Hide excludes the variable from List; used for feature flags surfaced
// elsewhere.
func (v *Var) Hide() *Var {
	v.v.hidden = true
	return v
}

// NoConfig prevents the variable from being set in a config file.
func (v *Var) NoConfig() *Var {
	v.v.noConfig = true
	return v
}

func (c *Config) addVar(val Value, name string) *Var {
	if _, ok := c.vars[name]; ok {
		panic(fmt.Sprintf("config: variable redefined: %s", name))
	}
	v := &variable{
		name: name,
		val:  val,
	}
	c.vars[name] = v
	return &Var{v}
}

// Var registers a variable by pointer; the pointed-to value is the
// default.
func (c *Config) Var(p interface{}, name string) *Var {
	switch p := p.(type) {
	case *bool:
		return c.addVar((*boolValue)(p), name)
	case *int:
		return c.addVar((*intValue)(p), name)
	case *int64:
		return c.addVar((*int64Value)(p), name)
	case *uint64:
		return c.addVar((*uint64Value)(p), name)
	case *float64:
		return c.addVar((*float64Value)(p), name)
	case *string:
		return c.addVar((*stringValue)(p), name)
	}
	panic(fmt.Sprintf("config: unsupported variable type for %s: %T", name, p))
}

// Set sets a variable from a command line flag.
func (c *Config) Set(name, val string) error {
	v, ok := c.vars[name]
	if !ok {
		return fmt.Errorf("config: %s is not a config variable", name)
	}
	err := v.val.Set(val)
	if err != nil {
		return fmt.Errorf("config: %s: %s", name, err)
	}
	v.by = byFlag
	return nil
}

func (c *Config) load(b []byte) error {
	var cfg map[string]interface{}

	err := hcl.Decode(&cfg, string(b))
	if err != nil {
		return err
	}
	for name, val := range cfg {
		v, ok := c.vars[name]
		if !ok {
			return fmt.Errorf("config: %s is not a config variable", name)
		}
		if v.noConfig {
			return fmt.Errorf("config: %s can't be set in a config file", name)
		}

		if v.by == byDefault {
			err := v.val.SetValue(val)
			if err != nil {
				return fmt.Errorf("config: %s: %s", v.name, err)
			}
			v.by = byConfig
		}
	}

	return nil
}

// LoadFile applies a hcl config file; variables already set by flags keep
// their flag values.
func (c *Config) LoadFile(filename string) error {
	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return err
	}
	return c.load(b)
}

// List visits all visible variables in name order.
func (c *Config) List(fn func(name, val, by string)) {
	names := make([]string, 0, len(c.vars))
	for name, v := range c.vars {
		if !v.hidden {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		v := c.vars[name]
		fn(name, v.val.String(), v.by.String())
	}
}
