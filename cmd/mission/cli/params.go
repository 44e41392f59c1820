// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// FlagsFromParams builds the flag set for command name from its params
// struct. A malformed params struct is a bug in the command tree, so
// this panics rather than returning an error; commands_test walks the
// whole tree to catch it before release.
func FlagsFromParams(name string, params any) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	if err := BindFlags(params, flagSet); err != nil {
		panic(fmt.Sprintf("cli.FlagsFromParams(%q): %v", name, err))
	}
	return flagSet
}

// BindFlags registers a flag on flagSet for every field of *params that
// carries a flag tag:
//
//	type listParams struct {
//		app.Params
//		cli.JSONOutput
//		Status string `flag:"status,s" desc:"all, active, pending, ..." default:"all"`
//	}
//
// The flag tag is the long name with an optional one-letter shorthand.
// desc is the help text and default is parsed with the field's type.
// Embedded structs contribute their own tagged fields, which is how
// --config, --api-url and --json reach every command that needs them.
//
// Field types: string, bool, int, int64, float64, time.Duration and
// []string (comma-separated default).
func BindFlags(params any, flagSet *pflag.FlagSet) error {
	value := reflect.ValueOf(params)
	if value.Kind() != reflect.Pointer || value.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("params must be a pointer to a struct, got %T", params)
	}
	return bindStruct(value.Elem(), flagSet)
}

func bindStruct(structValue reflect.Value, flagSet *pflag.FlagSet) error {
	for _, field := range reflect.VisibleFields(structValue.Type()) {
		if len(field.Index) != 1 {
			// Promoted fields are reached through their embedding struct.
			continue
		}
		fieldValue := structValue.FieldByIndex(field.Index)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if err := bindStruct(fieldValue, flagSet); err != nil {
				return fmt.Errorf("embedded %s: %w", field.Name, err)
			}
			continue
		}

		tag, ok := field.Tag.Lookup("flag")
		if !ok || tag == "" {
			continue
		}
		spec := flagSpec{description: field.Tag.Get("desc"), fallback: field.Tag.Get("default")}
		spec.name, spec.shorthand, _ = strings.Cut(tag, ",")
		if !fieldValue.CanAddr() {
			return fmt.Errorf("field %s: not addressable", field.Name)
		}
		if err := spec.bind(flagSet, fieldValue.Addr().Interface()); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}
	return nil
}

type flagSpec struct {
	name, shorthand string
	description     string
	fallback        string
}

func (f flagSpec) bind(flagSet *pflag.FlagSet, target any) error {
	var err error
	switch target := target.(type) {
	case *string:
		flagSet.StringVarP(target, f.name, f.shorthand, f.fallback, f.description)
	case *[]string:
		var fallback []string
		if f.fallback != "" {
			fallback = strings.Split(f.fallback, ",")
		}
		flagSet.StringSliceVarP(target, f.name, f.shorthand, fallback, f.description)
	case *bool:
		var fallback bool
		if fallback, err = parseDefault(f.fallback, strconv.ParseBool); err == nil {
			flagSet.BoolVarP(target, f.name, f.shorthand, fallback, f.description)
		}
	case *int:
		var fallback int
		if fallback, err = parseDefault(f.fallback, strconv.Atoi); err == nil {
			flagSet.IntVarP(target, f.name, f.shorthand, fallback, f.description)
		}
	case *int64:
		var fallback int64
		if fallback, err = parseDefault(f.fallback, parseInt64); err == nil {
			flagSet.Int64VarP(target, f.name, f.shorthand, fallback, f.description)
		}
	case *float64:
		var fallback float64
		if fallback, err = parseDefault(f.fallback, parseFloat64); err == nil {
			flagSet.Float64VarP(target, f.name, f.shorthand, fallback, f.description)
		}
	case *time.Duration:
		var fallback time.Duration
		if fallback, err = parseDefault(f.fallback, time.ParseDuration); err == nil {
			flagSet.DurationVarP(target, f.name, f.shorthand, fallback, f.description)
		}
	default:
		return fmt.Errorf("unsupported type %T for flag --%s", target, f.name)
	}
	if err != nil {
		return fmt.Errorf("default for --%s: %w", f.name, err)
	}
	return nil
}

func parseInt64(s string) (int64, error)     { return strconv.ParseInt(s, 10, 64) }
func parseFloat64(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// parseDefault maps an absent default to the zero value.
func parseDefault[T any](s string, parse func(string) (T, error)) (T, error) {
	if s == "" {
		var zero T
		return zero, nil
	}
	return parse(s)
}
