package device

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"

	"flowkeeper/internal/workflow"
)

/**
 * Parse the declared options of a device from its command line
 * @param {workflow.DeviceSpec} spec - Device whose options are declared
 * @param {[]string} args - Command line without the executable
 * @returns {map[string]any} Option values by name, defaults for options not given
 * @returns {error} Error if a value can't be converted to the declared type
 * @description
 * - Only options declared by the stage are parsed, other flags are ignored
 * - Values keep the declared type: int, float64, string or bool
 */
func ParseOptions(spec workflow.DeviceSpec, args []string) (map[string]any, error) {
	fs := pflag.NewFlagSet(spec.ID, pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}

	raw := make(map[string]*string, len(spec.Options))
	for _, opt := range spec.Options {
		if fs.Lookup(opt.Name) != nil {
			continue
		}
		// 全部按字符串注册，布尔选项也需要 "--name false" 这种写法
		raw[opt.Name] = fs.String(opt.Name, formatDefault(opt.Default), opt.Help)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	values := make(map[string]any, len(spec.Options))
	for _, opt := range spec.Options {
		v, err := convert(opt.Type, *raw[opt.Name])
		if err != nil {
			return nil, fmt.Errorf("option %s: %w", opt.Name, err)
		}
		values[opt.Name] = v
	}
	return values, nil
}

func formatDefault(v any) string {
	switch value := v.(type) {
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(value), 'g', -1, 32)
	default:
		return fmt.Sprint(value)
	}
}

func convert(t workflow.OptionType, s string) (any, error) {
	switch t {
	case workflow.OptionInt:
		return strconv.Atoi(s)
	case workflow.OptionFloat:
		return strconv.ParseFloat(s, 64)
	case workflow.OptionBool:
		return strconv.ParseBool(s)
	case workflow.OptionString:
		return s, nil
	default:
		return nil, fmt.Errorf("unknown option type %s", t)
	}
}
