/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package logger

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

// StringToLevel parses a verbosity given by name (debug, info, warn, error) or as a positive
// debug verbosity number (1 is the same as debug, larger numbers are more verbose).
// The default level is returned together with the error when the value cannot be parsed.
func StringToLevel(value string, defaultLevel zapcore.Level) (zapcore.Level, error) {
	value = strings.TrimSpace(value)

	switch strings.ToLower(value) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}

	verbosity, err := strconv.Atoi(value)
	if err != nil || verbosity <= 0 || verbosity > math.MaxInt8 {
		return defaultLevel, fmt.Errorf("invalid log level '%s'", value)
	}

	// zap levels grow more verbose as they decrease
	return zapcore.Level(int8(-verbosity)), nil
}

type LevelFlagValue struct {
	// Called with the level parsed from the command line.
	onLevelAvailable func(zapcore.Level)
	value            string
}

func NewLevelFlagValue(onLevelAvailable func(zapcore.Level)) LevelFlagValue {
	return LevelFlagValue{onLevelAvailable: onLevelAvailable}
}

func (lfv *LevelFlagValue) Set(flagValue string) error {
	level, err := StringToLevel(flagValue, zapcore.InfoLevel)
	if err != nil {
		return err
	}
	lfv.onLevelAvailable(level)
	lfv.value = flagValue
	return nil
}

func (lfv *LevelFlagValue) String() string {
	return lfv.value
}

func (*LevelFlagValue) Type() string {
	return "level"
}

var _ pflag.Value = &LevelFlagValue{}
