/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/play-co/NativeInspector/internal/version"
	"github.com/play-co/NativeInspector/pkg/logger"
)

const (
	// If set, the value of this variable will be written to the log as one of the first log messages.
	NATIVE_INSPECTOR_LOGGING_CONTEXT = "NATIVE_INSPECTOR_LOGGING_CONTEXT"
)

func NewVersionCommand(log logr.Logger) (*cobra.Command, error) {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Prints version information",
		Long:  `Prints version information.`,
		RunE:  getVersion(log),
		Args:  cobra.NoArgs,
	}

	return versionCmd, nil
}

func getVersion(log logr.Logger) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		log = log.WithName("version")

		versionStr, err := versionString()
		if err != nil {
			log.Error(err, "Could not serialize version information")
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), versionStr)
		return nil
	}
}

// LogVersion returns a cobra hook that logs the version and the invocation of the program.
func LogVersion(log logr.Logger, programStartMsg string) func(_ *cobra.Command, _ []string) {
	return func(_ *cobra.Command, _ []string) {
		versionString, err := versionString()
		if err != nil {
			versionString = fmt.Sprintf("unknown: %v", err)
		}

		launchPath, pathErr := os.Executable()
		if pathErr != nil {
			launchPath = os.Args[0]
		}

		log.V(1).Info(programStartMsg,
			"PID", os.Getpid(),
			"Exe", launchPath,
			"Args", os.Args[1:],
			"Version", versionString,
		)

		if logContext, found := os.LookupEnv(NATIVE_INSPECTOR_LOGGING_CONTEXT); found && len(logContext) > 0 {
			log.V(1).Info(logContext)
		}
	}
}

// ErrorExit reports a fatal command error and terminates the process with the given exit code.
func ErrorExit(log *logger.Logger, err error, code int) {
	fmt.Fprintln(os.Stderr, err.Error())
	log.Error(err, "Command failed")
	log.Flush()
	os.Exit(code)
}

func versionString() (string, error) {
	b, err := json.Marshal(version.Version())
	if err != nil {
		return "", err
	}
	return string(b), nil
}
