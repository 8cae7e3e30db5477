/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	cmds "github.com/play-co/NativeInspector/internal/commands"
	"github.com/play-co/NativeInspector/pkg/logger"
)

func NewRootCommand(logger *logger.Logger) (*cobra.Command, error) {
	rootCmd := &cobra.Command{
		SilenceErrors: true,
		Use:           "nativeinspector",
		Short:         "Debugs and profiles JavaScript running on a device from a browser",
		Long: `Debugs and profiles JavaScript running on a device from a browser.

	The inspector serves the web front end and relays its requests to the V8 debugger
	of an application built with the --debug flag.`,
		SilenceUsage:     true,
		PersistentPreRun: cmds.LogVersion(logger.Logger, "Starting Native Inspector..."),
	}

	rootCmd.CompletionOptions.HiddenDefaultCmd = true

	logger.AddLevelFlag(rootCmd.PersistentFlags())

	var err error
	var cmd *cobra.Command

	if cmd, err = cmds.NewVersionCommand(logger.Logger); err != nil {
		return nil, fmt.Errorf("could not set up 'version' command: %w", err)
	} else {
		rootCmd.AddCommand(cmd)
	}

	rootCmd.AddCommand(NewRunCommand(logger.Logger))
	rootCmd.AddCommand(NewConnectCommand(logger.Logger))

	return rootCmd, nil
}
