/*---------------------------------------------------------------------------------------------
 *  Copyright (c) Microsoft Corporation. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package commands

import (
	"fmt"
	"net"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/play-co/NativeInspector/internal/config"
	"github.com/play-co/NativeInspector/internal/discovery"
)

type connectFlags struct {
	inspectorHost string
	inspectorPort int
	deviceIP      string
}

func NewConnectCommand(log logr.Logger) *cobra.Command {
	flags := &connectFlags{}

	connectCmd := &cobra.Command{
		Use:   "connect --host device-ip [--inspector-host host] [--inspector-port port]",
		Short: "Tells a running inspector to debug the application on a device",
		Long: `Tells a running inspector to debug the application on a device.

	The device is added to the debug targets of the inspector and is selected as soon as it accepts a connection.`,
		RunE: runConnect(log, flags),
		Args: cobra.NoArgs,
	}

	connectCmd.Flags().StringVar(&flags.deviceIP, "host", "", "IP address of the device running the application.")
	connectCmd.Flags().StringVar(&flags.inspectorHost, "inspector-host", "127.0.0.1", "Host where the inspector is running.")
	connectCmd.Flags().IntVar(&flags.inspectorPort, "inspector-port", config.DefaultDiscoveryPort, "Target discovery port of the inspector.")
	_ = connectCmd.MarkFlagRequired("host")

	return connectCmd
}

func runConnect(log logr.Logger, flags *connectFlags) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		log = log.WithName("connect")

		if net.ParseIP(flags.deviceIP) == nil {
			return fmt.Errorf("'%s' is not an IP address", flags.deviceIP)
		}
		if !config.IsValidPort(flags.inspectorPort) {
			return fmt.Errorf("inspector port %d is not valid", flags.inspectorPort)
		}

		address := net.JoinHostPort(flags.inspectorHost, strconv.Itoa(flags.inspectorPort))
		if err := discovery.Send(cmd.Context(), address, flags.deviceIP); err != nil {
			log.Error(err, "Could not announce the device", "Inspector", address)
			return err
		}

		log.Info("Device announced", "Device", flags.deviceIP, "Inspector", address)
		return nil
	}
}
