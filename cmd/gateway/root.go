// cmd/gateway/root.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/registers"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gateway",
		Short: "Modbus RTU to MQTT telemetry gateway",
		Long: `gateway polls a fixed register catalog from a boiler controller over
Modbus RTU and publishes one telemetry document per cycle over MQTT.

An "upgrade" command on <topic>/<device_id>/action/upgrade makes it check the
update server and, if a newer image is advertised, install it and restart.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd(), newPortsCmd(), newCatalogCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		cfgPath string
		envPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfgPath, envPath)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "/etc/gateway/gateway.yaml", "YAML config file")
	cmd.Flags().StringVar(&envPath, "env", ".env", "dotenv file with overrides (ignored if missing)")
	return cmd
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()

			details, err := enumerator.GetDetailedPortsList()
			if err == nil {
				if len(details) == 0 {
					fmt.Fprintln(out, "no serial ports found")
				}
				for _, p := range details {
					if p.IsUSB {
						fmt.Fprintf(out, "%s\tusb %s:%s %s\n", p.Name, p.VID, p.PID, p.SerialNumber)
					} else {
						fmt.Fprintln(out, p.Name)
					}
				}
				return nil
			}

			names, err := serial.GetPortsList()
			if err != nil {
				return fmt.Errorf("list ports: %w", err)
			}
			for _, n := range names {
				fmt.Fprintln(out, n)
			}
			return nil
		},
	}
}

func newCatalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the compiled register catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, d := range registers.Catalog() {
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", d.Address, d.Source, d.Kind, d.Name)
				if d.Kind == registers.Bitfield16 {
					for i, b := range d.Bits {
						fmt.Fprintf(out, "\tbit %2d\t%s\n", i, b)
					}
				}
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the image version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
