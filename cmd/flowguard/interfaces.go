package main

import (
	"fmt"
	"os"

	"FlowGuard/internal/capture"

	"github.com/urfave/cli"
)

func init() {
	command := cli.Command{
		Name:  "interfaces",
		Usage: "list the interfaces available for live capture",
		Action: func(c *cli.Context) error {
			ifaces, err := capture.Interfaces()
			if err != nil {
				return err
			}
			def, _ := capture.DefaultInterface()
			for _, iface := range ifaces {
				marker := " "
				if iface.Name == def {
					marker = "*"
				}
				fmt.Fprintf(os.Stdout, "%s %-16s", marker, iface.Name)
				for _, a := range iface.Addresses {
					fmt.Fprintf(os.Stdout, " %s", a.IP)
				}
				if iface.Description != "" {
					fmt.Fprintf(os.Stdout, "  (%s)", iface.Description)
				}
				fmt.Fprintln(os.Stdout)
			}
			return nil
		},
	}
	allCommands = append(allCommands, command)
}
