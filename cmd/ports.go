package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/niktheblak/esp32-sensor-api/internal/serialport"
)

var portsJSON bool

var portsCmd = &cobra.Command{
	Use:          "ports",
	Short:        "List serial ports present on this host",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := serialport.ListPorts()
		if err != nil {
			return fmt.Errorf("listing serial ports: %w", err)
		}
		out := cmd.OutOrStdout()
		if portsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(ports)
		}
		if len(ports) == 0 {
			fmt.Fprintln(out, "No serial ports found")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DEVICE\tUSB\tVID:PID\tSERIAL\tPRODUCT")
		for _, p := range ports {
			ids := ""
			if p.USB {
				ids = p.VID + ":" + p.PID
			}
			fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n", p.Name, p.USB, ids, p.SerialNumber, p.Product)
		}
		return w.Flush()
	},
}

func init() {
	portsCmd.Flags().BoolVar(&portsJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(portsCmd)
}
