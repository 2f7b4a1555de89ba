package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"

	"github.com/openhil/dutkit/pkg/dut"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports in resolution order",
	Long: `List the host's serial ports in the order the harness would try
them: invalid console endpoints filtered out, the preferred port (from
--port or DUTPORT) promoted to the front.`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
}

func runPorts(cmd *cobra.Command, args []string) error {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	byName := make(map[string]*enumerator.PortDetails, len(details))
	names := make([]string, 0, len(details))
	for _, d := range details {
		byName[d.Name] = d
		names = append(names, d.Name)
	}

	ordered := dut.ResolvePorts(names, portHint(), runtime.GOOS)
	if len(ordered) == 0 {
		fmt.Println("no candidate serial ports")
		return nil
	}
	for i, name := range ordered {
		line := fmt.Sprintf("%d. %s", i+1, name)
		if d := byName[name]; d != nil && d.IsUSB {
			line += fmt.Sprintf("  [USB %s:%s", d.VID, d.PID)
			if d.SerialNumber != "" {
				line += " SN " + d.SerialNumber
			}
			line += "]"
		}
		fmt.Println(line)
	}
	return nil
}
