package cmd

import (
	"fmt"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/openhil/dutkit/pkg/serialdev"
)

var monitorBaud int

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Interactive console monitor for a device",
	Long: `Open the device console and show its output live. Typed lines are
sent to the device terminated with CR LF. Exit with Ctrl-D.`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().IntVar(&monitorBaud, "baud", serialdev.DefaultBaudRate, "console baud rate")
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	port := portHint()
	if port == "" {
		return fmt.Errorf("no port given: use --port or set DUTPORT")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	// Device output goes through the readline writer so it does not
	// mangle the prompt.
	dev, err := serialdev.Open(serialdev.Config{
		Name:     "monitor",
		Port:     port,
		BaudRate: monitorBaud,
		Tee:      rl.Stdout(),
		Logger:   newLogger(),
	})
	if err != nil {
		return err
	}
	defer dev.Close()

	fmt.Fprintf(rl.Stdout(), "monitoring %s at %d baud, Ctrl-D to exit\n", port, monitorBaud)
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return nil // EOF
		}
		if _, err := dev.Write([]byte(line + "\r\n")); err != nil {
			return fmt.Errorf("failed to write to device: %w", err)
		}
	}
}
