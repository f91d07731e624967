package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mithrel/whtreader/internal/present"
)

const defaultPager = "less -FRSX"

// outputFlag registers --output with shell completion for the given modes.
func outputFlag(cmd *cobra.Command, target *string, def string, modes ...string) {
	cmd.Flags().StringVar(target, "output", def, "output mode: "+strings.Join(modes, "|"))
	_ = cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return modes, cobra.ShellCompDirectiveNoFileComp
	})
}

// presentOptions validates the --output value against the modes the
// command accepts and fills in the terminal width.
func presentOptions(out io.Writer, outputMode string, headers bool, allowed ...string) (present.Options, error) {
	name := strings.ToLower(strings.TrimSpace(outputMode))
	mode, ok := present.ParseMode(name)
	if ok && len(allowed) > 0 {
		ok = false
		for _, a := range allowed {
			if a == name {
				ok = true
				break
			}
		}
	}
	if !ok {
		return present.Options{}, fmt.Errorf("invalid --output: %s", outputMode)
	}
	return present.Options{
		Mode:    mode,
		Headers: headers,
		Width:   terminalWidth(out),
	}, nil
}

func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return w
}

func withPager(ctx context.Context, out, errOut io.Writer, write func(io.Writer) error) error {
	outFile, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(outFile.Fd())) {
		return write(out)
	}
	pager := os.Getenv("PAGER")
	if pager == "" {
		pager = defaultPager
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", pager)
	cmd.Stdout = outFile
	if errFile, ok := errOut.(*os.File); ok {
		cmd.Stderr = errFile
	} else {
		cmd.Stderr = os.Stderr
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return write(out)
	}
	if err := cmd.Start(); err != nil {
		return write(out)
	}
	writeErr := write(stdin)
	_ = stdin.Close()
	waitErr := cmd.Wait()
	if writeErr != nil {
		return writeErr
	}
	return waitErr
}
