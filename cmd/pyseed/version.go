package main

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Version information - injected at build time via ldflags
var (
	Version   = "dev"
	Build     = "unknown"
	BuildTime = ""
)

// versionString is the first line of version output, also used by --version.
func versionString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "pyseed version %s", Version)
	if Build != "unknown" && Build != "" {
		fmt.Fprintf(&b, " (build: %s)", Build)
	}
	if BuildTime != "" {
		fmt.Fprintf(&b, " [%s]", BuildTime)
	}
	b.WriteString("\n")
	return b.String()
}

func printVersion(w io.Writer) {
	_, _ = fmt.Fprint(w, versionString())
	_, _ = fmt.Fprintf(w, "Go version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(w, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)

	if Version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" && len(setting.Value) > 7 {
					_, _ = fmt.Fprintf(w, "Commit: %s\n", setting.Value[:7])
					break
				}
			}
		}
	}
}

func newVersionCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Args:        usageArgs(cobra.NoArgs),
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(_ *cobra.Command, _ []string) {
			printVersion(c.stdout)
		},
	}
}
