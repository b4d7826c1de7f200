package cmd

import (
	"fmt"
	"runtime"

	"github.com/gophertribe/devtool/build"
	"github.com/spf13/cobra"
)

// boards maps known target boards to their GOOS/GOARCH.
var boards = map[string][2]string{
	"nanopi":  {"linux", "arm"},
	"gnublin": {"linux", "arm"},
	"rpi64":   {"linux", "arm64"},
}

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the gnublin cli into dist/",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			goos, _ := flags.GetString("os")
			goarch, _ := flags.GetString("arch")
			version, _ := flags.GetString("version")
			targetOS, _ := flags.GetString("cross-os")
			targetArch, _ := flags.GetString("cross-arch")
			if name, _ := flags.GetString("board"); name != "" {
				target, ok := boards[name]
				if !ok {
					return fmt.Errorf("unknown board %q", name)
				}
				targetOS, targetArch = target[0], target[1]
			}

			// inside the build container, or on a host matching the requested platform
			if goos == runtime.GOOS && goarch == runtime.GOARCH {
				if targetOS != "" && targetArch != "" {
					goos, goarch = targetOS, targetArch
				}
				return build.GoBuild("dist/gnublin", "./cmd/gnublin", build.GoBuildOpts{
					Version:       version,
					InjectVersion: true,
					ConfigPackage: "github.com/mklimuk/gnublin/config",
					// karalabe/hid needs cgo for the MCP2221 adapter
					EnableCgo: true,
					Arch:      goarch,
					OS:        goos,
				})
			}

			noCache, err := flags.GetBool("no-cache")
			if err != nil {
				return fmt.Errorf("could not get no-cache flag: %w", err)
			}
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", goos, goarch),
				[]string{"build", "--version", version, "--cross-os", targetOS, "--cross-arch", targetArch},
				build.DockerBuildOpts{
					NoCache: noCache,
					Image:   "gophertribe/gobuild:1.25-bookworm",
				})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building in docker")
	cmd.Flags().String("version", "latest", "version injected into the binary")
	cmd.Flags().String("os", runtime.GOOS, "os of the build host")
	cmd.Flags().String("arch", runtime.GOARCH, "arch of the build host")
	cmd.Flags().String("cross-os", "", "os to cross-compile for")
	cmd.Flags().String("cross-arch", "", "arch to cross-compile for")
	cmd.Flags().String("board", "", "target board preset: nanopi, gnublin or rpi64")
	return cmd
}
