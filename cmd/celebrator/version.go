package main

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"

	"celebrator/internal/config"

	"github.com/spf13/cobra"
)

const versionEnv = "CELEBRATOR_VERSION"

var (
	versionOnce   sync.Once
	cachedVersion string
)

// appVersion prefers CELEBRATOR_VERSION, then Go build info, then "development".
func appVersion() string {
	versionOnce.Do(func() {
		cachedVersion = detectVersion(config.DefaultEnvLookup, debug.ReadBuildInfo)
	})
	return cachedVersion
}

func detectVersion(lookup config.EnvLookup, buildInfo func() (*debug.BuildInfo, bool)) string {
	if v, ok := lookup(versionEnv); ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}

	if info, ok := buildInfo(); ok && info != nil {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				rev := setting.Value
				if len(rev) > 12 {
					rev = rev[:12]
				}
				return fmt.Sprintf("dev-%s", rev)
			}
		}
	}
	return "development"
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "celebrator %s\n", appVersion())
		},
	}
}
