package cmd

import (
	"fmt"
	"io"

	"flowkeeper/cmd/root"

	"github.com/spf13/cobra"
)

var SoftwareVer = ""
var BuildTime = ""
var BuildTag = ""
var BuildCommitId = ""

func PrintVersions(w io.Writer) {
	fmt.Fprintf(w, "Version %s\n", SoftwareVer)
	fmt.Fprintf(w, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "Build Tag: %s\n", BuildTag)
	fmt.Fprintf(w, "Build Commit ID: %s\n", BuildCommitId)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `The 'version' command shows the orchestrator build, which is also reported by /healthz of the status API`,

	Run: func(cmd *cobra.Command, args []string) {
		PrintVersions(cmd.OutOrStdout())
	},
}

func init() {
	root.RootCmd.AddCommand(versionCmd)
	root.Version = SoftwareVer

	versionCmd.Example = `  flowkeeper version`
}
