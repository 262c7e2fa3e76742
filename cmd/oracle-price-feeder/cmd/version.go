package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Version and Commit are set at build time via -ldflags.
var (
	Version = ""
	Commit  = ""

	versionFormat string
)

type versionInfo struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Go      string `json:"go" yaml:"go"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print binary version information",
	RunE:  versionCmdHandler,
}

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "text", "print the version in the given format (text|json)")
}

func versionCmdHandler(_ *cobra.Command, _ []string) error {
	info := versionInfo{
		Version: Version,
		Commit:  Commit,
		Go:      fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	}

	var bz []byte
	var err error

	switch versionFormat {
	case "json":
		bz, err = json.Marshal(info)
	default:
		bz, err = yaml.Marshal(&info)
	}
	if err != nil {
		return err
	}

	_, err = fmt.Println(string(bz))
	return err
}
