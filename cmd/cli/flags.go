package cli

import (
	"errors"
	"flag"
	"slices"
) // .import

var Flags struct {
	RunMode       string // local, azure, aws
	AppConfigPath string // if override
} // .flags

var runModes = []string{RUN_MODE_LOCAL, RUN_MODE_AZURE, RUN_MODE_AWS}

const RUN_MODE_LOCAL = "local"
const RUN_MODE_AZURE = "azure"
const RUN_MODE_AWS = "aws"

// ParseFlags read cli flags into an Flags struct which is returned
func ParseFlags() error {

	flag.StringVar(&Flags.RunMode, "env", "local", "used to set app run mode: local, azure, or aws")
	flag.StringVar(&Flags.AppConfigPath, "appconf", "", "used to load app configuration from an env file, e.g. ./configs/local/local.env")

	flag.Parse()

	if !slices.Contains(runModes, Flags.RunMode) {
		return errors.New("cli flag run mode not recognized")
	} // if

	return nil
} // .ParseFlags
