package cli

import (
	"fmt"
	"io"

	"github.com/h1994st/rllvm-go/internal/rconfig"
)

// loadConfig reads the resolved configuration sidecar from its default
// location (RLLVM_CONFIG or $HOME/.rllvm/config.json), warning to stderr
// rather than failing on a config-parse error so a misconfigured sidecar
// never blocks a build that doesn't need it.
func loadConfig(stderr io.Writer) *rconfig.Config {
	cfg, err := rconfig.Load(rconfig.DefaultPath())
	if err != nil {
		fmt.Fprintf(stderr, "warning: %v\n", err)
		return &rconfig.Config{}
	}
	return cfg
}
