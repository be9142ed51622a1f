// Command ballotctl is a client for the ballotbox API. It signs requests with
// the configured private key and also provides offline Merkle tooling.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"github.com/vocdoni/ballotbox/api/client"
	"github.com/vocdoni/ballotbox/crypto/signatures/ethereum"
	"github.com/vocdoni/ballotbox/internal"
	"github.com/vocdoni/ballotbox/log"
)

const (
	defaultHost  = "http://127.0.0.1:9090"
	privKeyEnv   = "BALLOTCTL_PRIVKEY"
	hostEnv      = "BALLOTCTL_HOST"
	logLevelFlag = "log.level"
)

// command is a ballotctl subcommand. cli is nil for offline commands.
type command struct {
	usage   string
	offline bool
	run     func(env *cmdEnv, args []string) error
}

// cmdEnv is what commands get to work with.
type cmdEnv struct {
	cli *client.HTTPclient
	out io.Writer
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage(fs *flag.FlagSet, out io.Writer) func() {
	return func() {
		fmt.Fprintf(out, "ballotctl v%s\n\n", internal.Version)
		fmt.Fprintf(out, "Usage: ballotctl [flags] <command> [args]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(out, "\nCommands:\n")
		for _, name := range commandNames() {
			fmt.Fprintf(out, "  %-12s %s\n", name, commands[name].usage)
		}
		fmt.Fprintf(out, "\nThe private key and host can also be set with %s and %s.\n", privKeyEnv, hostEnv)
	}
}

// run parses the global flags and dispatches the command.
func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ballotctl", flag.ContinueOnError)
	host := fs.StringP("host", "H", envOr(hostEnv, defaultHost), "ballotbox API URL")
	privKey := fs.StringP("privkey", "k", os.Getenv(privKeyEnv), "hex private key used to sign requests")
	logLevel := fs.StringP(logLevelFlag, "l", log.LogLevelError, "log level (debug, info, warn, error)")
	fs.SetInterspersed(false)
	fs.SetOutput(out)
	fs.Usage = usage(fs, out)
	if err := fs.Parse(args); err != nil {
		return err
	}
	log.Init(*logLevel, "stderr", nil)

	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("missing command")
	}
	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}

	env := &cmdEnv{out: out}
	if !cmd.offline {
		cli, err := client.New(*host)
		if err != nil {
			return err
		}
		if *privKey != "" {
			signer, err := ethereum.NewSignerFromHex(*privKey)
			if err != nil {
				return fmt.Errorf("invalid private key: %w", err)
			}
			cli.SetSigner(signer)
		}
		env.cli = cli
	}
	return cmd.run(env, fs.Args()[1:])
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
