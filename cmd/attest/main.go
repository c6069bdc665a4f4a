package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/relational-network/tee-devops-runner/attestation"
	"github.com/relational-network/tee-devops-runner/cmd/flags"
	"github.com/relational-network/tee-devops-runner/interfaces"
	"github.com/urfave/cli/v2"
)

var attestFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "host",
		Required: true,
		Usage:    "target host running the attested server",
	},
	&cli.IntFlag{
		Name:  "port",
		Value: 443,
		Usage: "target port",
	},
	&cli.StringFlag{
		Name:     "mrenclave",
		Required: true,
		Usage:    "expected MRENCLAVE measurement, hex",
	},
	&cli.StringFlag{
		Name:     "mrsigner",
		Required: true,
		Usage:    "expected MRSIGNER measurement, hex",
	},
	&cli.StringFlag{
		Name:  "isvprodid",
		Value: "0",
		Usage: "expected ISV product ID",
	},
	&cli.StringFlag{
		Name:  "isvsvn",
		Value: "0",
		Usage: "expected ISV security version number",
	},
	&cli.StringFlag{
		Name:    "probe-binary",
		Value:   attestation.DefaultProbeBinary,
		EnvVars: []string{"ATTEST_BINARY"},
		Usage:   "path to the attestation probe binary",
	},
	&cli.Int64Flag{
		Name:  "timeout-seconds",
		Value: 60,
		Usage: "per-attempt probe timeout in seconds",
	},
	&cli.IntFlag{
		Name:  "max-retries",
		Value: 3,
		Usage: "attempts before giving up on nonzero probe exits",
	},
}

// main runs a single attestation probe against a host and prints the
// verified outcome as JSON. The exit code is nonzero when verification fails.
func main() {
	app := &cli.App{
		Name:  "attest-client",
		Usage: "Run and verify a remote attestation probe against a TEE server",
		Flags: append(attestFlags, flags.LogJsonFlag, flags.LogDebugFlag, flags.LogServiceFlag),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			host := cCtx.String("host")
			port := cCtx.Int("port")

			runner := attestation.NewRunner(cCtx.String("probe-binary"), logger)
			outcome := runner.Execute(cCtx.Context, interfaces.AttestationMeasurement{
				Mrenclave: cCtx.String("mrenclave"),
				Mrsigner:  cCtx.String("mrsigner"),
				ISVProdID: cCtx.String("isvprodid"),
				ISVSVN:    cCtx.String("isvsvn"),
				Host:      host,
				Port:      port,
			}, attestation.RunOptions{
				Timeout:    time.Duration(cCtx.Int64("timeout-seconds")) * time.Second,
				MaxRetries: cCtx.Int("max-retries"),
			})

			ok, msg := attestation.VerifyOutcome(outcome, host, attestation.ExpectedSteps(host, port))
			if !ok {
				outcome.Success = false
				outcome.Error = msg
			}

			encoded, err := json.MarshalIndent(outcome, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(encoded))

			if !ok {
				return cli.Exit("attestation verification failed", 1)
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
