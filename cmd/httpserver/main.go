package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relational-network/tee-devops-runner/attestation"
	"github.com/relational-network/tee-devops-runner/cloud"
	"github.com/relational-network/tee-devops-runner/cmd/flags"
	"github.com/relational-network/tee-devops-runner/common"
	"github.com/relational-network/tee-devops-runner/deployment"
	"github.com/relational-network/tee-devops-runner/httpserver"
	"github.com/urfave/cli/v2"
)

var serverFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8000",
		Usage: "address to listen on for API",
	},
	&cli.StringFlag{
		Name:    "region",
		Value:   "us-east-1",
		EnvVars: []string{"AWS_REGION"},
		Usage:   "cloud region to deploy into",
	},
	&cli.StringFlag{
		Name:    "resource-group",
		Value:   "relational-tee",
		EnvVars: []string{"RESOURCE_GROUP"},
		Usage:   "resource group tag applied to every created resource",
	},
	&cli.StringFlag{
		Name:    "subnet-id",
		EnvVars: []string{"SUBNET_ID"},
		Usage:   "subnet to attach VM network interfaces to",
	},
	&cli.StringFlag{
		Name:    "vpc-id",
		EnvVars: []string{"VPC_ID"},
		Usage:   "VPC to create security groups in",
	},
	&cli.StringFlag{
		Name:    "image-id",
		EnvVars: []string{"IMAGE_ID"},
		Usage:   "machine image with SGX support for new VMs",
	},
	&cli.StringFlag{
		Name:    "instance-type",
		Value:   "m5.xlarge",
		EnvVars: []string{"INSTANCE_TYPE"},
		Usage:   "instance type for new VMs",
	},
	&cli.StringFlag{
		Name:    "ssh-public-key",
		EnvVars: []string{"SSH_PUBLIC_KEY"},
		Usage:   "SSH public key installed on new VMs",
	},
	&cli.StringFlag{
		Name:    "admin-username",
		Value:   "azureuser",
		EnvVars: []string{"ADMIN_USERNAME"},
		Usage:   "admin account name recorded on new VMs",
	},
	&cli.StringFlag{
		Name:    "security-type",
		Value:   "TrustedLaunch",
		EnvVars: []string{"SECURITY_TYPE"},
		Usage:   "security profile type recorded on new VMs",
	},
	&cli.BoolFlag{
		Name:    "secure-boot",
		Value:   true,
		EnvVars: []string{"SECURE_BOOT"},
		Usage:   "record secure boot as enabled on new VMs",
	},
	&cli.BoolFlag{
		Name:    "vtpm",
		Value:   true,
		EnvVars: []string{"VTPM"},
		Usage:   "record vTPM as enabled on new VMs",
	},
	&cli.StringFlag{
		Name:    "probe-binary",
		Value:   attestation.DefaultProbeBinary,
		EnvVars: []string{"ATTEST_BINARY"},
		Usage:   "path to the attestation probe binary",
	},
	&cli.IntFlag{
		Name:  "workers",
		Value: 4,
		Usage: "number of concurrent deployment workers",
	},
	&cli.IntFlag{
		Name:  "queue-size",
		Value: 64,
		Usage: "maximum number of queued deployments",
	},
	&cli.Int64Flag{
		Name:  "readiness-timeout-seconds",
		Value: 300,
		Usage: "seconds to wait for a new VM to reach running state",
	},
	&cli.Int64Flag{
		Name:  "readiness-interval-seconds",
		Value: 10,
		Usage: "seconds between VM readiness polls",
	},
}

func main() {
	app := &cli.App{
		Name:  "tee-devops-runner",
		Usage: "Deploy confidential VMs and verify their remote attestation",
		Flags: append(serverFlags, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			listenAddr := cCtx.String("listen-addr")

			logger := flags.SetupLogger(cCtx)
			logger.Info("Starting "+common.PackageName, "version", common.Version)

			cloudCfg := cloud.Config{
				Region:        cCtx.String("region"),
				ResourceGroup: cCtx.String("resource-group"),
				SubnetID:      cCtx.String("subnet-id"),
				VPCID:         cCtx.String("vpc-id"),
				ImageID:       cCtx.String("image-id"),
				InstanceType:  cCtx.String("instance-type"),
				SSHPublicKey:  cCtx.String("ssh-public-key"),
				AdminUsername: cCtx.String("admin-username"),
				SecurityType:  cCtx.String("security-type"),
				SecureBoot:    cCtx.Bool("secure-boot"),
				VTPM:          cCtx.Bool("vtpm"),
			}

			// A broken cloud configuration must not prevent startup; the
			// error is reported on every request that needs the backend.
			backend, backendErr := cloud.NewEC2Backend(cloudCfg, logger)
			if backendErr != nil {
				logger.Error("Cloud backend initialization failed, running degraded", "err", backendErr)
			}

			orchestrator := deployment.NewOrchestrator(deployment.OrchestratorConfig{
				Backend:           backend,
				Store:             deployment.NewStore(),
				Log:               logger,
				Workers:           cCtx.Int("workers"),
				QueueSize:         cCtx.Int("queue-size"),
				SubnetID:          cloudCfg.SubnetID,
				ResourceGroup:     cloudCfg.ResourceGroup,
				Location:          cloudCfg.Region,
				VMSize:            cloudCfg.InstanceType,
				SetupScript:       cloud.SetupScript,
				ReadinessTimeout:  time.Duration(cCtx.Int64("readiness-timeout-seconds")) * time.Second,
				ReadinessInterval: time.Duration(cCtx.Int64("readiness-interval-seconds")) * time.Second,
			})
			orchestrator.Start()

			runner := attestation.NewRunner(cCtx.String("probe-binary"), logger)

			handler := httpserver.NewHandler(orchestrator, backend, backendErr, runner, logger)

			cfg := flags.ConfigureServer(cCtx, logger, listenAddr)
			server, err := httpserver.New(cfg, handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			orchestrator.Stop()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
