package deployment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relational-network/tee-devops-runner/interfaces"
	"github.com/relational-network/tee-devops-runner/metrics"
)

// PartialSuccessError is the fixed error string recorded when infrastructure
// provisioning succeeded but the setup script reported failure.
const PartialSuccessError = "VM deployed successfully but setup script failed"

// DefaultNamePrefix is used when a submission carries no VM name prefix.
const DefaultNamePrefix = "relational-tee"

// OrchestratorConfig configures the deployment orchestrator.
type OrchestratorConfig struct {
	Backend interfaces.CloudBackend
	Store   *Store
	Log     *slog.Logger

	// Workers bounds the number of concurrently executing deployments.
	Workers int

	// QueueSize bounds the number of accepted-but-not-started deployments.
	QueueSize int

	// SubnetID is the network subnet new interfaces are attached to.
	SubnetID string

	// ResourceGroup, Location and VMSize are recorded on deployment details.
	ResourceGroup string
	Location      string
	VMSize        string

	// SetupScript is the payload run on the VM after it is ready.
	SetupScript []byte

	// ReadinessTimeout and ReadinessInterval bound the wait for the VM to
	// reach a provisioned, running state.
	ReadinessTimeout  time.Duration
	ReadinessInterval time.Duration
}

func (cfg *OrchestratorConfig) applyDefaults() {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.ReadinessTimeout <= 0 {
		cfg.ReadinessTimeout = 5 * time.Minute
	}
	if cfg.ReadinessInterval <= 0 {
		cfg.ReadinessInterval = 10 * time.Second
	}
}

// Orchestrator accepts deployment submissions and executes their pipelines on
// a bounded worker pool, recording progress in the state store.
type Orchestrator struct {
	cfg     OrchestratorConfig
	store   *Store
	backend interfaces.CloudBackend
	log     *slog.Logger

	tasks  chan string // request IDs
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator. Call Start to launch its workers.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	cfg.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:     cfg,
		store:   cfg.Store,
		backend: cfg.Backend,
		log:     cfg.Log,
		tasks:   make(chan string, cfg.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the worker pool.
func (o *Orchestrator) Start() {
	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker()
	}
}

// Stop cancels in-flight pipelines and waits for the workers to exit.
func (o *Orchestrator) Stop() {
	o.cancel()
	o.wg.Wait()
}

// Submit registers a new deployment and schedules its pipeline for
// asynchronous execution. It returns the pending record immediately; progress
// is observed through GetStatus. The VM name is the sanitized prefix joined
// with the request ID, which makes it globally unique.
func (o *Orchestrator) Submit(namePrefix string) (interfaces.DeploymentRecord, error) {
	prefix := strings.ReplaceAll(strings.TrimSpace(namePrefix), " ", "-")
	if prefix == "" {
		prefix = DefaultNamePrefix
	}

	requestID := uuid.NewString()[:8]
	rec := interfaces.DeploymentRecord{
		RequestID: requestID,
		VMName:    fmt.Sprintf("%s-%s", prefix, requestID),
		Status:    interfaces.StatusPending,
		CreatedAt: time.Now(),
	}
	o.store.Put(rec)

	select {
	case o.tasks <- requestID:
	default:
		o.fail(requestID, interfaces.ErrQueueFull)
		return interfaces.DeploymentRecord{}, interfaces.ErrQueueFull
	}

	metrics.IncDeploymentSubmitted()
	o.log.Info("Deployment accepted", "requestID", requestID, "vm", rec.VMName)
	return rec, nil
}

// GetStatus returns the current record for the given request ID.
func (o *Orchestrator) GetStatus(requestID string) (interfaces.DeploymentRecord, error) {
	return o.store.Get(requestID)
}

func (o *Orchestrator) worker() {
	defer o.wg.Done()
	for {
		select {
		case <-o.ctx.Done():
			return
		case requestID := <-o.tasks:
			o.deploy(o.ctx, requestID)
		}
	}
}

// deploy runs the full pipeline for one deployment. Infrastructure failures
// leave already-created resources in place; there is no automatic rollback.
func (o *Orchestrator) deploy(ctx context.Context, requestID string) {
	rec, err := o.store.Get(requestID)
	if err != nil {
		o.log.Error("Deployment task for unknown request", "requestID", requestID)
		return
	}

	vmName := rec.VMName
	log := o.log.With("requestID", requestID, "vm", vmName)
	log.Info("Starting deployment pipeline")

	if err := o.store.Update(requestID, func(r *interfaces.DeploymentRecord) {
		r.Status = interfaces.StatusProvisioning
	}); err != nil {
		log.Error("Failed to mark deployment provisioning", "err", err)
		return
	}

	details := interfaces.ProvisioningDetails{
		ResourceGroup: o.cfg.ResourceGroup,
		Location:      o.cfg.Location,
		VMSize:        o.cfg.VMSize,
	}

	var securityGroupID, nicID string
	infraSteps := []Step{
		{
			Name: "create_security_group",
			Run: func(ctx context.Context) (string, error) {
				log.Info("Creating security group", "name", vmName+"-nsg")
				id, err := o.backend.CreateSecurityGroup(ctx, vmName+"-nsg")
				securityGroupID = id
				return id, err
			},
		},
		{
			Name: "create_network_interface",
			Run: func(ctx context.Context) (string, error) {
				log.Info("Creating network interface", "name", vmName+"-nic")
				id, err := o.backend.CreateNetworkInterface(ctx, vmName+"-nic", o.cfg.SubnetID, securityGroupID)
				nicID = id
				return id, err
			},
		},
		{
			Name: "create_vm",
			Run: func(ctx context.Context) (string, error) {
				log.Info("Creating VM")
				id, err := o.backend.CreateVM(ctx, vmName, nicID)
				if err != nil {
					return "", err
				}
				err = o.store.Update(requestID, func(r *interfaces.DeploymentRecord) {
					r.Status = interfaces.StatusVMProvisioned
					r.Details = details
				})
				return id, err
			},
		},
		{
			Name: "wait_until_ready",
			Run: func(ctx context.Context) (string, error) {
				log.Info("Waiting for VM to be ready")
				poller := Poller{Timeout: o.cfg.ReadinessTimeout, Interval: o.cfg.ReadinessInterval, Log: log}
				ready := poller.WaitUntil(ctx, func(ctx context.Context) (bool, error) {
					status, err := o.backend.GetInstanceStatus(ctx, vmName)
					if err != nil {
						return false, err
					}
					return status.Ready(), nil
				})
				if !ready {
					return "", fmt.Errorf("VM %s failed to reach running state within %s", vmName, o.cfg.ReadinessTimeout)
				}
				return "ready", nil
			},
		},
	}

	if _, failure := runSteps(ctx, infraSteps); failure != nil {
		log.Error("Deployment failed", "step", failure.Step, "err", failure.Err)
		o.fail(requestID, failure)
		return
	}

	if err := o.store.Update(requestID, func(r *interfaces.DeploymentRecord) {
		r.Status = interfaces.StatusConfiguring
		r.Details = interfaces.ConfiguringDetails{ProvisioningDetails: details}
	}); err != nil {
		log.Error("Failed to mark deployment configuring", "err", err)
		return
	}

	log.Info("Running setup script on VM")
	scriptResult, err := o.backend.RunRemoteScript(ctx, vmName, o.cfg.SetupScript)
	if err != nil {
		log.Error("Deployment failed", "step", "run_remote_setup", "err", err)
		o.fail(requestID, &StepFailure{Step: "run_remote_setup", Err: err})
		return
	}

	// The address is fetched right after script completion and may still be
	// unallocated; an empty address on success is legitimate.
	publicAddress, err := o.backend.GetPublicAddress(ctx, vmName)
	if err != nil && !errors.Is(err, interfaces.ErrNoPublicAddress) {
		log.Error("Deployment failed", "step", "fetch_public_address", "err", err)
		o.fail(requestID, &StepFailure{Step: "fetch_public_address", Err: err})
		return
	}

	now := time.Now()
	if scriptResult.Succeeded {
		completed := interfaces.CompletedDetails{ProvisioningDetails: details, SetupScript: "succeeded"}
		if len(scriptResult.Output) > 0 {
			completed.Sigstruct = scriptResult.Output
		}
		err = o.store.Update(requestID, func(r *interfaces.DeploymentRecord) {
			r.Status = interfaces.StatusCompleted
			r.CompletedAt = &now
			r.PublicAddress = publicAddress
			r.Details = completed
		})
		if err == nil {
			metrics.IncDeploymentFinished(string(interfaces.StatusCompleted))
			log.Info("Successfully deployed and configured VM", "publicAddress", publicAddress)
		}
	} else {
		err = o.store.Update(requestID, func(r *interfaces.DeploymentRecord) {
			r.Status = interfaces.StatusPartialSuccess
			r.CompletedAt = &now
			r.PublicAddress = publicAddress
			r.Details = interfaces.CompletedDetails{ProvisioningDetails: details, SetupScript: "failed"}
			r.Error = PartialSuccessError
		})
		if err == nil {
			metrics.IncDeploymentFinished(string(interfaces.StatusPartialSuccess))
			log.Warn("VM deployed but setup script failed")
		}
	}
	if err != nil {
		log.Error("Failed to record terminal deployment status", "err", err)
	}
}

// fail moves the record to the failed terminal state with the captured error.
func (o *Orchestrator) fail(requestID string, cause error) {
	now := time.Now()
	err := o.store.Update(requestID, func(r *interfaces.DeploymentRecord) {
		r.Status = interfaces.StatusFailed
		r.CompletedAt = &now
		r.Error = cause.Error()
	})
	if err != nil {
		o.log.Error("Failed to record deployment failure", "requestID", requestID, "err", err)
		return
	}
	metrics.IncDeploymentFinished(string(interfaces.StatusFailed))
}
