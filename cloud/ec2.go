package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/relational-network/tee-devops-runner/interfaces"
)

// Tag keys applied to every resource created by this backend.
const (
	tagName          = "Name"
	tagResourceGroup = "resource_group"
	tagSecurityType  = "security_type"
	tagSecureBoot    = "secure_boot"
	tagVTPM          = "vtpm"
	tagAdminUsername = "admin_username"
)

const (
	scriptPollInterval = 10 * time.Second
	scriptTimeout      = 30 * time.Minute
)

// EC2Backend implements interfaces.CloudBackend on the AWS EC2 and SSM APIs.
type EC2Backend struct {
	ec2 *ec2.EC2
	ssm *ssm.SSM
	cfg Config
	log *slog.Logger
}

// NewEC2Backend creates a backend for the given configuration. Construction
// fails if the configuration is incomplete or the AWS session cannot be
// built; that failure is surfaced to callers at the point of use.
func NewEC2Backend(cfg Config, log *slog.Logger) (*EC2Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cloud configuration: %w", err)
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	log.Info("Initialized EC2 backend", "region", cfg.Region, "resourceGroup", cfg.ResourceGroup)
	return &EC2Backend{
		ec2: ec2.New(sess),
		ssm: ssm.New(sess),
		cfg: cfg,
		log: log,
	}, nil
}

func (b *EC2Backend) tags(resourceType, name string) []*ec2.TagSpecification {
	return []*ec2.TagSpecification{{
		ResourceType: aws.String(resourceType),
		Tags: []*ec2.Tag{
			{Key: aws.String(tagName), Value: aws.String(name)},
			{Key: aws.String(tagResourceGroup), Value: aws.String(b.cfg.ResourceGroup)},
		},
	}}
}

// CreateSecurityGroup creates a security group allowing inbound SSH (22) and
// HTTPS (443) from anywhere, and returns its ID.
func (b *EC2Backend) CreateSecurityGroup(ctx context.Context, name string) (string, error) {
	b.log.Info("Creating security group", "name", name)

	out, err := b.ec2.CreateSecurityGroupWithContext(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         aws.String(name),
		Description:       aws.String("TEE deployment security group"),
		VpcId:             aws.String(b.cfg.VPCID),
		TagSpecifications: b.tags(ec2.ResourceTypeSecurityGroup, name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create security group: %w", err)
	}

	ingressRule := func(port int64, desc string) *ec2.IpPermission {
		return &ec2.IpPermission{
			IpProtocol: aws.String("tcp"),
			FromPort:   aws.Int64(port),
			ToPort:     aws.Int64(port),
			IpRanges: []*ec2.IpRange{
				{CidrIp: aws.String("0.0.0.0/0"), Description: aws.String(desc)},
			},
		}
	}

	_, err = b.ec2.AuthorizeSecurityGroupIngressWithContext(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: out.GroupId,
		IpPermissions: []*ec2.IpPermission{
			ingressRule(22, "AllowSSH"),
			ingressRule(443, "AllowAnyHTTPSInbound"),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to authorize security group ingress: %w", err)
	}

	return aws.StringValue(out.GroupId), nil
}

// CreateNetworkInterface creates a network interface in the given subnet,
// attached to the given security group, and returns its ID.
func (b *EC2Backend) CreateNetworkInterface(ctx context.Context, name, subnetID, securityGroupID string) (string, error) {
	b.log.Info("Creating network interface", "name", name)

	out, err := b.ec2.CreateNetworkInterfaceWithContext(ctx, &ec2.CreateNetworkInterfaceInput{
		SubnetId:          aws.String(subnetID),
		Groups:            []*string{aws.String(securityGroupID)},
		Description:       aws.String(name),
		TagSpecifications: b.tags(ec2.ResourceTypeNetworkInterface, name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create network interface: %w", err)
	}
	return aws.StringValue(out.NetworkInterface.NetworkInterfaceId), nil
}

// CreateVM launches an instance on the given network interface using the
// configured image, size and SSH key, and returns the instance ID.
func (b *EC2Backend) CreateVM(ctx context.Context, name, nicID string) (string, error) {
	b.log.Info("Creating VM", "name", name)

	keyName, err := b.ensureKeyPair(ctx)
	if err != nil {
		return "", err
	}

	tagSpec := b.tags(ec2.ResourceTypeInstance, name)
	tagSpec[0].Tags = append(tagSpec[0].Tags,
		&ec2.Tag{Key: aws.String(tagSecurityType), Value: aws.String(b.cfg.SecurityType)},
		&ec2.Tag{Key: aws.String(tagSecureBoot), Value: aws.String(strconv.FormatBool(b.cfg.SecureBoot))},
		&ec2.Tag{Key: aws.String(tagVTPM), Value: aws.String(strconv.FormatBool(b.cfg.VTPM))},
		&ec2.Tag{Key: aws.String(tagAdminUsername), Value: aws.String(b.cfg.AdminUsername)},
	)

	out, err := b.ec2.RunInstancesWithContext(ctx, &ec2.RunInstancesInput{
		ImageId:      aws.String(b.cfg.ImageID),
		InstanceType: aws.String(b.cfg.InstanceType),
		KeyName:      aws.String(keyName),
		MinCount:     aws.Int64(1),
		MaxCount:     aws.Int64(1),
		NetworkInterfaces: []*ec2.InstanceNetworkInterfaceSpecification{
			{DeviceIndex: aws.Int64(0), NetworkInterfaceId: aws.String(nicID)},
		},
		TagSpecifications: tagSpec,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create VM: %w", err)
	}
	if len(out.Instances) == 0 {
		return "", fmt.Errorf("no instance returned for VM %s", name)
	}
	return aws.StringValue(out.Instances[0].InstanceId), nil
}

// ensureKeyPair imports the configured SSH public key under a deterministic
// name, tolerating a pre-existing import.
func (b *EC2Backend) ensureKeyPair(ctx context.Context) (string, error) {
	keyName := b.cfg.ResourceGroup + "-deployer-key"
	_, err := b.ec2.ImportKeyPairWithContext(ctx, &ec2.ImportKeyPairInput{
		KeyName:           aws.String(keyName),
		PublicKeyMaterial: []byte(b.cfg.SSHPublicKey),
	})
	if err != nil && !strings.Contains(err.Error(), "InvalidKeyPair.Duplicate") {
		return "", fmt.Errorf("failed to import SSH key pair: %w", err)
	}
	return keyName, nil
}

// GetInstanceStatus returns the normalized provisioning and power state of
// the named VM.
func (b *EC2Backend) GetInstanceStatus(ctx context.Context, name string) (interfaces.InstanceStatus, error) {
	instance, err := b.findInstance(ctx, name)
	if err != nil {
		return interfaces.InstanceStatus{}, err
	}

	status := interfaces.InstanceStatus{
		ProvisioningState: "Provisioning in progress",
		PowerState:        normalizePowerState(aws.StringValue(instance.State.Name)),
	}

	out, err := b.ec2.DescribeInstanceStatusWithContext(ctx, &ec2.DescribeInstanceStatusInput{
		InstanceIds:         []*string{instance.InstanceId},
		IncludeAllInstances: aws.Bool(true),
	})
	if err != nil {
		return interfaces.InstanceStatus{}, fmt.Errorf("failed to get VM status: %w", err)
	}
	if len(out.InstanceStatuses) > 0 && out.InstanceStatuses[0].SystemStatus != nil {
		status.ProvisioningState = normalizeProvisioningState(aws.StringValue(out.InstanceStatuses[0].SystemStatus.Status))
	}
	return status, nil
}

// RunRemoteScript executes the script on the named VM through SSM and waits
// for it to finish. A script that runs but reports failure is returned with
// Succeeded false and a nil error; transport failures are errors.
func (b *EC2Backend) RunRemoteScript(ctx context.Context, name string, script []byte) (interfaces.RemoteScriptResult, error) {
	instance, err := b.findInstance(ctx, name)
	if err != nil {
		return interfaces.RemoteScriptResult{}, err
	}

	b.log.Info("Running setup script on VM", "name", name)
	sent, err := b.ssm.SendCommandWithContext(ctx, &ssm.SendCommandInput{
		DocumentName:   aws.String("AWS-RunShellScript"),
		InstanceIds:    []*string{instance.InstanceId},
		Parameters:     map[string][]*string{"commands": aws.StringSlice(strings.Split(string(script), "\n"))},
		TimeoutSeconds: aws.Int64(int64(scriptTimeout.Seconds())),
	})
	if err != nil {
		return interfaces.RemoteScriptResult{}, fmt.Errorf("failed to send setup script: %w", err)
	}

	deadline := time.Now().Add(scriptTimeout)
	for {
		select {
		case <-ctx.Done():
			return interfaces.RemoteScriptResult{}, ctx.Err()
		case <-time.After(scriptPollInterval):
		}
		if time.Now().After(deadline) {
			return interfaces.RemoteScriptResult{}, fmt.Errorf("setup script timed out after %s", scriptTimeout)
		}

		inv, err := b.ssm.GetCommandInvocationWithContext(ctx, &ssm.GetCommandInvocationInput{
			CommandId:  sent.Command.CommandId,
			InstanceId: instance.InstanceId,
		})
		if err != nil {
			// The invocation record appears shortly after SendCommand.
			if strings.Contains(err.Error(), "InvocationDoesNotExist") {
				continue
			}
			return interfaces.RemoteScriptResult{}, fmt.Errorf("failed to poll setup script: %w", err)
		}

		switch aws.StringValue(inv.Status) {
		case ssm.CommandInvocationStatusSuccess:
			b.log.Info("Setup script executed successfully", "name", name)
			return interfaces.RemoteScriptResult{
				Succeeded: true,
				Output:    ParseSigstructOutput(aws.StringValue(inv.StandardOutputContent)),
			}, nil
		case ssm.CommandInvocationStatusFailed,
			ssm.CommandInvocationStatusCancelled,
			ssm.CommandInvocationStatusTimedOut:
			b.log.Error("Setup script execution failed", "name", name, "status", aws.StringValue(inv.Status))
			return interfaces.RemoteScriptResult{Succeeded: false}, nil
		}
	}
}

// GetPublicAddress returns the VM's public address. Allocation may lag VM
// creation, so a missing address is reported as ErrNoPublicAddress rather
// than an empty string.
func (b *EC2Backend) GetPublicAddress(ctx context.Context, name string) (string, error) {
	instance, err := b.findInstance(ctx, name)
	if err != nil {
		return "", err
	}
	addr := aws.StringValue(instance.PublicIpAddress)
	if addr == "" {
		return "", fmt.Errorf("instance %s: %w", name, interfaces.ErrNoPublicAddress)
	}
	return addr, nil
}

// ListInstances returns all VMs in the backend's resource group.
func (b *EC2Backend) ListInstances(ctx context.Context) ([]interfaces.VMSummary, error) {
	out, err := b.ec2.DescribeInstancesWithContext(ctx, &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{
			{Name: aws.String("tag:" + tagResourceGroup), Values: []*string{aws.String(b.cfg.ResourceGroup)}},
			{Name: aws.String("instance-state-name"), Values: aws.StringSlice([]string{
				ec2.InstanceStateNamePending,
				ec2.InstanceStateNameRunning,
				ec2.InstanceStateNameStopping,
				ec2.InstanceStateNameStopped,
			})},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list VMs: %w", err)
	}

	var vms []interfaces.VMSummary
	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			vms = append(vms, summarize(instance))
		}
	}
	return vms, nil
}

// GetInstance returns the detail view of the named VM, including its
// security profile.
func (b *EC2Backend) GetInstance(ctx context.Context, name string) (interfaces.VMDetail, error) {
	instance, err := b.findInstance(ctx, name)
	if err != nil {
		return interfaces.VMDetail{}, err
	}

	tags := tagMap(instance.Tags)
	secureBoot, _ := strconv.ParseBool(tags[tagSecureBoot])
	vtpm, _ := strconv.ParseBool(tags[tagVTPM])

	return interfaces.VMDetail{
		VMSummary: summarize(instance),
		ID:        aws.StringValue(instance.InstanceId),
		SecurityProfile: interfaces.SecurityProfile{
			SecurityType: tags[tagSecurityType],
			SecureBoot:   secureBoot,
			VTPM:         vtpm,
		},
	}, nil
}

// findInstance resolves a VM name (the Name tag) to its live instance within
// the resource group. Terminated instances are excluded.
func (b *EC2Backend) findInstance(ctx context.Context, name string) (*ec2.Instance, error) {
	out, err := b.ec2.DescribeInstancesWithContext(ctx, &ec2.DescribeInstancesInput{
		Filters: []*ec2.Filter{
			{Name: aws.String("tag:" + tagName), Values: []*string{aws.String(name)}},
			{Name: aws.String("tag:" + tagResourceGroup), Values: []*string{aws.String(b.cfg.ResourceGroup)}},
			{Name: aws.String("instance-state-name"), Values: aws.StringSlice([]string{
				ec2.InstanceStateNamePending,
				ec2.InstanceStateNameRunning,
				ec2.InstanceStateNameStopping,
				ec2.InstanceStateNameStopped,
			})},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up VM %s: %w", name, err)
	}
	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			return instance, nil
		}
	}
	return nil, interfaces.ErrVMNotFound
}

func summarize(instance *ec2.Instance) interfaces.VMSummary {
	tags := tagMap(instance.Tags)
	return interfaces.VMSummary{
		Name:          tags[tagName],
		Status:        normalizePowerState(aws.StringValue(instance.State.Name)),
		Size:          aws.StringValue(instance.InstanceType),
		Location:      aws.StringValue(instance.Placement.AvailabilityZone),
		OSType:        aws.StringValue(instance.PlatformDetails),
		PublicAddress: aws.StringValue(instance.PublicIpAddress),
		Tags:          tags,
	}
}

func tagMap(tags []*ec2.Tag) map[string]string {
	m := make(map[string]string, len(tags))
	for _, tag := range tags {
		m[aws.StringValue(tag.Key)] = aws.StringValue(tag.Value)
	}
	return m
}

func normalizePowerState(state string) string {
	if state == ec2.InstanceStateNameRunning {
		return interfaces.PowerStateRunning
	}
	return "VM " + state
}

func normalizeProvisioningState(systemStatus string) string {
	if systemStatus == ec2.SummaryStatusOk {
		return interfaces.ProvisioningSucceeded
	}
	return "Provisioning " + strings.ToLower(systemStatus)
}
