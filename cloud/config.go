package cloud

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// Config holds the immutable cloud provisioning parameters. It is read once
// at startup and never changes for the process lifetime.
type Config struct {
	// Region is the cloud region resources are created in.
	Region string

	// SubnetID is the subnet new network interfaces attach to.
	SubnetID string

	// VPCID is the VPC security groups are created in.
	VPCID string

	// InstanceType is the VM size used for confidential computing instances.
	InstanceType string

	// ImageID is the machine image new VMs boot from.
	ImageID string

	// SSHPublicKey is installed for the admin user on new VMs.
	SSHPublicKey string

	// AdminUsername is the administrative login on new VMs.
	AdminUsername string

	// ResourceGroup is a logical grouping tag applied to every resource this
	// service creates; listings are scoped to it.
	ResourceGroup string

	// SecurityType, SecureBoot and VTPM describe the security profile
	// recorded on created VMs.
	SecurityType string
	SecureBoot   bool
	VTPM         bool
}

// Validate checks that the required fields are present and the SSH public key
// parses as an authorized_keys entry.
func (c *Config) Validate() error {
	switch {
	case c.Region == "":
		return errors.New("cloud region is required")
	case c.SubnetID == "":
		return errors.New("subnet ID is required")
	case c.VPCID == "":
		return errors.New("VPC ID is required")
	case c.InstanceType == "":
		return errors.New("instance type is required")
	case c.ImageID == "":
		return errors.New("image ID is required")
	case c.ResourceGroup == "":
		return errors.New("resource group is required")
	case c.SSHPublicKey == "":
		return errors.New("SSH public key is required")
	}
	if _, _, _, _, err := ssh.ParseAuthorizedKey([]byte(c.SSHPublicKey)); err != nil {
		return fmt.Errorf("invalid SSH public key: %w", err)
	}
	return nil
}
