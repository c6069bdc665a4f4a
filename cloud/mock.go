package cloud

import (
	"context"

	"github.com/relational-network/tee-devops-runner/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockBackend mocks the CloudBackend interface
type MockBackend struct {
	mock.Mock
}

// CreateSecurityGroup mocks the CreateSecurityGroup method
func (m *MockBackend) CreateSecurityGroup(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

// CreateNetworkInterface mocks the CreateNetworkInterface method
func (m *MockBackend) CreateNetworkInterface(ctx context.Context, name, subnetID, securityGroupID string) (string, error) {
	args := m.Called(ctx, name, subnetID, securityGroupID)
	return args.String(0), args.Error(1)
}

// CreateVM mocks the CreateVM method
func (m *MockBackend) CreateVM(ctx context.Context, name, nicID string) (string, error) {
	args := m.Called(ctx, name, nicID)
	return args.String(0), args.Error(1)
}

// GetInstanceStatus mocks the GetInstanceStatus method
func (m *MockBackend) GetInstanceStatus(ctx context.Context, name string) (interfaces.InstanceStatus, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(interfaces.InstanceStatus), args.Error(1)
}

// RunRemoteScript mocks the RunRemoteScript method
func (m *MockBackend) RunRemoteScript(ctx context.Context, name string, script []byte) (interfaces.RemoteScriptResult, error) {
	args := m.Called(ctx, name, script)
	return args.Get(0).(interfaces.RemoteScriptResult), args.Error(1)
}

// GetPublicAddress mocks the GetPublicAddress method
func (m *MockBackend) GetPublicAddress(ctx context.Context, name string) (string, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Error(1)
}

// ListInstances mocks the ListInstances method
func (m *MockBackend) ListInstances(ctx context.Context) ([]interfaces.VMSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).([]interfaces.VMSummary), args.Error(1)
}

// GetInstance mocks the GetInstance method
func (m *MockBackend) GetInstance(ctx context.Context, name string) (interfaces.VMDetail, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(interfaces.VMDetail), args.Error(1)
}
