package enclave

import (
	"context"

	"github.com/vaultkey/kbsclient/models"
)

// fakeTransport is a hand-written Transport test double: EnclaveClient's
// request/response shape is simple enough that a small struct is clearer
// here than a generated mock, which internal/mocks reserves for the
// collaborator with richer call-matching needs (RemoteAttestation).
type fakeTransport struct {
	makeRequestFunc func(ctx context.Context, req models.OuterRequest) (models.OuterResponse, error)
	bootstrapFunc   func(ctx context.Context, enclaveName string) (models.ServerBootstrapToken, error)
}

func (f *fakeTransport) MakeRequest(ctx context.Context, req models.OuterRequest) (models.OuterResponse, error) {
	return f.makeRequestFunc(ctx, req)
}

func (f *fakeTransport) Bootstrap(ctx context.Context, enclaveName string) (models.ServerBootstrapToken, error) {
	return f.bootstrapFunc(ctx, enclaveName)
}

type fakeTokenReader struct {
	current              *models.Token
	currentErr           error
	bootstrapped         models.ServerBootstrapToken
	updateFromBootstrapFn func(models.ServerBootstrapToken) error
}

func (f *fakeTokenReader) Current(context.Context) (*models.Token, error) {
	return f.current, f.currentErr
}

func (f *fakeTokenReader) UpdateNextFromServerBootstrap(_ context.Context, boot models.ServerBootstrapToken) error {
	f.bootstrapped = boot
	if f.updateFromBootstrapFn != nil {
		return f.updateFromBootstrapFn(boot)
	}
	return nil
}
