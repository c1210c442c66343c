package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Authenticate.Verify != nil
}

func (s Service) Login(ctx context.Context, req LoginRequest) LoginResult {
	return RunLogin(ctx, req, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Authenticate(ctx context.Context, accessToken string) AuthenticateResult {
	return RunAuthenticate(ctx, accessToken, s.deps.Authenticate)
}

func (s Service) Logout(ctx context.Context, refreshToken, accessToken string) LogoutResult {
	return RunLogout(ctx, refreshToken, accessToken, s.deps.Logout)
}

func (s Service) LogoutAll(ctx context.Context, accessToken string) LogoutResult {
	return RunLogoutAll(ctx, accessToken, s.deps.Logout)
}
