// Package mocks provides mock implementations for testing the web front services.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	login := mocks.NewMockLoginService(ctrl)
//	login.EXPECT().HasBasicLogin().Return(true)
package mocks

// Generate mocks for the login ports from internal/ports:
// LoginService (Schemes, HasBasicLogin, BasicLogin, Login) and
// ImpersonationService (ImpersonateByName, ImpersonateByID).
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=login_ports_mock.go github.com/target/webfront-auth/internal/ports ImpersonationService,LoginService

// Generate mock for UserRepository interface from internal/core package.
// This creates MockUserRepository with methods for all UserRepository interface methods:
// Create, GetByID, GetByName, GetByExternalKey, LinkExternal, SetPassword, TouchScheme
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=user_repository_mock.go github.com/target/webfront-auth/internal/core UserRepository
