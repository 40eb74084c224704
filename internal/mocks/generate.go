// Package mocks provides mock implementations of the ports used by sessionguard.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the port interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	mockCache := mocks.NewMockCache(ctrl)
//	mockCache.EXPECT().Get(gomock.Any(), "tenant:session:abc").Return(nil, nil)
package mocks

// Cache backs the tenant resolver's cache source.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=cache_mock.go github.com/target/sessionguard/internal/ports Cache

// AuthGateway is consumed by the timeout coordinator and the tenant sources.
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=auth_gateway_mock.go github.com/target/sessionguard/internal/ports AuthGateway

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=attribute_store_mock.go github.com/target/sessionguard/internal/ports AttributeStore

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=audit_writer_mock.go github.com/target/sessionguard/internal/ports AuditWriter

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=navigator_mock.go github.com/target/sessionguard/internal/ports Navigator
