// Package fakes provides test doubles for the rotation collaborators and the
// AWS SDK clients behind them.
//
// Fakes are manually implemented (not generated) to provide precise control
// over test behavior. The SDK fakes keep just enough service state (key
// lists, version stages, parameter labels) for the adapters to be exercised
// end to end, and every fake records its calls.
//
// Usage:
//
//	iam := fakes.NewFakeIAMClient("ci-deployer", "AKIAOLD0000000000001")
//	sm := fakes.NewFakeSecretsManagerClient()
//	sm.AddVersion("/access-key/ci-deployer", "v1", payload, "AWSCURRENT")
//	// Build providers.IAMAuthority and providers.SecretsManagerStore on them...
package fakes
