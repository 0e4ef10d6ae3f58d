// Package rotation rotates the access key of a single IAM principal whose
// key pair is kept in a versioned secret.
//
// # Protocol
//
// The secret store's scheduler invokes the rotator once per step, always with
// the same idempotency token for one rotation attempt. The token doubles as
// the id of the new secret version.
//
//	createSecret   issue a key, store it as AWSPENDING under the token
//	setSecret      nothing to do for access keys
//	testSecret     wait for propagation, authenticate with the pending key
//	finishSecret   move AWSCURRENT to the token, retire the AWSPREVIOUS key
//
// The engine never advances on its own and never retries inside an
// invocation. A failed step leaves the record as it is; the scheduler retries
// the same step later.
//
// # Precheck
//
// Before every step the engine lists the record's versions and the
// principal's keys. For createSecret it reconciles the two:
//
//	3 versions, pending key is live      the create already happened: skip
//	3 versions, pending key is missing   IntegrityError, nothing is repaired
//	<=2 versions, 2 live keys            delete the key the current version does not reference
//
// The last rule heals a create that issued a key but crashed before storing
// it, and keeps the principal below the authority's two-key limit.
//
// # Errors
//
// Collaborator failures surface as *AuthorityError or *StoreError, consistency
// problems as *IntegrityError and rejected keys as *ValidationFailure. Each
// error is logged with the failing operation and published to the AlertSink
// once before being returned.
//
// # Usage
//
//	engine, err := rotation.NewEngine(rotation.Config{Principal: "ci-deployer"},
//	    authority, store,
//	    rotation.WithAlertSink(alerts),
//	    rotation.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	err = engine.Run(ctx, rotation.Invocation{
//	    RecordID: "/access-key/ci-deployer",
//	    Step:     rotation.StepCreateCredential,
//	    Token:    token,
//	})
package rotation
